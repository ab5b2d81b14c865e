package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookState represents the processing state of an inbound provider event.
// Transitions are monotonic: RECEIVED -> VALIDATED -> APPLIED | REJECTED,
// or RECEIVED -> DUPLICATE. APPLIED, REJECTED and DUPLICATE are terminal.
type WebhookState string

const (
	WebhookStateReceived  WebhookState = "RECEIVED"
	WebhookStateValidated WebhookState = "VALIDATED"
	WebhookStateApplied   WebhookState = "APPLIED"
	WebhookStateDuplicate WebhookState = "DUPLICATE"
	WebhookStateRejected  WebhookState = "REJECTED"
)

// WebhookEvent is the durable record of one inbound delivery. It is persisted
// before any processing so no event can be lost without a trace.
type WebhookEvent struct {
	ID            uuid.UUID    `json:"id"`
	Provider      string       `json:"provider"`
	EventType     string       `json:"event_type"`
	Reference     string       `json:"reference"` // Provider-assigned idempotency key
	AccountNumber string       `json:"account_number"`
	Amount        int64        `json:"amount"`
	Currency      string       `json:"currency"`
	Signature     string       `json:"-"`
	RawPayload    []byte       `json:"-"`
	State         WebhookState `json:"state"`
	RejectReason  string       `json:"reject_reason,omitempty"`
	LedgerEntryID *uuid.UUID   `json:"ledger_entry_id,omitempty"`
	Attempts      int          `json:"attempts"`
	ReceivedAt    time.Time    `json:"received_at"`
	ProcessedAt   *time.Time   `json:"processed_at,omitempty"`
}

// IsTerminal returns true once the event can no longer be reprocessed.
func (e *WebhookEvent) IsTerminal() bool {
	return e.State == WebhookStateApplied ||
		e.State == WebhookStateRejected ||
		e.State == WebhookStateDuplicate
}

// EventIdempotencyKey builds the ledger idempotency key for a provider event.
func EventIdempotencyKey(provider, reference string) string {
	return provider + ":" + reference
}

// AdjustmentIdempotencyKey builds the ledger idempotency key for an explicit
// admin adjustment.
func AdjustmentIdempotencyKey(reference string) string {
	return "adjustment:" + reference
}
