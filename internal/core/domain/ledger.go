package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntryKind represents the arithmetic direction of a ledger entry.
type EntryKind string

const (
	EntryKindCredit   EntryKind = "CREDIT"
	EntryKindDebit    EntryKind = "DEBIT"
	EntryKindReversal EntryKind = "REVERSAL"
)

// EntryStatus represents the lifecycle state of a ledger entry.
type EntryStatus string

const (
	EntryStatusPending  EntryStatus = "PENDING"
	EntryStatusApplied  EntryStatus = "APPLIED"
	EntryStatusReversed EntryStatus = "REVERSED"
	EntryStatusFailed   EntryStatus = "FAILED"
)

// EntryOrigin records which flow produced an entry. Admin adjustments are
// ordinary credits/debits distinguished only by origin, so the signed-delta
// algebra stays on the three kinds.
type EntryOrigin string

const (
	OriginWebhookFunding   EntryOrigin = "WEBHOOK_FUNDING"
	OriginOutboundTransfer EntryOrigin = "OUTBOUND_TRANSFER"
	OriginInternalTransfer EntryOrigin = "INTERNAL_TRANSFER"
	OriginAdminAdjustment  EntryOrigin = "ADMIN_ADJUSTMENT"
	OriginReversal         EntryOrigin = "REVERSAL"
)

// LedgerEntry is the canonical append-only record of a balance movement.
// The wallet balance must always equal the sum of its entries' signed deltas.
type LedgerEntry struct {
	ID                  uuid.UUID   `json:"id"`
	WalletID            uuid.UUID   `json:"wallet_id"`
	Seq                 int64       `json:"seq"` // Monotonic per wallet
	Kind                EntryKind   `json:"kind"`
	Origin              EntryOrigin `json:"origin"`
	Amount              int64       `json:"amount"`
	Fee                 int64       `json:"fee"`
	IdempotencyKey      string      `json:"idempotency_key"`
	Status              EntryStatus `json:"status"`
	BalanceAfter        int64       `json:"balance_after"`
	CounterpartyWallet  *uuid.UUID  `json:"counterparty_wallet,omitempty"`
	CounterpartyAccount string      `json:"counterparty_account,omitempty"`
	CounterpartyBank    string      `json:"counterparty_bank,omitempty"`
	ProviderReference   string      `json:"provider_reference,omitempty"`
	ReversedEntryID     *uuid.UUID  `json:"reversed_entry_id,omitempty"`
	Description         string      `json:"description,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	ProcessedAt         *time.Time  `json:"processed_at,omitempty"`
}

// SignedDelta returns the entry's contribution to the available balance.
// PENDING debits reserve funds, so they count like APPLIED ones; REVERSED
// and FAILED entries contribute nothing. A REVERSAL entry also contributes
// nothing: flipping the original debit to REVERSED already zeroes its delta,
// so the pair nets out and the reversal row only records the restoration.
func (e *LedgerEntry) SignedDelta() int64 {
	if e.Status == EntryStatusReversed || e.Status == EntryStatusFailed {
		return 0
	}
	switch e.Kind {
	case EntryKindCredit:
		if e.Status == EntryStatusApplied {
			return e.Amount
		}
		return 0
	case EntryKindDebit:
		return -(e.Amount + e.Fee)
	}
	return 0
}

// IsTerminal returns true once the entry can no longer change state.
func (e *LedgerEntry) IsTerminal() bool {
	return e.Status == EntryStatusReversed || e.Status == EntryStatusFailed
}

// IsReversible reports whether a compensating reversal may be created.
func (e *LedgerEntry) IsReversible() bool {
	return e.Kind == EntryKindDebit &&
		(e.Status == EntryStatusPending || e.Status == EntryStatusApplied)
}
