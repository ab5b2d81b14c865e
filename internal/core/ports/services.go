package ports

import (
	"context"
	"time"

	"wallet-ledger-core/internal/core/domain"

	"github.com/google/uuid"
)

// --- Ledger ---

// CreditParams holds validated input for a ledger credit.
type CreditParams struct {
	WalletID       uuid.UUID
	Amount         int64
	IdempotencyKey string
	Origin         domain.EntryOrigin
	Description    string
	Counterparty   string // account number or free-form source identifier
}

// DebitParams holds validated input for a ledger debit. The fee is quoted
// inside the wallet-locked transaction so the free-transfer allowance is
// consumed atomically with the debit.
type DebitParams struct {
	WalletID           uuid.UUID
	Amount             int64
	IdempotencyKey     string
	Origin             domain.EntryOrigin
	Kind               domain.TransferKind
	Provider           string
	Schedule           *domain.FeeSchedule
	Description        string
	DestinationAccount string
	DestinationBank    string
}

// AdminAdjustParams holds input for an explicit, audited manual adjustment.
// Delta may be negative; Reference becomes the adjustment idempotency key.
type AdminAdjustParams struct {
	WalletID  uuid.UUID
	Delta     int64
	Reference string
	Reason    string
}

// InternalTransferParams moves funds between two wallets of this platform.
type InternalTransferParams struct {
	FromWalletID   uuid.UUID
	ToWalletID     uuid.UUID
	Amount         int64
	Fee            int64
	IdempotencyKey string
	Description    string
}

// InternalTransferResult carries both legs of an internal transfer.
type InternalTransferResult struct {
	DebitEntry  *domain.LedgerEntry
	CreditEntry *domain.LedgerEntry
}

// BalanceView exposes the two balance notions of a wallet.
type BalanceView struct {
	WalletID  uuid.UUID `json:"wallet_id"`
	Currency  string    `json:"currency"`
	Available int64     `json:"available"` // APPLIED deltas + PENDING debit reservations
	Settled   int64     `json:"settled"`   // APPLIED deltas only
}

// LedgerService owns wallet balances and the append-only ledger. It is the
// only writer of the balance field; every mutation runs in one transaction
// with the wallet row locked.
type LedgerService interface {
	Credit(ctx context.Context, params CreditParams) (*domain.LedgerEntry, error)
	Debit(ctx context.Context, params DebitParams) (*domain.LedgerEntry, error)
	ApplyDebit(ctx context.Context, entryID uuid.UUID, providerRef string) (*domain.LedgerEntry, error)
	Reverse(ctx context.Context, entryID uuid.UUID, reason string) (*domain.LedgerEntry, error)
	InternalTransfer(ctx context.Context, params InternalTransferParams) (*InternalTransferResult, error)
	AdminAdjust(ctx context.Context, params AdminAdjustParams) (*domain.LedgerEntry, error)
	GetBalance(ctx context.Context, walletID uuid.UUID) (*BalanceView, error)
}

// --- Fees ---

// FeeQuote is the result of one fee evaluation against a schedule snapshot.
type FeeQuote struct {
	Fee              int64
	ScheduleVersion  int64
	UsedFreeTransfer bool
}

// FeeCalculator evaluates fees against an explicit schedule snapshot.
// It holds no state of its own.
type FeeCalculator interface {
	Calculate(schedule *domain.FeeSchedule, amount int64, kind domain.TransferKind, provider string) int64
	// QuoteWithAllowance applies the daily free-transfer short-circuit before
	// any rule or tier lookup.
	QuoteWithAllowance(schedule *domain.FeeSchedule, amount int64, kind domain.TransferKind, provider string, freeRemaining int) FeeQuote
}

// --- Transfers ---

// TransferRequest is an outbound bank transfer submitted by a wallet owner.
type TransferRequest struct {
	WalletID           uuid.UUID
	Reference          string // Caller idempotency key for the debit
	DestinationAccount string
	DestinationBank    string
	Amount             int64
	Description        string
	Pin                string
}

// TransferStatus is the user-visible outcome of a transfer request.
type TransferStatus string

const (
	TransferStatusCompleted TransferStatus = "COMPLETED"
	TransferStatusFailed    TransferStatus = "FAILED"
	TransferStatusPending   TransferStatus = "PENDING" // Ambiguous provider outcome, awaiting reconciliation
)

// TransferOutcome is returned to the caller; never a raw internal error.
type TransferOutcome struct {
	Status            TransferStatus      `json:"status"`
	Entry             *domain.LedgerEntry `json:"entry"`
	Fee               int64               `json:"fee"`
	Provider          string              `json:"provider,omitempty"`
	ProviderReference string              `json:"provider_reference,omitempty"`
	AccountName       string              `json:"account_name,omitempty"`
}

// TransferExecutor orchestrates outbound transfers across providers.
type TransferExecutor interface {
	Execute(ctx context.Context, req TransferRequest) (*TransferOutcome, error)
}

// --- Providers (collaborators) ---

// Bank is one destination bank as reported by a provider.
type Bank struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// ProviderTransferStatus is a provider-reported transfer state.
type ProviderTransferStatus string

const (
	ProviderTransferSuccess ProviderTransferStatus = "SUCCESS"
	ProviderTransferFailed  ProviderTransferStatus = "FAILED"
	ProviderTransferPending ProviderTransferStatus = "PENDING"
)

// ProviderTransfer is the submission payload for a provider.
type ProviderTransfer struct {
	Reference          string
	DestinationAccount string
	DestinationBank    string
	Amount             int64
	Currency           string
	Narration          string
}

// ProviderTransferResult is a provider's definitive or pending answer.
type ProviderTransferResult struct {
	Status            ProviderTransferStatus
	ProviderReference string
}

// TransferProvider is the external bank-transfer collaborator. Multiple
// concrete providers implement it; the executor tries them in priority order.
type TransferProvider interface {
	Name() string
	ListBanks(ctx context.Context) ([]Bank, error)
	ResolveAccount(ctx context.Context, accountNumber, bankCode string) (string, error)
	SubmitTransfer(ctx context.Context, transfer ProviderTransfer) (*ProviderTransferResult, error)
}

// --- Webhook ingestion ---

// InboundEvent is the parsed inbound webhook contract (§external interfaces).
type InboundEvent struct {
	Provider      string
	EventType     string
	Reference     string
	AccountNumber string
	Amount        int64
	Currency      string
	Timestamp     time.Time
	Signature     string
	RawPayload    []byte
}

// WebhookPipeline ingests inbound funding events. Accept persists the event
// durably and enqueues it; Process drives one event to a terminal state and
// is also used by the reconciliation resubmit sweep.
type WebhookPipeline interface {
	Accept(ctx context.Context, event InboundEvent) (*domain.WebhookEvent, error)
	Process(ctx context.Context, eventID uuid.UUID) (*domain.WebhookEvent, error)
}

// DedupeCache is the fast-path duplicate check in front of the durable
// webhook event table.
type DedupeCache interface {
	// Seen returns the terminal state previously recorded for the key, or ""
	// when unknown.
	Seen(ctx context.Context, key string) (string, error)
	MarkSeen(ctx context.Context, key string, state string, ttl time.Duration) error
}

// --- Reconciliation ---

// Reconciler compares the ledger against the audit projection and sweeps
// stuck work back into the pipeline.
type Reconciler interface {
	Run(ctx context.Context) (*domain.ReconciliationReport, error)
}

// --- PIN ---

// PinVerifier checks a wallet PIN against its stored hash.
type PinVerifier interface {
	Hash(pin string) (string, error)
	Verify(pin string, hash string) (bool, error)
}

// SignatureVerifier validates inbound webhook signatures (HMAC-SHA256 over
// the raw payload with the per-provider secret).
type SignatureVerifier interface {
	Sign(secret string, payload []byte) string
	Verify(secret string, payload []byte, signature string) bool
}
