package ports

import (
	"context"
	"time"

	"wallet-ledger-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance int64) error
	UpdateFreeTransfers(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, used int, day time.Time) error
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

// LedgerRepository defines persistence for the append-only ledger.
type LedgerRepository interface {
	Create(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.LedgerEntry, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.LedgerEntry, error)
	// GetByIdempotencyKey returns the entry for (wallet, key), nil when absent.
	GetByIdempotencyKey(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, key string) (*domain.LedgerEntry, error)
	GetReversalOf(ctx context.Context, tx pgx.Tx, originalID uuid.UUID) (*domain.LedgerEntry, error)
	NextSeq(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (int64, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.EntryStatus, providerRef string) error
	// SumSignedDeltas recomputes the available balance from entries
	// (APPLIED deltas plus PENDING debit reservations).
	SumSignedDeltas(ctx context.Context, walletID uuid.UUID) (int64, error)
	// SumAppliedDeltas recomputes the settled balance (APPLIED deltas only).
	SumAppliedDeltas(ctx context.Context, walletID uuid.UUID) (int64, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error)
	ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]domain.LedgerEntry, error)
	// ListKeysWithoutAudit returns idempotency keys of entries missing their
	// audit projection.
	ListKeysWithoutAudit(ctx context.Context) ([]string, error)
}

// AuditRepository defines persistence for the derived audit projection.
type AuditRepository interface {
	Create(ctx context.Context, tx pgx.Tx, record *domain.AuditRecord) error
	UpdateStatus(ctx context.Context, tx pgx.Tx, ledgerEntryID uuid.UUID, status domain.EntryStatus) error
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.AuditRecord, error)
	// ListKeysWithoutLedgerEntry returns idempotency keys of audit rows with
	// no matching ledger entry.
	ListKeysWithoutLedgerEntry(ctx context.Context) ([]string, error)
}

// WebhookEventRepository defines persistence for inbound provider events.
// Every delivery persists its own row; duplicates are resolved by state, not
// by unique constraints, so no delivery is ever lost without a trace.
type WebhookEventRepository interface {
	Create(ctx context.Context, event *domain.WebhookEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error)
	// GetAppliedByReference returns a prior APPLIED delivery for the same
	// (provider, reference), nil when none exists.
	GetAppliedByReference(ctx context.Context, provider, reference string) (*domain.WebhookEvent, error)
	UpdateState(ctx context.Context, id uuid.UUID, state domain.WebhookState, reason string, ledgerEntryID *uuid.UUID) error
	IncrementAttempts(ctx context.Context, id uuid.UUID) error
	// ListStuck returns non-terminal events received before the cutoff.
	ListStuck(ctx context.Context, cutoff time.Time) ([]domain.WebhookEvent, error)
}

// FeeConfigRepository exposes read access to the fee configuration.
// Admin CRUD over the values lives elsewhere; this module only snapshots.
type FeeConfigRepository interface {
	// GetActiveSchedule loads the current schedule as an immutable snapshot.
	GetActiveSchedule(ctx context.Context) (*domain.FeeSchedule, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
