package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-ledger-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const ledgerColumns = `id, wallet_id, seq, kind, origin, amount, fee, idempotency_key, status,
	balance_after, counterparty_wallet, counterparty_account, counterparty_bank,
	provider_reference, reversed_entry_id, description, created_at, processed_at`

// signedDeltaSQL mirrors domain.LedgerEntry.SignedDelta: APPLIED credits add,
// live debits (PENDING included, they reserve funds) subtract amount+fee.
// REVERSAL rows contribute nothing: the reversed debit already drops to zero.
const signedDeltaSQL = `CASE
	WHEN kind = 'CREDIT' AND status = 'APPLIED' THEN amount
	WHEN kind = 'DEBIT' AND status IN ('PENDING', 'APPLIED') THEN -(amount + fee)
	ELSE 0
END`

const appliedDeltaSQL = `CASE
	WHEN kind = 'CREDIT' AND status = 'APPLIED' THEN amount
	WHEN kind = 'DEBIT' AND status = 'APPLIED' THEN -(amount + fee)
	ELSE 0
END`

// LedgerRepo implements ports.LedgerRepository over the append-only
// ledger_entries table.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

func scanEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	e := &domain.LedgerEntry{}
	err := row.Scan(
		&e.ID, &e.WalletID, &e.Seq, &e.Kind, &e.Origin, &e.Amount, &e.Fee,
		&e.IdempotencyKey, &e.Status, &e.BalanceAfter, &e.CounterpartyWallet,
		&e.CounterpartyAccount, &e.CounterpartyBank, &e.ProviderReference,
		&e.ReversedEntryID, &e.Description, &e.CreatedAt, &e.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// Create appends a new ledger entry within a transaction.
func (r *LedgerRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (id, wallet_id, seq, kind, origin, amount, fee,
		idempotency_key, status, balance_after, counterparty_wallet, counterparty_account,
		counterparty_bank, provider_reference, reversed_entry_id, description, created_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.WalletID, e.Seq, e.Kind, e.Origin, e.Amount, e.Fee,
		e.IdempotencyKey, e.Status, e.BalanceAfter, e.CounterpartyWallet, e.CounterpartyAccount,
		e.CounterpartyBank, e.ProviderReference, e.ReversedEntryID, e.Description, e.CreatedAt, e.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// GetByID fetches an entry without locking.
func (r *LedgerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE id = $1`

	e, err := scanEntry(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get entry by id: %w", err)
	}
	return e, nil
}

// GetByIDForUpdate fetches an entry with pessimistic locking.
// This MUST be called within a transaction.
func (r *LedgerRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE id = $1 FOR UPDATE`

	e, err := scanEntry(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get entry for update: %w", err)
	}
	return e, nil
}

// GetByIdempotencyKey returns the most recent entry for (wallet, key).
// REVERSED and FAILED entries sort last so a live entry always wins.
func (r *LedgerRepo) GetByIdempotencyKey(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, key string) (*domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE wallet_id = $1 AND idempotency_key = $2
		ORDER BY CASE WHEN status IN ('PENDING', 'APPLIED') THEN 0 ELSE 1 END, created_at DESC
		LIMIT 1`

	e, err := scanEntry(tx.QueryRow(ctx, query, walletID, key))
	if err != nil {
		return nil, fmt.Errorf("get entry by idempotency key: %w", err)
	}
	return e, nil
}

// GetReversalOf returns the reversal entry compensating the given entry.
func (r *LedgerRepo) GetReversalOf(ctx context.Context, tx pgx.Tx, originalID uuid.UUID) (*domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE reversed_entry_id = $1`

	e, err := scanEntry(tx.QueryRow(ctx, query, originalID))
	if err != nil {
		return nil, fmt.Errorf("get reversal of entry: %w", err)
	}
	return e, nil
}

// NextSeq allocates the next per-wallet sequence number. Callers hold the
// wallet row lock, which serializes allocation.
func (r *LedgerRepo) NextSeq(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (int64, error) {
	var seq int64
	err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM ledger_entries WHERE wallet_id = $1`,
		walletID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	return seq, nil
}

// UpdateStatus moves an entry through its lifecycle within a transaction.
func (r *LedgerRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.EntryStatus, providerRef string) error {
	query := `UPDATE ledger_entries
		SET status = $1, provider_reference = $2, processed_at = NOW()
		WHERE id = $3`

	tag, err := tx.Exec(ctx, query, status, providerRef, id)
	if err != nil {
		return fmt.Errorf("update entry status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entry not found: %s", id)
	}
	return nil
}

// SumSignedDeltas recomputes the available balance from entries alone.
func (r *LedgerRepo) SumSignedDeltas(ctx context.Context, walletID uuid.UUID) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(`+signedDeltaSQL+`), 0) FROM ledger_entries WHERE wallet_id = $1`,
		walletID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum signed deltas: %w", err)
	}
	return sum, nil
}

// SumAppliedDeltas recomputes the settled balance (APPLIED entries only).
func (r *LedgerRepo) SumAppliedDeltas(ctx context.Context, walletID uuid.UUID) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(`+appliedDeltaSQL+`), 0) FROM ledger_entries WHERE wallet_id = $1`,
		walletID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum applied deltas: %w", err)
	}
	return sum, nil
}

// ListByWallet returns entries newest first.
func (r *LedgerRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE wallet_id = $1 ORDER BY seq DESC LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, walletID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ListPendingOlderThan returns PENDING debits created before the cutoff.
func (r *LedgerRepo) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE kind = 'DEBIT' AND status = 'PENDING' AND created_at < $1
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list pending entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ListKeysWithoutAudit returns idempotency keys of entries whose audit
// projection is missing.
func (r *LedgerRepo) ListKeysWithoutAudit(ctx context.Context) ([]string, error) {
	query := `SELECT le.idempotency_key FROM ledger_entries le
		LEFT JOIN audit_records ar ON ar.ledger_entry_id = le.id
		WHERE ar.id IS NULL
		ORDER BY le.created_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list entries without audit: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan idempotency key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func collectEntries(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for rows.Next() {
		e := domain.LedgerEntry{}
		err := rows.Scan(
			&e.ID, &e.WalletID, &e.Seq, &e.Kind, &e.Origin, &e.Amount, &e.Fee,
			&e.IdempotencyKey, &e.Status, &e.BalanceAfter, &e.CounterpartyWallet,
			&e.CounterpartyAccount, &e.CounterpartyBank, &e.ProviderReference,
			&e.ReversedEntryID, &e.Description, &e.CreatedAt, &e.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
