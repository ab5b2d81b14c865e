package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-ledger-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AuditRepo implements ports.AuditRepository. Audit rows are written in the
// same transaction as their ledger entry, never independently.
type AuditRepo struct {
	pool Pool
}

// NewAuditRepo creates a new AuditRepo.
func NewAuditRepo(pool Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// Create inserts an audit record within a transaction.
func (r *AuditRepo) Create(ctx context.Context, tx pgx.Tx, a *domain.AuditRecord) error {
	query := `INSERT INTO audit_records (id, ledger_entry_id, wallet_id, user_id, idempotency_key,
		kind, origin, status, amount, fee, balance_after, counterparty, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := tx.Exec(ctx, query,
		a.ID, a.LedgerEntryID, a.WalletID, a.UserID, a.IdempotencyKey,
		a.Kind, a.Origin, a.Status, a.Amount, a.Fee, a.BalanceAfter,
		a.Counterparty, a.Description, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// UpdateStatus keeps the projection in step with its ledger entry.
func (r *AuditRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, ledgerEntryID uuid.UUID, status domain.EntryStatus) error {
	query := `UPDATE audit_records SET status = $1 WHERE ledger_entry_id = $2`

	tag, err := tx.Exec(ctx, query, status, ledgerEntryID)
	if err != nil {
		return fmt.Errorf("update audit status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("audit record not found for entry: %s", ledgerEntryID)
	}
	return nil
}

// GetByIdempotencyKey fetches an audit record by its ledger idempotency key.
func (r *AuditRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.AuditRecord, error) {
	query := `SELECT id, ledger_entry_id, wallet_id, user_id, idempotency_key,
		kind, origin, status, amount, fee, balance_after, counterparty, description, created_at
		FROM audit_records WHERE idempotency_key = $1`

	a := &domain.AuditRecord{}
	err := r.pool.QueryRow(ctx, query, key).Scan(
		&a.ID, &a.LedgerEntryID, &a.WalletID, &a.UserID, &a.IdempotencyKey,
		&a.Kind, &a.Origin, &a.Status, &a.Amount, &a.Fee, &a.BalanceAfter,
		&a.Counterparty, &a.Description, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get audit record: %w", err)
	}
	return a, nil
}

// ListKeysWithoutLedgerEntry returns keys of audit rows whose ledger entry is
// missing. A non-empty result means the projection invariant is broken.
func (r *AuditRepo) ListKeysWithoutLedgerEntry(ctx context.Context) ([]string, error) {
	query := `SELECT ar.idempotency_key FROM audit_records ar
		LEFT JOIN ledger_entries le ON le.id = ar.ledger_entry_id
		WHERE le.id IS NULL
		ORDER BY ar.created_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list audit records without entry: %w", err)
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
