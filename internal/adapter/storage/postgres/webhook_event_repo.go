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

const webhookEventColumns = `id, provider, event_type, reference, account_number, amount, currency,
	signature, raw_payload, state, reject_reason, ledger_entry_id, attempts, received_at, processed_at`

// WebhookEventRepo implements ports.WebhookEventRepository. Every inbound
// delivery gets its own row; duplicates are resolved by state, not by unique
// constraints.
type WebhookEventRepo struct {
	pool Pool
}

// NewWebhookEventRepo creates a new WebhookEventRepo.
func NewWebhookEventRepo(pool Pool) *WebhookEventRepo {
	return &WebhookEventRepo{pool: pool}
}

func scanWebhookEvent(row pgx.Row) (*domain.WebhookEvent, error) {
	e := &domain.WebhookEvent{}
	err := row.Scan(
		&e.ID, &e.Provider, &e.EventType, &e.Reference, &e.AccountNumber, &e.Amount, &e.Currency,
		&e.Signature, &e.RawPayload, &e.State, &e.RejectReason, &e.LedgerEntryID,
		&e.Attempts, &e.ReceivedAt, &e.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// Create persists a delivery before any processing.
func (r *WebhookEventRepo) Create(ctx context.Context, e *domain.WebhookEvent) error {
	query := `INSERT INTO webhook_events (id, provider, event_type, reference, account_number,
		amount, currency, signature, raw_payload, state, reject_reason, ledger_entry_id,
		attempts, received_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.Provider, e.EventType, e.Reference, e.AccountNumber,
		e.Amount, e.Currency, e.Signature, e.RawPayload, e.State, e.RejectReason,
		e.LedgerEntryID, e.Attempts, e.ReceivedAt, e.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

// GetByID fetches one stored delivery.
func (r *WebhookEventRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error) {
	query := `SELECT ` + webhookEventColumns + ` FROM webhook_events WHERE id = $1`

	e, err := scanWebhookEvent(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get webhook event: %w", err)
	}
	return e, nil
}

// GetAppliedByReference returns a prior APPLIED delivery for the same
// (provider, reference), nil when none exists.
func (r *WebhookEventRepo) GetAppliedByReference(ctx context.Context, provider, reference string) (*domain.WebhookEvent, error) {
	query := `SELECT ` + webhookEventColumns + ` FROM webhook_events
		WHERE provider = $1 AND reference = $2 AND state = 'APPLIED'
		ORDER BY received_at LIMIT 1`

	e, err := scanWebhookEvent(r.pool.QueryRow(ctx, query, provider, reference))
	if err != nil {
		return nil, fmt.Errorf("get applied event by reference: %w", err)
	}
	return e, nil
}

// UpdateState moves a delivery through its lifecycle.
func (r *WebhookEventRepo) UpdateState(ctx context.Context, id uuid.UUID, state domain.WebhookState, reason string, ledgerEntryID *uuid.UUID) error {
	query := `UPDATE webhook_events
		SET state = $1, reject_reason = $2, ledger_entry_id = COALESCE($3, ledger_entry_id), processed_at = NOW()
		WHERE id = $4`

	tag, err := r.pool.Exec(ctx, query, state, reason, ledgerEntryID, id)
	if err != nil {
		return fmt.Errorf("update webhook event state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhook event not found: %s", id)
	}
	return nil
}

// IncrementAttempts records one processing retry.
func (r *WebhookEventRepo) IncrementAttempts(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE webhook_events SET attempts = attempts + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment webhook attempts: %w", err)
	}
	return nil
}

// ListStuck returns non-terminal events received before the cutoff, for the
// reconciliation resubmit sweep.
func (r *WebhookEventRepo) ListStuck(ctx context.Context, cutoff time.Time) ([]domain.WebhookEvent, error) {
	query := `SELECT ` + webhookEventColumns + ` FROM webhook_events
		WHERE state IN ('RECEIVED', 'VALIDATED') AND received_at < $1
		ORDER BY received_at`

	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stuck webhook events: %w", err)
	}
	defer rows.Close()

	var events []domain.WebhookEvent
	for rows.Next() {
		e := domain.WebhookEvent{}
		err := rows.Scan(
			&e.ID, &e.Provider, &e.EventType, &e.Reference, &e.AccountNumber, &e.Amount, &e.Currency,
			&e.Signature, &e.RawPayload, &e.State, &e.RejectReason, &e.LedgerEntryID,
			&e.Attempts, &e.ReceivedAt, &e.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
