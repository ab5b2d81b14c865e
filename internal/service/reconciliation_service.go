package service

import (
	"context"
	"fmt"
	"time"

	"wallet-ledger-core/internal/core/domain"
	"wallet-ledger-core/internal/core/ports"
	"wallet-ledger-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReconcilerConfig sets the age cutoffs for stuck-work sweeps.
type ReconcilerConfig struct {
	StuckEventAfter   time.Duration
	PendingDebitAfter time.Duration
}

// ReconcilerImpl implements ports.Reconciler. A run cross-checks the ledger
// against the audit projection, recomputes every wallet balance from entries,
// and resubmits stuck webhook events. Findings are reported, never repaired.
type ReconcilerImpl struct {
	walletRepo ports.WalletRepository
	ledgerRepo ports.LedgerRepository
	auditRepo  ports.AuditRepository
	eventRepo  ports.WebhookEventRepository
	pipeline   ports.WebhookPipeline
	cfg        ReconcilerConfig
	log        zerolog.Logger
}

// NewReconciler creates a new ReconcilerImpl.
func NewReconciler(
	walletRepo ports.WalletRepository,
	ledgerRepo ports.LedgerRepository,
	auditRepo ports.AuditRepository,
	eventRepo ports.WebhookEventRepository,
	pipeline ports.WebhookPipeline,
	cfg ReconcilerConfig,
	log zerolog.Logger,
) *ReconcilerImpl {
	if cfg.StuckEventAfter <= 0 {
		cfg.StuckEventAfter = 10 * time.Minute
	}
	if cfg.PendingDebitAfter <= 0 {
		cfg.PendingDebitAfter = 30 * time.Minute
	}
	return &ReconcilerImpl{
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		auditRepo:  auditRepo,
		eventRepo:  eventRepo,
		pipeline:   pipeline,
		cfg:        cfg,
		log:        log,
	}
}

// Run executes one full reconciliation pass.
func (s *ReconcilerImpl) Run(ctx context.Context) (*domain.ReconciliationReport, error) {
	report := &domain.ReconciliationReport{
		RunID:     uuid.New(),
		StartedAt: time.Now().UTC(),
	}
	log := s.log.With().Str("run_id", report.RunID.String()).Logger()
	log.Info().Msg("reconciliation run started")

	if err := s.checkOrphans(ctx, report); err != nil {
		return nil, err
	}
	if err := s.checkBalances(ctx, report, log); err != nil {
		return nil, err
	}
	if err := s.resubmitStuckEvents(ctx, report, log); err != nil {
		return nil, err
	}
	if err := s.checkStuckDebits(ctx, report, log); err != nil {
		return nil, err
	}

	report.FinishedAt = time.Now().UTC()
	log.Info().
		Int("wallets_checked", report.WalletsChecked).
		Int("events_resubmitted", report.EventsResubmitted).
		Int("discrepancies", len(report.Discrepancies)).
		Bool("clean", report.Clean()).
		Dur("took", report.FinishedAt.Sub(report.StartedAt)).
		Msg("reconciliation run finished")
	return report, nil
}

// checkOrphans cross-checks the ledger and the audit projection in both
// directions by idempotency key.
func (s *ReconcilerImpl) checkOrphans(ctx context.Context, report *domain.ReconciliationReport) error {
	now := time.Now().UTC()

	missingAudit, err := s.ledgerRepo.ListKeysWithoutAudit(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("list entries without audit: %w", err))
	}
	for _, key := range missingAudit {
		report.Discrepancies = append(report.Discrepancies, domain.Discrepancy{
			Type:           domain.DiscrepancyOrphanLedger,
			IdempotencyKey: key,
			Detail:         "ledger entry has no audit record",
			DetectedAt:     now,
		})
	}

	missingLedger, err := s.auditRepo.ListKeysWithoutLedgerEntry(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("list audit records without entry: %w", err))
	}
	for _, key := range missingLedger {
		report.Discrepancies = append(report.Discrepancies, domain.Discrepancy{
			Type:           domain.DiscrepancyOrphanAudit,
			IdempotencyKey: key,
			Detail:         "audit record has no ledger entry",
			DetectedAt:     now,
		})
	}
	return nil
}

// checkBalances recomputes every wallet's available balance from its entries
// and compares it to the stored balance. A mismatch is the most serious
// finding a run can produce.
func (s *ReconcilerImpl) checkBalances(ctx context.Context, report *domain.ReconciliationReport, log zerolog.Logger) error {
	ids, err := s.walletRepo.ListIDs(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("list wallet ids: %w", err))
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		wallet, err := s.walletRepo.GetByID(ctx, id)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("get wallet %s: %w", id, err))
		}
		if wallet == nil {
			continue
		}
		computed, err := s.ledgerRepo.SumSignedDeltas(ctx, id)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("sum deltas for wallet %s: %w", id, err))
		}
		report.WalletsChecked++

		if computed != wallet.Balance {
			walletID := id
			report.Discrepancies = append(report.Discrepancies, domain.Discrepancy{
				Type:       domain.DiscrepancyBalanceMismatch,
				WalletID:   &walletID,
				Expected:   computed,
				Actual:     wallet.Balance,
				Detail:     "stored balance diverges from ledger recomputation",
				DetectedAt: time.Now().UTC(),
			})
			log.Error().
				Str("wallet_id", id.String()).
				Int64("stored", wallet.Balance).
				Int64("computed", computed).
				Msg("balance mismatch detected")
		}
	}
	return nil
}

// resubmitStuckEvents feeds non-terminal webhook events older than the cutoff
// back through the pipeline. Processing is idempotent, so a resubmission of a
// half-processed event is safe.
func (s *ReconcilerImpl) resubmitStuckEvents(ctx context.Context, report *domain.ReconciliationReport, log zerolog.Logger) error {
	cutoff := time.Now().UTC().Add(-s.cfg.StuckEventAfter)
	stuck, err := s.eventRepo.ListStuck(ctx, cutoff)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("list stuck events: %w", err))
	}

	for i := range stuck {
		event := &stuck[i]
		eventID := event.ID
		report.Discrepancies = append(report.Discrepancies, domain.Discrepancy{
			Type:           domain.DiscrepancyStuckEvent,
			IdempotencyKey: domain.EventIdempotencyKey(event.Provider, event.Reference),
			Detail:         fmt.Sprintf("event %s stuck in state %s", eventID, event.State),
			DetectedAt:     time.Now().UTC(),
		})

		processed, err := s.pipeline.Process(ctx, eventID)
		if err != nil {
			log.Error().Err(err).
				Str("event_id", eventID.String()).
				Msg("stuck event resubmission failed")
			continue
		}
		report.EventsResubmitted++
		log.Info().
			Str("event_id", eventID.String()).
			Str("state", string(processed.State)).
			Msg("stuck event resubmitted")
	}
	return nil
}

// checkStuckDebits flags PENDING debits older than the cutoff. These are
// transfers whose provider outcome never arrived; resolution requires a
// provider status query or an operator decision, so they are only reported.
func (s *ReconcilerImpl) checkStuckDebits(ctx context.Context, report *domain.ReconciliationReport, log zerolog.Logger) error {
	cutoff := time.Now().UTC().Add(-s.cfg.PendingDebitAfter)
	pending, err := s.ledgerRepo.ListPendingOlderThan(ctx, cutoff)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("list pending debits: %w", err))
	}

	for i := range pending {
		entry := &pending[i]
		walletID := entry.WalletID
		report.Discrepancies = append(report.Discrepancies, domain.Discrepancy{
			Type:           domain.DiscrepancyStuckTransfer,
			WalletID:       &walletID,
			IdempotencyKey: entry.IdempotencyKey,
			Actual:         entry.Amount + entry.Fee,
			Detail:         fmt.Sprintf("debit %s pending since %s", entry.ID, entry.CreatedAt.Format(time.RFC3339)),
			DetectedAt:     time.Now().UTC(),
		})
		log.Warn().
			Str("entry_id", entry.ID.String()).
			Str("wallet_id", walletID.String()).
			Int64("reserved", entry.Amount+entry.Fee).
			Time("created_at", entry.CreatedAt).
			Msg("stale pending debit")
	}
	return nil
}
