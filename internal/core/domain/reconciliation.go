package domain

import (
	"time"

	"github.com/google/uuid"
)

// DiscrepancyType classifies what a reconciliation run found.
type DiscrepancyType string

const (
	DiscrepancyOrphanAudit     DiscrepancyType = "ORPHAN_AUDIT_RECORD"
	DiscrepancyOrphanLedger    DiscrepancyType = "ORPHAN_LEDGER_ENTRY"
	DiscrepancyBalanceMismatch DiscrepancyType = "BALANCE_MISMATCH"
	DiscrepancyStuckEvent      DiscrepancyType = "STUCK_WEBHOOK_EVENT"
	DiscrepancyStuckTransfer   DiscrepancyType = "STUCK_PENDING_TRANSFER"
)

// Discrepancy is one structured finding, emitted for downstream alerting.
// Findings are reported, never silently repaired.
type Discrepancy struct {
	Type           DiscrepancyType `json:"type"`
	WalletID       *uuid.UUID      `json:"wallet_id,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Expected       int64           `json:"expected,omitempty"`
	Actual         int64           `json:"actual,omitempty"`
	Detail         string          `json:"detail,omitempty"`
	DetectedAt     time.Time       `json:"detected_at"`
}

// ReconciliationReport summarizes one run.
type ReconciliationReport struct {
	RunID             uuid.UUID     `json:"run_id"`
	StartedAt         time.Time     `json:"started_at"`
	FinishedAt        time.Time     `json:"finished_at"`
	WalletsChecked    int           `json:"wallets_checked"`
	EventsResubmitted int           `json:"events_resubmitted"`
	Discrepancies     []Discrepancy `json:"discrepancies"`
}

// Clean returns true when the run found nothing wrong.
func (r *ReconciliationReport) Clean() bool {
	return len(r.Discrepancies) == 0
}
