package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditRecord is the denormalized reporting projection of a LedgerEntry.
// It is derived, never independently written: every row is produced from
// exactly one ledger entry, in the same transaction, keyed by the same
// idempotency key.
type AuditRecord struct {
	ID             uuid.UUID   `json:"id"`
	LedgerEntryID  uuid.UUID   `json:"ledger_entry_id"`
	WalletID       uuid.UUID   `json:"wallet_id"`
	UserID         uuid.UUID   `json:"user_id"`
	IdempotencyKey string      `json:"idempotency_key"`
	Kind           EntryKind   `json:"kind"`
	Origin         EntryOrigin `json:"origin"`
	Status         EntryStatus `json:"status"`
	Amount         int64       `json:"amount"`
	Fee            int64       `json:"fee"`
	BalanceAfter   int64       `json:"balance_after"`
	Counterparty   string      `json:"counterparty,omitempty"` // account@bank or wallet ID
	Description    string      `json:"description,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ProjectAuditRecord builds the audit projection for a ledger entry.
func ProjectAuditRecord(entry *LedgerEntry, userID uuid.UUID) *AuditRecord {
	counterparty := ""
	switch {
	case entry.CounterpartyWallet != nil:
		counterparty = entry.CounterpartyWallet.String()
	case entry.CounterpartyAccount != "":
		counterparty = entry.CounterpartyAccount
		if entry.CounterpartyBank != "" {
			counterparty += "@" + entry.CounterpartyBank
		}
	}
	return &AuditRecord{
		ID:             uuid.New(),
		LedgerEntryID:  entry.ID,
		WalletID:       entry.WalletID,
		UserID:         userID,
		IdempotencyKey: entry.IdempotencyKey,
		Kind:           entry.Kind,
		Origin:         entry.Origin,
		Status:         entry.Status,
		Amount:         entry.Amount,
		Fee:            entry.Fee,
		BalanceAfter:   entry.BalanceAfter,
		Counterparty:   counterparty,
		Description:    entry.Description,
		CreatedAt:      entry.CreatedAt,
	}
}
