package domain

import (
	"time"

	"github.com/google/uuid"
)

// Wallet holds a user's balance in integer minor units. Balance is the
// available balance: APPLIED entry deltas plus PENDING debit reservations.
// It is mutated only through ledger operations, never by direct writes.
type Wallet struct {
	ID                uuid.UUID `json:"id"`
	UserID            uuid.UUID `json:"user_id"`
	AccountNumber     string    `json:"account_number"` // External funding identifier
	Currency          string    `json:"currency"`
	Balance           int64     `json:"balance"`
	Frozen            bool      `json:"frozen"`
	PinHash           string    `json:"-"` // Argon2id, never expose
	FreeTransfersUsed int       `json:"free_transfers_used"`
	FreeTransfersDay  time.Time `json:"free_transfers_day"` // UTC date the counter belongs to
	LastActivityAt    time.Time `json:"last_activity_at"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// FreeTransfersRemaining returns how many fee-free transfers are left for the
// given day. The counter resets at UTC midnight.
func (w *Wallet) FreeTransfersRemaining(dailyAllowance int, now time.Time) int {
	if dailyAllowance <= 0 {
		return 0
	}
	day := now.UTC().Truncate(24 * time.Hour)
	if !w.FreeTransfersDay.Equal(day) {
		return dailyAllowance
	}
	remaining := dailyAllowance - w.FreeTransfersUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
