package domain

import "github.com/google/uuid"

// TransferKind categorizes fee-bearing operations.
type TransferKind string

const (
	TransferKindBankTransfer TransferKind = "BANK_TRANSFER"
	TransferKindInternal     TransferKind = "INTERNAL"
	TransferKindBillPayment  TransferKind = "BILL_PAYMENT"
	TransferKindAirtimeTopup TransferKind = "AIRTIME_TOPUP"
)

// FeeRule is a fixed or percentage fee for a kind, optionally scoped to one
// provider. Percentages are stored in basis points so no floating point enters
// fee arithmetic.
type FeeRule struct {
	ID         uuid.UUID    `json:"id"`
	Provider   *string      `json:"provider,omitempty"` // nil = any provider
	Kind       TransferKind `json:"kind"`
	FixedFee   *int64       `json:"fixed_fee,omitempty"`
	PercentBps *int64       `json:"percent_bps,omitempty"` // 100 bps = 1%
	MinFee     *int64       `json:"min_fee,omitempty"`
	MaxFee     *int64       `json:"max_fee,omitempty"`
	Active     bool         `json:"active"`
}

// FeeTier is an amount-band fee. Bounds are inclusive on both ends; adjacent
// tiers start at MaxAmount+1. A nil MaxAmount means unbounded.
type FeeTier struct {
	ID         uuid.UUID `json:"id"`
	Provider   *string   `json:"provider,omitempty"` // nil = global
	MinAmount  int64     `json:"min_amount"`
	MaxAmount  *int64    `json:"max_amount,omitempty"`
	FixedFee   *int64    `json:"fixed_fee,omitempty"`
	PercentBps *int64    `json:"percent_bps,omitempty"`
	MinFee     *int64    `json:"min_fee,omitempty"`
	MaxFee     *int64    `json:"max_fee,omitempty"`
	Active     bool      `json:"active"`
}

// Matches reports whether an amount falls inside the tier band.
func (t *FeeTier) Matches(amount int64) bool {
	if !t.Active || amount < t.MinAmount {
		return false
	}
	return t.MaxAmount == nil || amount <= *t.MaxAmount
}

// FeeSchedule is an immutable, versioned snapshot of the fee configuration.
// A calculation never reads "current config"; it receives one snapshot and
// uses it for the whole evaluation.
type FeeSchedule struct {
	Version             int64     `json:"version"`
	Rules               []FeeRule `json:"rules"`
	Tiers               []FeeTier `json:"tiers"`
	FreeTransfersPerDay int       `json:"free_transfers_per_day"`
}
