package service

import (
	"testing"

	"wallet-ledger-core/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func i64(v int64) *int64 { return &v }
func str(s string) *string { return &s }

func TestFeeCalculator_TierBoundaries(t *testing.T) {
	calc := NewFeeCalculator()
	schedule := &domain.FeeSchedule{
		Version: 1,
		Tiers: []domain.FeeTier{
			{MinAmount: 1000, MaxAmount: i64(5000), FixedFee: i64(50), Active: true},
			{MinAmount: 5001, MaxAmount: nil, FixedFee: i64(100), Active: true},
		},
	}

	tests := []struct {
		amount int64
		want   int64
	}{
		{999, 0},    // below the first tier, no match
		{1000, 50},  // inclusive lower bound
		{5000, 50},  // inclusive upper bound
		{5001, 100}, // next tier
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, calc.Calculate(schedule, tt.amount, domain.TransferKindBankTransfer, "paygate"), "amount %d", tt.amount)
	}
}

func TestFeeCalculator_RulePrecedence(t *testing.T) {
	calc := NewFeeCalculator()
	schedule := &domain.FeeSchedule{
		Rules: []domain.FeeRule{
			{Provider: str("paygate"), Kind: domain.TransferKindBankTransfer, FixedFee: i64(25), Active: true},
			{Provider: nil, Kind: domain.TransferKindBankTransfer, FixedFee: i64(40), Active: true},
		},
		Tiers: []domain.FeeTier{
			{MinAmount: 0, FixedFee: i64(99), Active: true},
		},
	}

	// Provider+kind rule beats kind-only rule and tiers.
	assert.Equal(t, int64(25), calc.Calculate(schedule, 2000, domain.TransferKindBankTransfer, "paygate"))
	// Other provider falls back to the kind-only rule.
	assert.Equal(t, int64(40), calc.Calculate(schedule, 2000, domain.TransferKindBankTransfer, "switchpay"))
	// A kind with no rule falls through to the tier table.
	assert.Equal(t, int64(99), calc.Calculate(schedule, 2000, domain.TransferKindBillPayment, "paygate"))
}

func TestFeeCalculator_InactiveRuleSkipped(t *testing.T) {
	calc := NewFeeCalculator()
	schedule := &domain.FeeSchedule{
		Rules: []domain.FeeRule{
			{Kind: domain.TransferKindBankTransfer, FixedFee: i64(500), Active: false},
		},
	}
	assert.Equal(t, int64(0), calc.Calculate(schedule, 2000, domain.TransferKindBankTransfer, ""))
}

func TestFeeCalculator_PercentageAndClamps(t *testing.T) {
	calc := NewFeeCalculator()
	// 1.5% = 150 bps, clamped to [100, 2000].
	schedule := &domain.FeeSchedule{
		Rules: []domain.FeeRule{
			{Kind: domain.TransferKindBankTransfer, PercentBps: i64(150), MinFee: i64(100), MaxFee: i64(2000), Active: true},
		},
	}

	// 1.5% of 10000 = 150, inside the clamp.
	assert.Equal(t, int64(150), calc.Calculate(schedule, 10_000, domain.TransferKindBankTransfer, ""))
	// 1.5% of 1000 = 15, clamped up to 100.
	assert.Equal(t, int64(100), calc.Calculate(schedule, 1000, domain.TransferKindBankTransfer, ""))
	// 1.5% of 1,000,000 = 15,000, clamped down to 2000.
	assert.Equal(t, int64(2000), calc.Calculate(schedule, 1_000_000, domain.TransferKindBankTransfer, ""))
}

func TestFeeCalculator_ProviderTierPreferred(t *testing.T) {
	calc := NewFeeCalculator()
	schedule := &domain.FeeSchedule{
		Tiers: []domain.FeeTier{
			{Provider: nil, MinAmount: 0, FixedFee: i64(80), Active: true},
			{Provider: str("paygate"), MinAmount: 0, FixedFee: i64(30), Active: true},
		},
	}

	assert.Equal(t, int64(30), calc.Calculate(schedule, 500, domain.TransferKindBankTransfer, "paygate"))
	assert.Equal(t, int64(80), calc.Calculate(schedule, 500, domain.TransferKindBankTransfer, "switchpay"))
}

func TestFeeCalculator_HighestMatchingMinimumWins(t *testing.T) {
	calc := NewFeeCalculator()
	schedule := &domain.FeeSchedule{
		Tiers: []domain.FeeTier{
			{MinAmount: 0, FixedFee: i64(10), Active: true},
			{MinAmount: 1000, FixedFee: i64(20), Active: true},
			{MinAmount: 10_000, FixedFee: i64(30), Active: true},
		},
	}

	assert.Equal(t, int64(10), calc.Calculate(schedule, 500, domain.TransferKindBankTransfer, ""))
	assert.Equal(t, int64(20), calc.Calculate(schedule, 5000, domain.TransferKindBankTransfer, ""))
	assert.Equal(t, int64(30), calc.Calculate(schedule, 50_000, domain.TransferKindBankTransfer, ""))
}

func TestFeeCalculator_QuoteWithAllowance(t *testing.T) {
	calc := NewFeeCalculator()
	schedule := &domain.FeeSchedule{
		Version: 7,
		Rules: []domain.FeeRule{
			{Kind: domain.TransferKindBankTransfer, FixedFee: i64(50), Active: true},
		},
	}

	// Free transfer remaining short-circuits everything to zero.
	quote := calc.QuoteWithAllowance(schedule, 2000, domain.TransferKindBankTransfer, "paygate", 2)
	assert.Equal(t, int64(0), quote.Fee)
	assert.True(t, quote.UsedFreeTransfer)
	assert.Equal(t, int64(7), quote.ScheduleVersion)

	// Allowance exhausted: normal evaluation.
	quote = calc.QuoteWithAllowance(schedule, 2000, domain.TransferKindBankTransfer, "paygate", 0)
	assert.Equal(t, int64(50), quote.Fee)
	assert.False(t, quote.UsedFreeTransfer)
}

func TestFeeCalculator_NilScheduleAndNoMatch(t *testing.T) {
	calc := NewFeeCalculator()
	assert.Equal(t, int64(0), calc.Calculate(nil, 2000, domain.TransferKindBankTransfer, ""))
	assert.Equal(t, int64(0), calc.Calculate(&domain.FeeSchedule{}, 2000, domain.TransferKindBankTransfer, ""))
}
