package service

import (
	"wallet-ledger-core/internal/core/domain"
	"wallet-ledger-core/internal/core/ports"
)

// FeeCalculatorImpl implements ports.FeeCalculator. It is a pure function
// over an explicit schedule snapshot; it never reads ambient configuration.
type FeeCalculatorImpl struct{}

// NewFeeCalculator creates a new FeeCalculatorImpl.
func NewFeeCalculator() *FeeCalculatorImpl {
	return &FeeCalculatorImpl{}
}

// Calculate evaluates the fee for an amount. Precedence: provider+kind rule,
// then kind-only rule, then the tier table, then zero.
func (c *FeeCalculatorImpl) Calculate(schedule *domain.FeeSchedule, amount int64, kind domain.TransferKind, provider string) int64 {
	if schedule == nil || amount <= 0 {
		return 0
	}

	if rule := findRule(schedule.Rules, kind, provider); rule != nil {
		return evalFee(amount, rule.FixedFee, rule.PercentBps, rule.MinFee, rule.MaxFee)
	}
	if rule := findRule(schedule.Rules, kind, ""); rule != nil {
		return evalFee(amount, rule.FixedFee, rule.PercentBps, rule.MinFee, rule.MaxFee)
	}
	if tier := findTier(schedule.Tiers, amount, provider); tier != nil {
		return evalFee(amount, tier.FixedFee, tier.PercentBps, tier.MinFee, tier.MaxFee)
	}
	return 0
}

// QuoteWithAllowance applies the daily free-transfer short-circuit ahead of
// any rule or tier lookup. The caller consumes the allowance atomically with
// the debit it guards.
func (c *FeeCalculatorImpl) QuoteWithAllowance(schedule *domain.FeeSchedule, amount int64, kind domain.TransferKind, provider string, freeRemaining int) ports.FeeQuote {
	var version int64
	if schedule != nil {
		version = schedule.Version
	}
	if freeRemaining > 0 {
		return ports.FeeQuote{Fee: 0, ScheduleVersion: version, UsedFreeTransfer: true}
	}
	return ports.FeeQuote{
		Fee:             c.Calculate(schedule, amount, kind, provider),
		ScheduleVersion: version,
	}
}

// findRule returns the first active rule matching kind and provider.
// provider == "" selects global (provider-less) rules only.
func findRule(rules []domain.FeeRule, kind domain.TransferKind, provider string) *domain.FeeRule {
	for i := range rules {
		r := &rules[i]
		if !r.Active || r.Kind != kind {
			continue
		}
		if provider == "" {
			if r.Provider == nil {
				return r
			}
			continue
		}
		if r.Provider != nil && *r.Provider == provider {
			return r
		}
	}
	return nil
}

// findTier selects the matching tier: provider-specific tiers beat global
// ones, and among candidates the highest matching minimum wins.
func findTier(tiers []domain.FeeTier, amount int64, provider string) *domain.FeeTier {
	var best *domain.FeeTier
	for i := range tiers {
		t := &tiers[i]
		if !t.Matches(amount) {
			continue
		}
		if t.Provider != nil && *t.Provider != provider {
			continue
		}
		if best == nil {
			best = t
			continue
		}
		bestScoped := best.Provider != nil
		tScoped := t.Provider != nil
		switch {
		case tScoped && !bestScoped:
			best = t
		case tScoped == bestScoped && t.MinAmount > best.MinAmount:
			best = t
		}
	}
	return best
}

// evalFee computes fixed + percentage components and clamps the result.
// Percentages are basis points: amount * bps / 10000.
func evalFee(amount int64, fixed, percentBps, minFee, maxFee *int64) int64 {
	var fee int64
	if fixed != nil {
		fee += *fixed
	}
	if percentBps != nil {
		fee += amount * *percentBps / 10_000
	}
	if minFee != nil && fee < *minFee {
		fee = *minFee
	}
	if maxFee != nil && fee > *maxFee {
		fee = *maxFee
	}
	if fee < 0 {
		return 0
	}
	return fee
}
