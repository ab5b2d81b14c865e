package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-ledger-core/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// FeeConfigRepo implements ports.FeeConfigRepository. Admin CRUD over the fee
// tables lives outside this module; this repo only snapshots the active
// schedule version with its rules and tiers.
type FeeConfigRepo struct {
	pool Pool
}

// NewFeeConfigRepo creates a new FeeConfigRepo.
func NewFeeConfigRepo(pool Pool) *FeeConfigRepo {
	return &FeeConfigRepo{pool: pool}
}

// GetActiveSchedule loads the current fee schedule as an immutable snapshot.
func (r *FeeConfigRepo) GetActiveSchedule(ctx context.Context) (*domain.FeeSchedule, error) {
	schedule := &domain.FeeSchedule{}

	err := r.pool.QueryRow(ctx,
		`SELECT version, free_transfers_per_day FROM fee_schedules WHERE active = TRUE`,
	).Scan(&schedule.Version, &schedule.FreeTransfersPerDay)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No configured schedule means no fees, not an error.
			return schedule, nil
		}
		return nil, fmt.Errorf("get active fee schedule: %w", err)
	}

	rules, err := r.loadRules(ctx, schedule.Version)
	if err != nil {
		return nil, err
	}
	schedule.Rules = rules

	tiers, err := r.loadTiers(ctx, schedule.Version)
	if err != nil {
		return nil, err
	}
	schedule.Tiers = tiers

	return schedule, nil
}

func (r *FeeConfigRepo) loadRules(ctx context.Context, version int64) ([]domain.FeeRule, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, provider, kind, fixed_fee, percent_bps, min_fee, max_fee, active
		FROM fee_rules WHERE schedule_version = $1`, version)
	if err != nil {
		return nil, fmt.Errorf("load fee rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.FeeRule
	for rows.Next() {
		rule := domain.FeeRule{}
		err := rows.Scan(&rule.ID, &rule.Provider, &rule.Kind,
			&rule.FixedFee, &rule.PercentBps, &rule.MinFee, &rule.MaxFee, &rule.Active)
		if err != nil {
			return nil, fmt.Errorf("scan fee rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (r *FeeConfigRepo) loadTiers(ctx context.Context, version int64) ([]domain.FeeTier, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, provider, min_amount, max_amount, fixed_fee, percent_bps, min_fee, max_fee, active
		FROM fee_tiers WHERE schedule_version = $1 ORDER BY min_amount`, version)
	if err != nil {
		return nil, fmt.Errorf("load fee tiers: %w", err)
	}
	defer rows.Close()

	var tiers []domain.FeeTier
	for rows.Next() {
		tier := domain.FeeTier{}
		err := rows.Scan(&tier.ID, &tier.Provider, &tier.MinAmount, &tier.MaxAmount,
			&tier.FixedFee, &tier.PercentBps, &tier.MinFee, &tier.MaxFee, &tier.Active)
		if err != nil {
			return nil, fmt.Errorf("scan fee tier: %w", err)
		}
		tiers = append(tiers, tier)
	}
	return tiers, rows.Err()
}
