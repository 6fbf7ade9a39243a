package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/archwatch/sentinel/internal/storage/models"
)

// ApiUsageRepo maintains the daily per-tier counters the budget guard
// reads before every LLM call (spec.md §4.4 Tier-1/Tier-2 budgets).
type ApiUsageRepo struct{ db *DB }

func NewApiUsageRepo(db *DB) *ApiUsageRepo { return &ApiUsageRepo{db: db} }

// IncrementAndGet atomically bumps today's counters for tier and
// returns the post-increment call count, letting the caller decide
// whether the new total breaches the budget cap without a separate
// read (spec.md §4.4's reserve-then-settle pattern reserves against
// this count before the call, then calls IncrementAndGet again with
// the difference between the true token/cost figures and the estimate
// once the response is known).
func (r *ApiUsageRepo) IncrementAndGet(ctx context.Context, date time.Time, tier string, calls, inputTokens, outputTokens int64, costUSD float64) (int64, error) {
	var newCalls int64
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO api_usage (date, tier, calls, input_tokens, output_tokens, estimated_cost_usd)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (date, tier) DO UPDATE SET
			calls = api_usage.calls + EXCLUDED.calls,
			input_tokens = api_usage.input_tokens + EXCLUDED.input_tokens,
			output_tokens = api_usage.output_tokens + EXCLUDED.output_tokens,
			estimated_cost_usd = api_usage.estimated_cost_usd + EXCLUDED.estimated_cost_usd
		RETURNING calls`,
		date.Truncate(24*time.Hour), tier, calls, inputTokens, outputTokens, costUSD).Scan(&newCalls)
	return newCalls, err
}

func (r *ApiUsageRepo) Get(ctx context.Context, date time.Time, tier string) (models.ApiUsage, error) {
	var u models.ApiUsage
	err := r.db.Pool.QueryRow(ctx, `
		SELECT date, tier, calls, input_tokens, output_tokens, estimated_cost_usd
		FROM api_usage WHERE date = $1 AND tier = $2`,
		date.Truncate(24*time.Hour), tier).
		Scan(&u.Date, &u.Tier, &u.Calls, &u.InputTokens, &u.OutputTokens, &u.EstimatedCostUSD)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ApiUsage{Date: date, Tier: tier}, nil // zero usage, not an error
	}
	if err != nil {
		return models.ApiUsage{}, err
	}
	return u, nil
}

func (r *ApiUsageRepo) TotalCostSince(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(estimated_cost_usd), 0) FROM api_usage WHERE date >= $1`,
		since.Truncate(24*time.Hour)).Scan(&total)
	return total, err
}
