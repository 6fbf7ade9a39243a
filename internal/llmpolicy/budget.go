package llmpolicy

import (
	"context"
	"errors"
	"time"

	"github.com/archwatch/sentinel/internal/config"
	"github.com/archwatch/sentinel/internal/storage"
)

// ErrBudgetExceeded is raised when a reservation would push today's
// per-tier call, token, or cost counters past their configured caps
// (spec.md §4.4 step 1).
var ErrBudgetExceeded = errors.New("llmpolicy: budget exceeded")

// Reservation is the outcome of a successful Reserve call. Callers
// must invoke Settle (success) or Release (failure/abort) exactly
// once to reconcile the provisional counters with the true usage.
type Reservation struct {
	tier           string
	estInputTokens int64
	estOutputTokens int64
	estCostUSD     float64
}

// BudgetGuard adapts the teacher's reserve-then-settle reservation
// pattern (metering.ReservationStore) onto the durable per-tier daily
// counters in Postgres: instead of an in-memory map keyed by
// reservation ID, the reservation IS the atomic increment itself —
// IncrementAndGet's ON CONFLICT...RETURNING makes the bump and the
// read-back a single round trip, so there is no read-then-write
// window for a concurrent caller to race through.
type BudgetGuard struct {
	usage *storage.ApiUsageRepo
	cfg   config.LLMSettings
}

func NewBudgetGuard(usage *storage.ApiUsageRepo, cfg config.LLMSettings) *BudgetGuard {
	return &BudgetGuard{usage: usage, cfg: cfg}
}

func (g *BudgetGuard) caps(tier string) (maxCalls int, maxTokens int64) {
	if tier == TierExtract {
		return g.cfg.Tier2MaxDailyCalls, g.cfg.Tier2MaxDailyTokens
	}
	return g.cfg.Tier1MaxDailyCalls, g.cfg.Tier1MaxDailyTokens
}

// Reserve atomically bumps today's per-tier counters by the estimated
// token cost of one call and checks the result against the configured
// caps. If any cap is breached, the increment is rolled back (a
// symmetric negative increment) before ErrBudgetExceeded is returned,
// so a denied call never leaves a phantom reservation behind.
func (g *BudgetGuard) Reserve(ctx context.Context, tier string, estInputTokens, estOutputTokens int64, estCostUSD float64) (*Reservation, error) {
	maxCalls, maxTokens := g.caps(tier)
	today := time.Now().UTC()

	newCalls, err := g.usage.IncrementAndGet(ctx, today, tier, 1, estInputTokens, estOutputTokens, estCostUSD)
	if err != nil {
		return nil, err
	}

	u, err := g.usage.Get(ctx, today, tier)
	if err != nil {
		g.rollback(ctx, today, tier, estInputTokens, estOutputTokens, estCostUSD)
		return nil, err
	}

	exceeded := (maxCalls > 0 && int(newCalls) > maxCalls) ||
		(maxTokens > 0 && u.InputTokens+u.OutputTokens > maxTokens) ||
		(g.cfg.MaxDailyCostUSD > 0 && u.EstimatedCostUSD > g.cfg.MaxDailyCostUSD)
	if exceeded {
		g.rollback(ctx, today, tier, estInputTokens, estOutputTokens, estCostUSD)
		return nil, ErrBudgetExceeded
	}

	return &Reservation{tier: tier, estInputTokens: estInputTokens, estOutputTokens: estOutputTokens, estCostUSD: estCostUSD}, nil
}

func (g *BudgetGuard) rollback(ctx context.Context, date time.Time, tier string, inputTokens, outputTokens int64, costUSD float64) {
	// Best-effort: a failed rollback leaves the denied reservation's
	// estimate in today's counters, which only makes future calls more
	// conservative, never less — safe to ignore the error here.
	_, _ = g.usage.IncrementAndGet(ctx, date, tier, -1, -inputTokens, -outputTokens, -costUSD)
}

// Settle reconciles a reservation's estimate with the call's actual
// token usage and cost once the response is known (spec.md §4.4 step
// 6), adjusting today's counters by the delta rather than re-adding
// the full actual amount on top of the estimate.
func (g *BudgetGuard) Settle(ctx context.Context, r *Reservation, actualInputTokens, actualOutputTokens int64, actualCostUSD float64) error {
	today := time.Now().UTC()
	_, err := g.usage.IncrementAndGet(ctx, today, r.tier, 0,
		actualInputTokens-r.estInputTokens,
		actualOutputTokens-r.estOutputTokens,
		actualCostUSD-r.estCostUSD)
	return err
}

// Release cancels a reservation without recording any usage — the
// Tier-1/Tier-2 runners call it when both the primary and secondary
// models failed (the pricing precheck runs before Reserve, so it never
// needs a Release).
func (g *BudgetGuard) Release(ctx context.Context, r *Reservation) error {
	today := time.Now().UTC()
	g.rollback(ctx, today, r.tier, r.estInputTokens, r.estOutputTokens, r.estCostUSD)
	return nil
}
