package evidence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/archwatch/sentinel/internal/trend"
)

// Invalidate marks a ledger row invalidated and applies the reverse
// delta to trends.current_log_odds in the same transaction — spec.md
// §4.5 "Invalidation": the row is never deleted, and the correction
// goes through the same atomic delta path as the original application.
func (l *Ledger) Invalidate(ctx context.Context, evidenceID, feedbackID uuid.UUID, at time.Time) (newLogOdds float64, err error) {
	err = l.db.WithTx(ctx, func(tx pgx.Tx) error {
		row, getErr := l.evidence.Get(ctx, evidenceID)
		if getErr != nil {
			return fmt.Errorf("evidence: load row to invalidate: %w", getErr)
		}
		if row.IsInvalidated {
			newLogOdds = 0
			return fmt.Errorf("evidence: row %s already invalidated", evidenceID)
		}

		if invErr := l.evidence.Invalidate(ctx, tx, evidenceID, feedbackID, at); invErr != nil {
			return fmt.Errorf("evidence: mark invalidated: %w", invErr)
		}

		t, getTrendErr := l.trends.Get(ctx, row.TrendID)
		if getTrendErr != nil {
			return getTrendErr
		}
		bounds := trend.Bounds{MinProbability: l.cfg.MinProbability, MaxProbability: l.cfg.MaxProbability}
		min := trend.LogOdds(l.cfg.MinProbability, bounds)
		max := trend.LogOdds(l.cfg.MaxProbability, bounds)

		lo, applyErr := l.trends.ApplyLogOddsDelta(ctx, tx, t.ID, -row.DeltaLogOdds, min, max)
		if applyErr != nil {
			return fmt.Errorf("evidence: apply reverse delta: %w", applyErr)
		}
		newLogOdds = lo
		return nil
	})
	return newLogOdds, err
}
