package evidence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/archwatch/sentinel/internal/storage/models"
	"github.com/archwatch/sentinel/internal/trend"
)

// DecayOne runs one trend through the daily decay step under a row
// lock, serializing against any concurrent evidence application on
// the same row — spec.md §4.5 "Decay worker": new_lo = baseline_lo +
// (current_lo - baseline_lo) × 0.5^(days/half_life), where days is the
// fractional time since the trend's updated_at. Returns the unchanged
// trend only when no time has passed (days <= 0); repeated calls within
// a day each decay by the time elapsed since the previous update, which
// by the semigroup property of the formula totals the same as one call
// over the whole interval.
func (l *Ledger) DecayOne(ctx context.Context, trendID uuid.UUID, now time.Time) (models.Trend, error) {
	var updated models.Trend
	err := l.db.WithTx(ctx, func(tx pgx.Tx) error {
		t, err := l.trends.LockForDecay(ctx, tx, trendID)
		if err != nil {
			return fmt.Errorf("evidence: lock trend for decay: %w", err)
		}

		days := now.Sub(t.UpdatedAt).Hours() / 24
		if days <= 0 {
			updated = t
			return nil
		}

		newLogOdds := trend.Decay(t.BaselineLogOdds, t.CurrentLogOdds, days, t.DecayHalfLifeDays)
		if err := l.trends.SetLogOdds(ctx, tx, t.ID, newLogOdds); err != nil {
			return fmt.Errorf("evidence: set decayed log-odds: %w", err)
		}
		t.CurrentLogOdds = newLogOdds
		updated = t
		return nil
	})
	if err != nil {
		return models.Trend{}, err
	}
	return updated, nil
}

// Snapshot records the current log-odds into the hourly time-series
// hypertable (spec.md §3 TrendSnapshot) together with eventCount24h,
// which the caller supplies; the snapshot worker computes it with
// EvidenceRepo.CountSince over the trailing 24h.
func (l *Ledger) Snapshot(ctx context.Context, trendID uuid.UUID, at time.Time, logOdds float64, eventCount24h int) error {
	return l.snapshots.Insert(ctx, models.TrendSnapshot{
		TrendID:       trendID,
		Timestamp:     at,
		LogOdds:       logOdds,
		EventCount24h: eventCount24h,
	})
}
