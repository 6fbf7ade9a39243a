// Package calibration implements spec.md §4.7's outcome tracking,
// Brier/bucket scoring, and drift alerting over the trend engine's
// historical predictions.
package calibration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/archwatch/sentinel/internal/config"
	"github.com/archwatch/sentinel/internal/storage"
	"github.com/archwatch/sentinel/internal/storage/models"
	"github.com/archwatch/sentinel/internal/trend"
)

// Recorder seeds and resolves TrendOutcome rows.
type Recorder struct {
	outcomes  *storage.OutcomeRepo
	snapshots *storage.SnapshotRepo
	bounds    trend.Bounds
}

func NewRecorder(outcomes *storage.OutcomeRepo, snapshots *storage.SnapshotRepo, trendCfg config.TrendSettings) *Recorder {
	return &Recorder{
		outcomes:  outcomes,
		snapshots: snapshots,
		bounds:    trend.Bounds{MinProbability: trendCfg.MinProbability, MaxProbability: trendCfg.MaxProbability},
	}
}

// RecordPrediction seeds a new `ongoing` TrendOutcome for trendID,
// pinning its predicted_prob/risk/band against the historical snapshot
// closest to (and at or before) predictionDate — spec.md §4.7 — rather
// than whatever the trend's live value happens to be at call time.
func (r *Recorder) RecordPrediction(ctx context.Context, trendID uuid.UUID, predictionDate time.Time) (models.TrendOutcome, error) {
	snap, ok, err := r.snapshots.Latest(ctx, trendID, predictionDate)
	if err != nil {
		return models.TrendOutcome{}, fmt.Errorf("calibration: load snapshot: %w", err)
	}
	if !ok {
		return models.TrendOutcome{}, fmt.Errorf("calibration: no snapshot at or before %s for trend %s", predictionDate, trendID)
	}

	prob := trend.Probability(snap.LogOdds, r.bounds)
	o := &models.TrendOutcome{
		TrendID:        trendID,
		PredictionDate: predictionDate,
		PredictedProb:  prob,
		PredictedRisk:  string(trend.ClassifyRisk(prob)),
		PredictedBand:  trend.ProbabilityBand(prob),
		Outcome:        models.OutcomeOngoing,
	}
	if err := r.outcomes.Insert(ctx, o); err != nil {
		return models.TrendOutcome{}, fmt.Errorf("calibration: insert outcome: %w", err)
	}
	return *o, nil
}

// Resolve scores a pending outcome against its eventual real-world
// result and persists the Brier score — (predicted - actual)², per
// spec.md §3 TrendOutcome. actual must be a resolved kind
// (OutcomeKind.Resolved()) or superseded; ongoing is rejected, and a
// superseded outcome is stored with a Brier score of 0.
func (r *Recorder) Resolve(ctx context.Context, outcomeID uuid.UUID, actual models.OutcomeKind, at time.Time) error {
	if !actual.Resolved() && actual != models.OutcomeSuperseded {
		return fmt.Errorf("calibration: cannot resolve outcome %s to non-terminal state %q", outcomeID, actual)
	}
	o, err := r.outcomes.Get(ctx, outcomeID)
	if err != nil {
		return fmt.Errorf("calibration: load outcome: %w", err)
	}
	var brier float64
	if actual.Resolved() {
		diff := o.PredictedProb - actual.Actual()
		brier = diff * diff
	}
	return r.outcomes.Resolve(ctx, outcomeID, actual, at, brier)
}
