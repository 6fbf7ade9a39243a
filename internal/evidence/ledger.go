// Package evidence orchestrates the atomic application of scored
// Tier-2 impacts onto the trend ledger — spec.md §4.5 "Applying
// evidence" and §3 TrendEvidence. The arithmetic itself lives in
// internal/trend; this package owns the transactional wiring: gather
// factorization inputs from storage, insert the idempotent ledger row,
// and increment trends.current_log_odds in the same transaction.
package evidence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/archwatch/sentinel/internal/config"
	"github.com/archwatch/sentinel/internal/storage"
	"github.com/archwatch/sentinel/internal/storage/models"
	"github.com/archwatch/sentinel/internal/trend"
)

// Ledger applies and invalidates evidence rows against the trend
// engine's atomic increment path.
type Ledger struct {
	db        *storage.DB
	trends    *storage.TrendRepo
	evidence  *storage.EvidenceRepo
	snapshots *storage.SnapshotRepo
	cfg       config.TrendSettings
}

func New(db *storage.DB, trends *storage.TrendRepo, ev *storage.EvidenceRepo, snapshots *storage.SnapshotRepo, cfg config.TrendSettings) *Ledger {
	return &Ledger{db: db, trends: trends, evidence: ev, snapshots: snapshots, cfg: cfg}
}

// Impact is one scored effect ready to apply, already resolved against
// a known Trend and Indicator (unknown trend/signal routing happens
// upstream in internal/llmpolicy, before this package ever sees an
// impact — see llmpolicy.RouteImpacts).
type Impact struct {
	Trend      models.Trend
	Indicator  models.Indicator
	EventID    uuid.UUID
	Credibility float64 // source.CredibilityMultiplier()

	IndependentSourceWeights []float64
	ContradictionLinks       int

	EventAgeDays float64
	Severity     float64
	Confidence   float64

	Reasoning string
}

// ApplyResult reports what happened for one impact: either the delta
// was newly applied, or the (trend, event, signal_type) tuple already
// had a row and nothing changed (spec.md §4.5's idempotent re-apply).
type ApplyResult struct {
	Applied       bool
	Delta         trend.Delta
	NewLogOdds    float64
	EvidenceID    uuid.UUID
}

// Apply scores one impact and, unless it's a duplicate re-apply,
// inserts the ledger row and increments current_log_odds inside a
// single transaction — spec.md §4.5 "no read-modify-write in
// application code."
func (l *Ledger) Apply(ctx context.Context, at time.Time, imp Impact) (ApplyResult, error) {
	ages, err := l.evidence.AgesForSignal(ctx, imp.Trend.ID, imp.Indicator.SignalType, at)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("evidence: load prior ages: %w", err)
	}

	d := trend.Compute(trend.EvidenceInput{
		BaseWeight:               imp.Indicator.Weight,
		Credibility:              imp.Credibility,
		IndependentSourceWeights: imp.IndependentSourceWeights,
		ContradictionLinks:       imp.ContradictionLinks,
		PriorEvidenceAges:        ages,
		EvidenceAgeDays:          imp.EventAgeDays,
		IndicatorHalfLife:        imp.Trend.HalfLifeFor(imp.Indicator),
		NoveltyFloor:             l.cfg.NoveltyFloor,
		NoveltyCeiling:           l.cfg.NoveltyCeiling,
		NoveltyHalfLifeDays:      l.cfg.NoveltyHalfLife,
		Severity:                 imp.Severity,
		Confidence:               imp.Confidence,
		Direction:                imp.Indicator.Direction.Multiplier(),
		MaxDeltaPerEvent:         l.cfg.MaxDeltaPerEvent,
	})

	row := &models.TrendEvidence{
		TrendID:             imp.Trend.ID,
		EventID:             imp.EventID,
		SignalType:          imp.Indicator.SignalType,
		BaseWeight:          imp.Indicator.Weight,
		Credibility:         imp.Credibility,
		CorroborationFactor: d.CorroborationFactor,
		Novelty:             d.Novelty,
		EvidenceAgeDays:     imp.EventAgeDays,
		TemporalDecayFactor: d.TemporalDecayFactor,
		Severity:            imp.Severity,
		Confidence:          imp.Confidence,
		DirectionMultiplier: imp.Indicator.Direction.Multiplier(),
		DeltaLogOdds:        d.Clamped,
		Reasoning:           imp.Reasoning,
		TrendDefinitionHash: imp.Trend.DefinitionHash,
	}

	result := ApplyResult{Delta: d}
	err = l.db.WithTx(ctx, func(tx pgx.Tx) error {
		insertErr := l.evidence.Insert(ctx, tx, row)
		if insertErr == storage.ErrEvidenceExists {
			// Idempotent re-apply: the row already exists, so the delta
			// was already folded into current_log_odds. Report the
			// trend's present value without touching it again.
			current, getErr := l.trends.Get(ctx, imp.Trend.ID)
			if getErr != nil {
				return getErr
			}
			result.NewLogOdds = current.CurrentLogOdds
			result.Applied = false
			return nil
		}
		if insertErr != nil {
			return fmt.Errorf("evidence: insert ledger row: %w", insertErr)
		}

		bounds := trend.Bounds{MinProbability: l.cfg.MinProbability, MaxProbability: l.cfg.MaxProbability}
		min := trend.LogOdds(l.cfg.MinProbability, bounds)
		max := trend.LogOdds(l.cfg.MaxProbability, bounds)
		newLogOdds, applyErr := l.trends.ApplyLogOddsDelta(ctx, tx, imp.Trend.ID, d.Clamped, min, max)
		if applyErr != nil {
			return fmt.Errorf("evidence: apply log-odds delta: %w", applyErr)
		}
		result.Applied = true
		result.NewLogOdds = newLogOdds
		result.EvidenceID = row.ID
		return nil
	})
	if err != nil {
		return ApplyResult{}, err
	}
	return result, nil
}
