package counterfactual

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/archwatch/sentinel/internal/config"
	"github.com/archwatch/sentinel/internal/storage"
	"github.com/archwatch/sentinel/internal/trend"
)

// Mode selects which side-effect-free projection Simulate runs,
// per spec.md §4.8.
type Mode string

const (
	// ModeRemoveEventImpact projects current_log_odds with one
	// already-applied evidence row's delta reversed out.
	ModeRemoveEventImpact Mode = "remove_event_impact"
	// ModeInjectHypothetical projects current_log_odds with a
	// not-yet-applied hypothetical signal folded in.
	ModeInjectHypothetical Mode = "inject_hypothetical_signal"
)

// HypotheticalSignal is the caller-supplied input for
// ModeInjectHypothetical — the same factorization inputs
// internal/evidence.Impact carries, minus the fields only a real
// scored event has (EventID, reasoning text).
type HypotheticalSignal struct {
	SignalType               string
	Credibility              float64
	IndependentSourceWeights []float64
	ContradictionLinks       int
	EvidenceAgeDays          float64
	Severity                 float64
	Confidence               float64
}

// Request describes one Simulate call.
type Request struct {
	TrendID uuid.UUID
	Mode    Mode

	// Required for ModeRemoveEventImpact.
	EventID    *uuid.UUID
	SignalType string

	// Required for ModeInjectHypothetical.
	Hypothetical *HypotheticalSignal
}

// Result is the projected outcome — never written to storage.
type Result struct {
	Mode Mode

	BaselineLogOdds    float64
	ProjectedLogOdds   float64
	BaselineProbability  float64
	ProjectedProbability float64

	DeltaLogOdds float64
	Factors      trend.Delta // for ModeRemoveEventImpact: the stored row's corroboration/novelty/temporal-decay factors plus Raw/Clamped; other fields zero
}

// Simulator runs Simulate against live trend/evidence state without
// ever opening a write transaction.
type Simulator struct {
	trends   *storage.TrendRepo
	evidence *storage.EvidenceRepo
	cfg      config.TrendSettings
}

func NewSimulator(trends *storage.TrendRepo, ev *storage.EvidenceRepo, cfg config.TrendSettings) *Simulator {
	return &Simulator{trends: trends, evidence: ev, cfg: cfg}
}

// Simulate computes a projected log_odds/probability/delta/factor
// breakdown for req, reading whatever storage state it needs but
// never writing — spec.md §4.8 "Simulate ... without any write."
func (s *Simulator) Simulate(ctx context.Context, req Request, now time.Time) (Result, error) {
	t, err := s.trends.Get(ctx, req.TrendID)
	if err != nil {
		return Result{}, fmt.Errorf("counterfactual: load trend: %w", err)
	}

	bounds := trend.Bounds{MinProbability: s.cfg.MinProbability, MaxProbability: s.cfg.MaxProbability}
	min := trend.LogOdds(s.cfg.MinProbability, bounds)
	max := trend.LogOdds(s.cfg.MaxProbability, bounds)

	baseline := t.CurrentLogOdds
	result := Result{
		Mode:                req.Mode,
		BaselineLogOdds:     baseline,
		BaselineProbability: trend.Probability(baseline, bounds),
	}

	switch req.Mode {
	case ModeRemoveEventImpact:
		if req.EventID == nil || req.SignalType == "" {
			return Result{}, fmt.Errorf("counterfactual: remove mode requires event_id and signal_type")
		}
		row, err := s.evidence.Find(ctx, req.TrendID, *req.EventID, req.SignalType)
		if err != nil {
			return Result{}, fmt.Errorf("counterfactual: load evidence row: %w", err)
		}
		if row.IsInvalidated {
			// Already invalidated rows contribute nothing to the live
			// score, so "removing" it again is a no-op projection.
			result.DeltaLogOdds = 0
		} else {
			result.DeltaLogOdds = -row.DeltaLogOdds
		}
		result.Factors = trend.Delta{
			CorroborationFactor: row.CorroborationFactor,
			Novelty:             row.Novelty,
			TemporalDecayFactor: row.TemporalDecayFactor,
			Raw:                 row.DeltaLogOdds,
			Clamped:             result.DeltaLogOdds,
		}

	case ModeInjectHypothetical:
		if req.Hypothetical == nil {
			return Result{}, fmt.Errorf("counterfactual: inject mode requires a hypothetical signal")
		}
		h := req.Hypothetical
		ind, ok := t.Indicator(h.SignalType)
		if !ok {
			return Result{}, fmt.Errorf("counterfactual: trend %s has no indicator %q", t.Name, h.SignalType)
		}

		ages, err := s.evidence.AgesForSignal(ctx, req.TrendID, h.SignalType, now)
		if err != nil {
			return Result{}, fmt.Errorf("counterfactual: load prior ages: %w", err)
		}

		d := trend.Compute(trend.EvidenceInput{
			BaseWeight:               ind.Weight,
			Credibility:              h.Credibility,
			IndependentSourceWeights: h.IndependentSourceWeights,
			ContradictionLinks:       h.ContradictionLinks,
			PriorEvidenceAges:        ages,
			EvidenceAgeDays:          h.EvidenceAgeDays,
			IndicatorHalfLife:        t.HalfLifeFor(ind),
			NoveltyFloor:             s.cfg.NoveltyFloor,
			NoveltyCeiling:           s.cfg.NoveltyCeiling,
			NoveltyHalfLifeDays:      s.cfg.NoveltyHalfLife,
			Severity:                 h.Severity,
			Confidence:               h.Confidence,
			Direction:                ind.Direction.Multiplier(),
			MaxDeltaPerEvent:         s.cfg.MaxDeltaPerEvent,
		})
		result.Factors = d
		result.DeltaLogOdds = d.Clamped

	default:
		return Result{}, fmt.Errorf("counterfactual: unknown mode %q", req.Mode)
	}

	result.ProjectedLogOdds = clampLogOdds(baseline+result.DeltaLogOdds, min, max)
	result.ProjectedProbability = trend.Probability(result.ProjectedLogOdds, bounds)
	return result, nil
}

func clampLogOdds(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
