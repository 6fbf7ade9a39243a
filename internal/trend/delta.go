package trend

import "math"

// EvidenceInput is every factorization input spec.md §4.5 names for a
// single (trend, event, signal_type) scoring. Corroboration is
// supplied pre-gathered by the caller (internal/evidence walks the
// event's linked sources) rather than recomputed here, keeping this
// package free of storage concerns.
type EvidenceInput struct {
	BaseWeight float64 // indicator weight from the trend definition
	Credibility float64 // source.CredibilityMultiplier() for the reporting source

	// IndependentSourceWeights is one credibility-weighted entry per
	// distinct corroborating source cluster backing this event, used
	// to compute corroboration_factor.
	IndependentSourceWeights []float64
	ContradictionLinks       int // ClaimGraph.ContradictionLinkCount()

	PriorEvidenceAges []float64 // age in days of every prior non-invalidated (trend, signal_type) row, for novelty

	EvidenceAgeDays     float64 // age of the event being scored, in days
	IndicatorHalfLife   float64 // Trend.HalfLifeFor(indicator)
	NoveltyFloor        float64
	NoveltyCeiling      float64
	NoveltyHalfLifeDays float64

	Severity   float64 // 0..1, from Tier-2 extraction
	Confidence float64 // 0..1, from Tier-2 extraction
	Direction  float64 // ±1, from Indicator.Direction.Multiplier()

	MaxDeltaPerEvent float64 // clamp bound, default 0.5
}

// Delta is the full factorization breakdown for one evidence
// application, mirroring every column spec.md §3 TrendEvidence
// persists — the caller writes these fields directly onto the ledger
// row rather than recomputing them from Raw.
type Delta struct {
	CorroborationFactor float64
	Novelty             float64
	TemporalDecayFactor float64
	Raw                 float64
	Clamped             float64
}

// Compute applies spec.md §4.5's evidence delta formula in full:
//
//	corroboration_factor = min(1, sqrt(effective_independent_corroboration) / 3)
//	novelty ∈ [floor, ceiling]
//	temporal_decay_factor = 0.5 ^ (evidence_age_days / indicator_half_life_days)
//	raw = base_weight × credibility × corroboration_factor × novelty ×
//	      temporal_decay_factor × severity × confidence × direction
//	delta = clamp(raw, -max, +max)
func Compute(in EvidenceInput) Delta {
	corroboration := corroborationFactor(in.IndependentSourceWeights, in.ContradictionLinks)
	novelty := noveltyScore(in.PriorEvidenceAges, in.NoveltyFloor, in.NoveltyCeiling, in.NoveltyHalfLifeDays)
	decay := temporalDecayFactor(in.EvidenceAgeDays, in.IndicatorHalfLife)

	raw := in.BaseWeight * in.Credibility * corroboration * novelty * decay * in.Severity * in.Confidence * in.Direction

	maxDelta := in.MaxDeltaPerEvent
	if maxDelta <= 0 {
		maxDelta = 0.5
	}
	clamped := clamp(raw, -maxDelta, maxDelta)

	return Delta{
		CorroborationFactor: corroboration,
		Novelty:             novelty,
		TemporalDecayFactor: decay,
		Raw:                 raw,
		Clamped:             clamped,
	}
}

// corroborationFactor sums independent source-cluster weights, applies
// the contradiction penalty, and caps the result at 1 via the spec's
// sqrt/3 compression (spec.md §4.5): an effective weight sum of 9
// (nine independent sources of weight 1) saturates the factor, while
// three such sources give sqrt(3)/3 ≈ 0.58.
func corroborationFactor(sourceWeights []float64, contradictionLinks int) float64 {
	sum := 0.0
	for _, w := range sourceWeights {
		sum += w
	}
	penalty := contradictionPenalty(contradictionLinks)
	effective := sum * penalty
	if effective < 0 {
		effective = 0
	}
	factor := math.Sqrt(effective) / 3
	if factor > 1 {
		factor = 1
	}
	return factor
}

// contradictionPenalty reduces corroboration as an event's claim graph
// accumulates contradiction links, per spec.md §4.5 "Contradiction
// penalty is reduced when the event's claim graph contains
// contradiction links." Never drops below 0.4 — even a heavily
// contested event retains some corroborative weight rather than being
// zeroed out by a single disputed claim.
func contradictionPenalty(links int) float64 {
	if links <= 0 {
		return 1.0
	}
	p := 1.0 / (1.0 + 0.15*float64(links))
	if p < 0.4 {
		return 0.4
	}
	return p
}

// noveltyScore decays from ceiling toward floor as prior evidence
// accumulates for the same (trend, signal_type): each prior row
// contributes 0.5^(age/halfLife) to a running "recent repeat weight,"
// and the score is ceiling scaled down by that weight, floored so a
// trend with heavy prior coverage still registers some residual
// novelty rather than going to zero.
func noveltyScore(priorAges []float64, floor, ceiling, halfLife float64) float64 {
	if ceiling <= 0 {
		ceiling = 1.0
	}
	if floor < 0 {
		floor = 0
	}
	if halfLife <= 0 {
		halfLife = 14
	}

	weight := 0.0
	for _, age := range priorAges {
		weight += math.Pow(0.5, age/halfLife)
	}

	score := ceiling * math.Pow(0.5, weight)
	if score < floor {
		score = floor
	}
	if score > ceiling {
		score = ceiling
	}
	return score
}

// temporalDecayFactor is spec.md §4.5's 0.5^(age/half_life) recency
// weight applied to the raw delta — not to be confused with the
// trends.current_log_odds decay worker (decay.go), which decays the
// accumulated score itself rather than a single event's contribution.
func temporalDecayFactor(ageDays, halfLife float64) float64 {
	if halfLife <= 0 {
		halfLife = 14
	}
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Pow(0.5, ageDays/halfLife)
}
