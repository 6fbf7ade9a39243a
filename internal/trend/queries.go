package trend

import "fmt"

// Direction classifies how a trend's probability has moved over a
// lookback window, per spec.md §4.5 "direction(trend, days) mapping
// probability delta over a past snapshot to {rising_fast, rising,
// stable, falling, falling_fast} with ±5% / ±1% bands."
type Direction string

const (
	DirectionRisingFast  Direction = "rising_fast"
	DirectionRising      Direction = "rising"
	DirectionStable      Direction = "stable"
	DirectionFalling     Direction = "falling"
	DirectionFallingFast Direction = "falling_fast"
)

// ClassifyDirection buckets (currentProbability - pastProbability)
// into the five-way band. The ±1% band is "stable"; beyond ±1% but
// within ±5% is the plain rising/falling band; beyond ±5% is the
// "fast" band.
func ClassifyDirection(currentProbability, pastProbability float64) Direction {
	delta := currentProbability - pastProbability
	switch {
	case delta > 0.05:
		return DirectionRisingFast
	case delta > 0.01:
		return DirectionRising
	case delta >= -0.01:
		return DirectionStable
	case delta >= -0.05:
		return DirectionFalling
	default:
		return DirectionFallingFast
	}
}

// ProbabilityBand returns the 10-point-wide bucket label a
// probability falls into, e.g. "60-70%" — the same bucketing
// internal/calibration uses for Brier bucket analysis, so a trend's
// current band can be compared directly against its historical
// calibration error for that range.
func ProbabilityBand(probability float64) string {
	pct := probability * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	lo := int(pct/10) * 10
	hi := lo + 10
	if lo >= 90 {
		return "90-100%"
	}
	return fmt.Sprintf("%d-%d%%", lo, hi)
}

// RiskLevel is the coarse categorical severity bucket exposed on
// every trend summary, per spec.md §4.5.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskGuarded  RiskLevel = "guarded"
	RiskElevated RiskLevel = "elevated"
	RiskHigh     RiskLevel = "high"
	RiskSevere   RiskLevel = "severe"
)

// ClassifyRisk maps a probability to spec.md §4.5's named bands:
// low<10%, guarded<25%, elevated<50%, high<75%, severe otherwise.
func ClassifyRisk(probability float64) RiskLevel {
	switch {
	case probability < 0.10:
		return RiskLow
	case probability < 0.25:
		return RiskGuarded
	case probability < 0.50:
		return RiskElevated
	case probability < 0.75:
		return RiskHigh
	default:
		return RiskSevere
	}
}

// ConfidenceRating is the qualitative reliability label attached to a
// trend's current probability estimate.
type ConfidenceRating string

const (
	ConfidenceLow    ConfidenceRating = "low"
	ConfidenceMedium ConfidenceRating = "medium"
	ConfidenceHigh   ConfidenceRating = "high"
)

// ClassifyConfidence derives confidence_rating from band width ×
// evidence volume × corroboration, per spec.md §4.5: a narrow
// probability band backed by many well-corroborated evidence rows is
// high confidence; a wide band with sparse or poorly-corroborated
// evidence is low confidence, regardless of how extreme the
// probability itself looks.
//
// bandWidthPct is how wide the trend's probability has swung over the
// lookback window used for direction classification (0-100 scale,
// smaller is more stable). evidenceCount is the number of
// non-invalidated evidence rows contributing to the current score.
// avgCorroboration is the mean corroboration_factor across those rows.
func ClassifyConfidence(bandWidthPct float64, evidenceCount int, avgCorroboration float64) ConfidenceRating {
	score := 0.0
	switch {
	case bandWidthPct <= 5:
		score += 2
	case bandWidthPct <= 15:
		score += 1
	}
	switch {
	case evidenceCount >= 10:
		score += 2
	case evidenceCount >= 3:
		score += 1
	}
	switch {
	case avgCorroboration >= 0.7:
		score += 2
	case avgCorroboration >= 0.4:
		score += 1
	}

	switch {
	case score >= 5:
		return ConfidenceHigh
	case score >= 3:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
