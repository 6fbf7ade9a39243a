package trend

import "math"

// Decay computes the decay worker's new current_log_odds, pulling the
// score back toward baseline by 0.5^(days/halfLife) — spec.md §4.5
// "Decay worker": new_lo = baseline_lo + (current_lo - baseline_lo) ×
// 0.5^(days/half_life). Called under a row lock (storage.TrendRepo.
// LockForDecay) so the read-compute-write cycle never races the
// atomic evidence increment on the same row.
func Decay(baselineLogOdds, currentLogOdds, daysSinceUpdate, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return currentLogOdds
	}
	if daysSinceUpdate < 0 {
		daysSinceUpdate = 0
	}
	factor := math.Pow(0.5, daysSinceUpdate/halfLifeDays)
	return baselineLogOdds + (currentLogOdds-baselineLogOdds)*factor
}
