package trend

import (
	"math"
	"testing"
)

func TestLogOddsProbabilityRoundTrip(t *testing.T) {
	bounds := Bounds{MinProbability: 0.001, MaxProbability: 0.999}
	cases := []float64{0.001, 0.01, 0.1, 0.5, 0.9, 0.99, 0.999}

	for _, p := range cases {
		lo := LogOdds(p, bounds)
		got := Probability(lo, bounds)
		if math.Abs(got-p) > 1e-9 {
			t.Errorf("round trip for p=%.3f: got %.6f", p, got)
		}
	}
}

func TestProbabilityClampsOutOfRange(t *testing.T) {
	bounds := Bounds{MinProbability: 0.001, MaxProbability: 0.999}

	if got := Probability(1000, bounds); got > bounds.MaxProbability {
		t.Errorf("expected clamp to max probability, got %.6f", got)
	}
	if got := Probability(-1000, bounds); got < bounds.MinProbability {
		t.Errorf("expected clamp to min probability, got %.6f", got)
	}
}

func TestLogOddsClampsInputProbability(t *testing.T) {
	bounds := Bounds{MinProbability: 0.001, MaxProbability: 0.999}
	// p=1 and p=0 would otherwise produce +/-Inf.
	if lo := LogOdds(1.0, bounds); math.IsInf(lo, 0) {
		t.Errorf("expected clamped, finite log-odds for p=1, got %v", lo)
	}
	if lo := LogOdds(0.0, bounds); math.IsInf(lo, 0) {
		t.Errorf("expected clamped, finite log-odds for p=0, got %v", lo)
	}
}

func TestBoundsResolvedDefaults(t *testing.T) {
	lo := LogOdds(0.5, Bounds{})
	if math.IsNaN(lo) || math.IsInf(lo, 0) {
		t.Errorf("zero-value Bounds should fall back to documented defaults, got %v", lo)
	}
}
