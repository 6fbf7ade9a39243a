package trend

import "testing"

func TestComputeClampsAtMaxDelta(t *testing.T) {
	in := EvidenceInput{
		BaseWeight:               1.0,
		Credibility:              1.3, // above primary tier × firsthand (1.15 × 1.10 = 1.265)
		IndependentSourceWeights: []float64{1, 1, 1, 1, 1},
		EvidenceAgeDays:          0,
		IndicatorHalfLife:        14,
		NoveltyFloor:             0.3,
		NoveltyCeiling:           1.0,
		NoveltyHalfLifeDays:      14,
		Severity:                 1.0,
		Confidence:               1.0,
		Direction:                1,
		MaxDeltaPerEvent:         0.5,
	}

	d := Compute(in)
	if d.Clamped != 0.5 {
		t.Errorf("expected clamp to MaxDeltaPerEvent=0.5, got %v (raw %v)", d.Clamped, d.Raw)
	}
	if d.Raw <= d.Clamped {
		t.Errorf("expected raw (%v) to exceed the clamp bound before clamping", d.Raw)
	}
}

func TestComputeDirectionFlipsSign(t *testing.T) {
	base := EvidenceInput{
		BaseWeight:               0.3,
		Credibility:              1.0,
		IndependentSourceWeights: []float64{1},
		EvidenceAgeDays:          1,
		IndicatorHalfLife:        14,
		NoveltyCeiling:           1.0,
		Severity:                 0.5,
		Confidence:               0.8,
		MaxDeltaPerEvent:         0.5,
	}

	escalatory := base
	escalatory.Direction = 1
	deEscalatory := base
	deEscalatory.Direction = -1

	dUp := Compute(escalatory)
	dDown := Compute(deEscalatory)

	if dUp.Clamped <= 0 {
		t.Errorf("expected positive delta for escalatory direction, got %v", dUp.Clamped)
	}
	if dDown.Clamped >= 0 {
		t.Errorf("expected negative delta for de-escalatory direction, got %v", dDown.Clamped)
	}
	if dUp.Clamped != -dDown.Clamped {
		t.Errorf("expected symmetric magnitudes, got %v vs %v", dUp.Clamped, dDown.Clamped)
	}
}

func TestNoveltyDecaysWithPriorEvidence(t *testing.T) {
	fresh := noveltyScore(nil, 0.3, 1.0, 14)
	if fresh != 1.0 {
		t.Errorf("expected ceiling novelty with no prior evidence, got %v", fresh)
	}

	repeated := noveltyScore([]float64{0, 0, 0, 0, 0}, 0.3, 1.0, 14)
	if repeated >= fresh {
		t.Errorf("expected novelty to decay below ceiling with repeated recent evidence, got %v", repeated)
	}
	if repeated < 0.3 {
		t.Errorf("expected novelty to never drop below the configured floor, got %v", repeated)
	}
}

func TestContradictionPenaltyReducesCorroboration(t *testing.T) {
	weights := []float64{1, 1, 1}
	clean := corroborationFactor(weights, 0)
	contested := corroborationFactor(weights, 4)

	if contested >= clean {
		t.Errorf("expected contradiction links to reduce corroboration, got clean=%v contested=%v", clean, contested)
	}
}

func TestTemporalDecayFactorHalvesAtHalfLife(t *testing.T) {
	f := temporalDecayFactor(14, 14)
	if diff := f - 0.5; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected decay factor of 0.5 at one half-life, got %v", f)
	}
}
