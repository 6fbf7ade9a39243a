package trend

import "testing"

func TestClassifyDirection(t *testing.T) {
	cases := []struct {
		current, past float64
		want          Direction
	}{
		{0.30, 0.20, DirectionRisingFast},
		{0.22, 0.20, DirectionRising},
		{0.205, 0.20, DirectionStable},
		{0.195, 0.20, DirectionStable},
		{0.18, 0.20, DirectionFalling},
		{0.10, 0.20, DirectionFallingFast},
	}
	for _, c := range cases {
		if got := ClassifyDirection(c.current, c.past); got != c.want {
			t.Errorf("ClassifyDirection(%v, %v) = %v, want %v", c.current, c.past, got, c.want)
		}
	}
}

func TestProbabilityBand(t *testing.T) {
	cases := map[float64]string{
		0.0:  "0-10%",
		0.05: "0-10%",
		0.55: "50-60%",
		0.99: "90-100%",
		1.0:  "90-100%",
	}
	for p, want := range cases {
		if got := ProbabilityBand(p); got != want {
			t.Errorf("ProbabilityBand(%v) = %q, want %q", p, got, want)
		}
	}
}

func TestClassifyRisk(t *testing.T) {
	cases := []struct {
		p    float64
		want RiskLevel
	}{
		{0.05, RiskLow},
		{0.20, RiskGuarded},
		{0.40, RiskElevated},
		{0.60, RiskHigh},
		{0.90, RiskSevere},
	}
	for _, c := range cases {
		if got := ClassifyRisk(c.p); got != c.want {
			t.Errorf("ClassifyRisk(%v) = %v, want %v", c.p, got, c.want)
		}
	}
}

func TestClassifyConfidence(t *testing.T) {
	high := ClassifyConfidence(2, 20, 0.9)
	if high != ConfidenceHigh {
		t.Errorf("expected high confidence for narrow band + high volume + high corroboration, got %v", high)
	}

	low := ClassifyConfidence(40, 1, 0.1)
	if low != ConfidenceLow {
		t.Errorf("expected low confidence for wide band + low volume + low corroboration, got %v", low)
	}
}
