package trend

import "testing"

func TestDecayPullsTowardBaseline(t *testing.T) {
	baseline := 0.0
	current := 2.0
	halfLife := 10.0

	atHalfLife := Decay(baseline, current, 10, halfLife)
	if diff := atHalfLife - 1.0; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected score to halve its distance from baseline after one half-life, got %v", atHalfLife)
	}

	farOut := Decay(baseline, current, 1000, halfLife)
	if farOut > 0.01 {
		t.Errorf("expected score to converge to baseline over a long decay, got %v", farOut)
	}
}

func TestDecayZeroHalfLifeNoOp(t *testing.T) {
	if got := Decay(0, 5, 10, 0); got != 5 {
		t.Errorf("expected no-op decay for zero half-life, got %v", got)
	}
}

func TestDecayNegativeDaysTreatedAsZero(t *testing.T) {
	got := Decay(0, 5, -3, 10)
	if got != 5 {
		t.Errorf("expected negative days to behave as zero elapsed, got %v", got)
	}
}
