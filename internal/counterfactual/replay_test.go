package counterfactual

import (
	"math"
	"testing"
	"time"
)

func buildRun(champSamples, champErrors int, champCost float64, champLatencyMs float64,
	chalSamples, chalErrors int, chalCost float64, chalLatencyMs float64) Run {
	var run Run
	for i := 0; i < champSamples; i++ {
		isErr := i < champErrors
		run.Champion.Record(champCost, time.Duration(champLatencyMs)*time.Millisecond, 0.7, isErr)
	}
	for i := 0; i < chalSamples; i++ {
		isErr := i < chalErrors
		run.Challenger.Record(chalCost, time.Duration(chalLatencyMs)*time.Millisecond, 0.7, isErr)
	}
	return run
}

func TestVariantMetricsRecalculate(t *testing.T) {
	var m VariantMetrics
	m.Record(0.10, 200*time.Millisecond, 0.8, false)
	m.Record(0.20, 300*time.Millisecond, 0.6, true)

	if m.Samples != 2 {
		t.Fatalf("expected 2 samples, got %d", m.Samples)
	}
	if m.Errors != 1 {
		t.Fatalf("expected 1 error, got %d", m.Errors)
	}
	if m.ErrorRate != 0.5 {
		t.Errorf("expected error rate 0.5, got %v", m.ErrorRate)
	}
	if math.Abs(m.AvgCostUSD-0.15) > 1e-12 {
		t.Errorf("expected avg cost 0.15, got %v", m.AvgCostUSD)
	}
	if m.AvgQuality != 0.7 {
		t.Errorf("expected avg quality 0.7, got %v", m.AvgQuality)
	}
}

func TestCompareErrorRatesInsufficientSample(t *testing.T) {
	run := buildRun(5, 1, 0.1, 100, 5, 1, 0.1, 100)
	result := CompareErrorRates(run, 0.95, 100)
	if result.Significant {
		t.Errorf("expected insignificant result below min sample size")
	}
}

func TestCompareErrorRatesDetectsRegression(t *testing.T) {
	run := buildRun(500, 5, 0.1, 100, 500, 150, 0.1, 100)
	result := CompareErrorRates(run, 0.95, 100)
	if !result.Significant {
		t.Errorf("expected a significant error-rate difference, got z=%v p=%v", result.ZScore, result.PValue)
	}
	if result.BetterIsChallenger {
		t.Errorf("champion has the lower error rate, expected BetterIsChallenger=false")
	}
}

func TestAssessPromotesCheaperChallengerWithNoRegression(t *testing.T) {
	run := buildRun(500, 50, 0.20, 300, 500, 50, 0.05, 80)
	a := Assess(run, PromotionThresholds{SignificanceThreshold: 0.95, MinSampleSize: 100})
	if !a.Promote {
		t.Errorf("expected promotion for a cheaper, faster challenger with equal error rate, reason: %s", a.Reason)
	}
}

func TestAssessRejectsRegressedChallenger(t *testing.T) {
	run := buildRun(500, 5, 0.20, 300, 500, 200, 0.05, 80)
	a := Assess(run, PromotionThresholds{SignificanceThreshold: 0.95, MinSampleSize: 100})
	if a.Promote {
		t.Errorf("expected no promotion when the challenger's error rate regressed significantly")
	}
}

func TestAssessWithholdsVerdictBelowMinSample(t *testing.T) {
	run := buildRun(10, 1, 0.1, 100, 10, 1, 0.05, 80)
	a := Assess(run, PromotionThresholds{SignificanceThreshold: 0.95, MinSampleSize: 100})
	if a.Promote {
		t.Errorf("expected no promotion decision below the minimum sample size")
	}
}
