package calibration

import (
	"testing"

	"github.com/archwatch/sentinel/internal/config"
	"github.com/archwatch/sentinel/internal/storage/models"
)

func defaultCfg() config.CalibrationSettings {
	return config.CalibrationSettings{
		BucketCount:                  10,
		BrierWarnThreshold:           0.20,
		BrierCriticalThreshold:       0.30,
		BucketErrorWarnThreshold:     0.15,
		BucketErrorCriticalThreshold: 0.25,
		MinSampleSize:                20,
	}
}

// TestAnalyzeWellCalibratedBucket mirrors spec.md's worked example:
// 100 outcomes at 20-30% predicted, 25 occurred / 75 did not — bucket
// midpoint 25%, actual rate 25%, zero calibration error, no drift.
func TestAnalyzeWellCalibratedBucket(t *testing.T) {
	outcomes := make([]models.TrendOutcome, 0, 100)
	for i := 0; i < 100; i++ {
		outcome := models.OutcomeDidNotOccur
		if i < 25 {
			outcome = models.OutcomeOccurred
		}
		outcomes = append(outcomes, models.TrendOutcome{PredictedProb: 0.25, Outcome: outcome})
	}

	report := Analyze(outcomes, defaultCfg())
	if report.SampleSize != 100 {
		t.Fatalf("sample size = %d, want 100", report.SampleSize)
	}

	var bucket Bucket
	for _, b := range report.Buckets {
		if b.Label == "20-30%" {
			bucket = b
		}
	}
	if bucket.Count != 100 {
		t.Fatalf("bucket count = %d, want 100", bucket.Count)
	}
	if bucket.ActualRate != 0.25 {
		t.Fatalf("actual rate = %v, want 0.25", bucket.ActualRate)
	}
	if bucket.CalibrationError > 1e-9 {
		t.Fatalf("calibration error = %v, want ~0", bucket.CalibrationError)
	}

	warn, critical := report.DriftDetected(defaultCfg())
	if warn || critical {
		t.Fatalf("expected no drift alert, got warn=%v critical=%v", warn, critical)
	}
}

func TestDriftDetectedRequiresMinSample(t *testing.T) {
	report := Report{SampleSize: 5, BrierMean: 0.9, MaxBucketError: 0.9}
	warn, critical := report.DriftDetected(defaultCfg())
	if warn || critical {
		t.Fatal("expected drift suppressed below min sample size")
	}
}

func TestDriftDetectedCriticalBrier(t *testing.T) {
	report := Report{SampleSize: 50, BrierMean: 0.35, MaxBucketError: 0.05}
	warn, critical := report.DriftDetected(defaultCfg())
	if warn || !critical {
		t.Fatalf("expected critical drift, got warn=%v critical=%v", warn, critical)
	}
}

func TestDriftDetectedWarnOnly(t *testing.T) {
	report := Report{SampleSize: 50, BrierMean: 0.22, MaxBucketError: 0.05}
	warn, critical := report.DriftDetected(defaultCfg())
	if !warn || critical {
		t.Fatalf("expected warn-only drift, got warn=%v critical=%v", warn, critical)
	}
}

func TestBucketIndexClampsOutOfRange(t *testing.T) {
	if idx := bucketIndex(1.5, 10); idx != 9 {
		t.Fatalf("bucketIndex(1.5) = %d, want 9", idx)
	}
	if idx := bucketIndex(-0.5, 10); idx != 0 {
		t.Fatalf("bucketIndex(-0.5) = %d, want 0", idx)
	}
}

func TestUnresolvedOutcomesExcludedFromAnalysis(t *testing.T) {
	outcomes := []models.TrendOutcome{
		{PredictedProb: 0.5, Outcome: models.OutcomeOngoing},
		{PredictedProb: 0.5, Outcome: models.OutcomeSuperseded},
		{PredictedProb: 0.5, Outcome: models.OutcomeOccurred},
	}
	report := Analyze(outcomes, defaultCfg())
	if report.SampleSize != 1 {
		t.Fatalf("sample size = %d, want 1 (only the resolved outcome counts)", report.SampleSize)
	}
}
