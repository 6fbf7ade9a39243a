package calibration

import (
	"context"
	"fmt"
	"time"

	"github.com/archwatch/sentinel/internal/config"
	"github.com/archwatch/sentinel/internal/storage"
	"github.com/archwatch/sentinel/internal/storage/models"
)

// Bucket is one 10%-wide probability band's calibration result —
// spec.md §4.7 "[0,10), [10,20), ..., [90,100]".
type Bucket struct {
	Label            string
	Midpoint         float64
	Count            int
	ActualRate       float64
	CalibrationError float64
}

// Report is the full calibration sweep over a resolved-outcome set.
type Report struct {
	SampleSize int
	BrierMean  float64
	Buckets    []Bucket
	MaxBucketError float64
	LowSample  bool
}

// Scorer runs bucket analysis and Brier scoring over resolved outcomes.
type Scorer struct {
	outcomes *storage.OutcomeRepo
	evidence *storage.EvidenceRepo
	cfg      config.CalibrationSettings
}

func NewScorer(outcomes *storage.OutcomeRepo, evidence *storage.EvidenceRepo, cfg config.CalibrationSettings) *Scorer {
	return &Scorer{outcomes: outcomes, evidence: evidence, cfg: cfg}
}

// ScoreGlobal runs the bucket/Brier sweep across every trend's
// resolved outcomes since the given time.
func (s *Scorer) ScoreGlobal(ctx context.Context, since time.Time) (Report, error) {
	outcomes, err := s.outcomes.ListAllResolvedSince(ctx, since)
	if err != nil {
		return Report{}, fmt.Errorf("calibration: list resolved outcomes: %w", err)
	}
	return Analyze(outcomes, s.cfg), nil
}

// Analyze is the pure bucket/Brier computation spec.md §4.7 describes,
// taking already-resolved outcomes so it can be exercised without
// storage.
func Analyze(outcomes []models.TrendOutcome, cfg config.CalibrationSettings) Report {
	bucketCount := cfg.BucketCount
	if bucketCount <= 0 {
		bucketCount = 10
	}
	width := 100.0 / float64(bucketCount)

	sums := make([]float64, bucketCount)
	counts := make([]int, bucketCount)
	brierSum := 0.0

	for _, o := range outcomes {
		if !o.Outcome.Resolved() {
			continue
		}
		actual := o.Outcome.Actual()
		diff := o.PredictedProb - actual
		brierSum += diff * diff

		idx := bucketIndex(o.PredictedProb, bucketCount)
		sums[idx] += actual
		counts[idx]++
	}

	buckets := make([]Bucket, bucketCount)
	maxErr := 0.0
	total := 0
	for i := 0; i < bucketCount; i++ {
		lo := float64(i) * width
		mid := (lo + width/2) / 100
		b := Bucket{
			Label:    bucketLabel(i, bucketCount, width),
			Midpoint: mid,
			Count:    counts[i],
		}
		if counts[i] > 0 {
			b.ActualRate = sums[i] / float64(counts[i])
			b.CalibrationError = abs(b.ActualRate - mid)
		}
		if b.CalibrationError > maxErr {
			maxErr = b.CalibrationError
		}
		buckets[i] = b
		total += counts[i]
	}

	brierMean := 0.0
	if total > 0 {
		brierMean = brierSum / float64(total)
	}

	return Report{
		SampleSize:     total,
		BrierMean:      brierMean,
		Buckets:        buckets,
		MaxBucketError: maxErr,
		LowSample:      total < cfg.MinSampleSize,
	}
}

// DriftDetected reports whether this report's Brier mean or max bucket
// error breaches the configured warn/critical thresholds, gated by the
// minimum sample-size requirement — spec.md §4.7 "Drift alerting
// triggers when Brier mean or max bucket error breaches configured
// warn/critical thresholds AND the resolved-outcome count >= minimum
// sample".
func (r Report) DriftDetected(cfg config.CalibrationSettings) (warn, critical bool) {
	if r.SampleSize < cfg.MinSampleSize {
		return false, false
	}
	critical = r.BrierMean >= cfg.BrierCriticalThreshold || r.MaxBucketError >= cfg.BucketErrorCriticalThreshold
	warn = !critical && (r.BrierMean >= cfg.BrierWarnThreshold || r.MaxBucketError >= cfg.BucketErrorWarnThreshold)
	return warn, critical
}

func bucketIndex(prob float64, bucketCount int) int {
	pct := prob * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	width := 100.0 / float64(bucketCount)
	idx := int(pct / width)
	if idx >= bucketCount {
		idx = bucketCount - 1
	}
	return idx
}

func bucketLabel(i, bucketCount int, width float64) string {
	lo := int(float64(i) * width)
	hi := int(float64(i+1) * width)
	if i == bucketCount-1 {
		hi = 100
	}
	return fmt.Sprintf("%d-%d%%", lo, hi)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// SourceDiagnostics returns the advisory-only per-source/per-tier
// reliability stats spec.md §4.7 names, gated by minDiagnosticSample
// (a fixed floor, not the configured MinSampleSize). Entries below the
// threshold are dropped rather
// than reported with a misleadingly small sample.
func (s *Scorer) SourceDiagnostics(ctx context.Context, since time.Time) ([]storage.SourceReliabilityStat, error) {
	stats, err := s.evidence.SourceReliabilityStats(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("calibration: source reliability stats: %w", err)
	}
	out := stats[:0]
	for _, stat := range stats {
		if stat.EvidenceCount >= minDiagnosticSample {
			out = append(out, stat)
		}
	}
	return out, nil
}

// minDiagnosticSample is a conservative floor below the main
// calibration min-sample-size — advisory diagnostics are useful even
// at lower volume than a drift alert would ever fire on.
const minDiagnosticSample = 5
