package calibration

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Service wires the scorer and notifier together into the periodic
// sweep a scheduler invokes — spec.md §4.7's end-to-end calibration
// cycle.
type Service struct {
	scorer   *Scorer
	notifier *Notifier
	log      zerolog.Logger
}

func NewService(scorer *Scorer, notifier *Notifier, log zerolog.Logger) *Service {
	return &Service{scorer: scorer, notifier: notifier, log: log.With().Str("component", "calibration").Logger()}
}

// RunDriftCheck scores every resolved outcome since `since` and fires
// a webhook alert if drift is detected. Returns the computed Report
// regardless, so callers (e.g. the /reports/calibration endpoint) can
// reuse it without a second query.
func (s *Service) RunDriftCheck(ctx context.Context, since time.Time) (Report, error) {
	report, err := s.scorer.ScoreGlobal(ctx, since)
	if err != nil {
		return Report{}, err
	}

	warn, critical := report.DriftDetected(s.scorer.cfg)
	if !warn && !critical {
		return report, nil
	}

	level := AlertWarn
	if critical {
		level = AlertCritical
	}
	alert := Alert{
		Level:          level,
		SampleSize:     report.SampleSize,
		BrierMean:      report.BrierMean,
		MaxBucketError: report.MaxBucketError,
		GeneratedAt:    time.Now(),
	}
	if err := s.notifier.Notify(ctx, alert); err != nil {
		s.log.Error().Err(err).Msg("drift alert notify failed")
	}
	return report, nil
}
