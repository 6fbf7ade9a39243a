package evidence

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/archwatch/sentinel/internal/storage/models"
	"github.com/archwatch/sentinel/internal/trend"
)

// Summary is the full derived-metrics view of one trend's current
// state, exposed by the core to the HTTP API layer per spec.md §6
// trend CRUD (`probability`, `direction`, `probability_band`,
// `risk_level`, `confidence_rating`).
type Summary struct {
	Trend            models.Trend
	Probability      float64
	ProbabilityBand  string
	RiskLevel        trend.RiskLevel
	Direction        trend.Direction
	ConfidenceRating trend.ConfidenceRating
}

// Summarize loads a trend's current state plus the snapshot closest to
// (and at or before) now - lookback, and derives every query spec.md
// §4.5 names.
func (l *Ledger) Summarize(ctx context.Context, trendID uuid.UUID, now time.Time, lookback time.Duration) (Summary, error) {
	t, err := l.trends.Get(ctx, trendID)
	if err != nil {
		return Summary{}, err
	}

	bounds := trend.Bounds{MinProbability: l.cfg.MinProbability, MaxProbability: l.cfg.MaxProbability}
	probability := trend.Probability(t.CurrentLogOdds, bounds)

	direction := trend.DirectionStable
	var bandWidthPct float64
	if past, ok, perr := l.snapshots.Latest(ctx, trendID, now.Add(-lookback)); perr == nil && ok {
		pastProbability := trend.Probability(past.LogOdds, bounds)
		direction = trend.ClassifyDirection(probability, pastProbability)
		bandWidthPct = abs(probability-pastProbability) * 100
	}

	evidenceCount := 0
	avgCorroboration := 0.0
	if recent, err := l.evidence.ListForTrend(ctx, trendID, false, 50); err == nil {
		evidenceCount = len(recent)
		sum := 0.0
		for _, e := range recent {
			sum += e.CorroborationFactor
		}
		if len(recent) > 0 {
			avgCorroboration = sum / float64(len(recent))
		}
	}

	return Summary{
		Trend:            t,
		Probability:      probability,
		ProbabilityBand:  trend.ProbabilityBand(probability),
		RiskLevel:        trend.ClassifyRisk(probability),
		Direction:        direction,
		ConfidenceRating: trend.ClassifyConfidence(bandWidthPct, evidenceCount, avgCorroboration),
	}, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
