package llmpolicy

import "fmt"

// Tier1Result is one item's relevance scoring against every trend
// considered during the filter pass (spec.md §4.4 step 5).
type Tier1Result struct {
	ItemID          string         `json:"item_id"`
	TrendRelevance  map[string]int `json:"trend_relevance"` // trend_id -> 0-10
}

// MaxRelevance returns the highest score across all trends, 0 if empty.
func (r Tier1Result) MaxRelevance() int {
	max := 0
	for _, v := range r.TrendRelevance {
		if v > max {
			max = v
		}
	}
	return max
}

// Tier2Impact is one scored effect of an event on a trend (spec.md
// §3 TrendEvidence, §4.4 step 5).
type Tier2Impact struct {
	TrendID    string  `json:"trend_id"`
	SignalType string  `json:"signal_type"`
	Direction  string  `json:"direction"`
	Severity   float64 `json:"severity"`
	Confidence float64 `json:"confidence"`
}

// Tier2Result is the full extraction payload for one event.
type Tier2Result struct {
	Entities   []string      `json:"entities"`
	Claims     []string      `json:"claims"`
	Categories []string      `json:"categories"`
	Summary    string        `json:"summary"`
	Impacts    []Tier2Impact `json:"impacts"`
}

// ErrDuplicateImpact is returned when a Tier-2 payload scores the same
// (trend_id, signal_type) pair twice — spec.md §4.4 step 5 rejects the
// whole payload rather than silently picking one.
type ErrDuplicateImpact struct {
	TrendID    string
	SignalType string
}

func (e *ErrDuplicateImpact) Error() string {
	return fmt.Sprintf("llmpolicy: duplicate impact for trend=%s signal_type=%s", e.TrendID, e.SignalType)
}

// ValidateTier2 enforces the structural invariants spec.md §4.4 step 5
// names beyond plain JSON-shape decoding: severity/confidence bounds,
// and no duplicate (trend_id, signal_type) pair within one payload.
func ValidateTier2(r Tier2Result) error {
	seen := make(map[[2]string]bool, len(r.Impacts))
	for _, imp := range r.Impacts {
		if imp.TrendID == "" || imp.SignalType == "" {
			return fmt.Errorf("llmpolicy: impact missing trend_id or signal_type")
		}
		if imp.Direction != "escalatory" && imp.Direction != "de_escalatory" {
			return fmt.Errorf("llmpolicy: impact %s/%s has invalid direction %q", imp.TrendID, imp.SignalType, imp.Direction)
		}
		if imp.Severity < 0 || imp.Severity > 1 {
			return fmt.Errorf("llmpolicy: impact %s/%s severity %.3f out of [0,1]", imp.TrendID, imp.SignalType, imp.Severity)
		}
		if imp.Confidence < 0 || imp.Confidence > 1 {
			return fmt.Errorf("llmpolicy: impact %s/%s confidence %.3f out of [0,1]", imp.TrendID, imp.SignalType, imp.Confidence)
		}
		key := [2]string{imp.TrendID, imp.SignalType}
		if seen[key] {
			return &ErrDuplicateImpact{TrendID: imp.TrendID, SignalType: imp.SignalType}
		}
		seen[key] = true
	}
	return nil
}
