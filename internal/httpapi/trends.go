package httpapi

import (
	"github.com/goccy/go-json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/archwatch/sentinel/internal/counterfactual"
	"github.com/archwatch/sentinel/internal/storage/models"
	"github.com/archwatch/sentinel/internal/trend"
)

type handlers struct{ d Deps }

func (h *handlers) bounds() trend.Bounds {
	return trend.Bounds{MinProbability: h.d.TrendCfg.MinProbability, MaxProbability: h.d.TrendCfg.MaxProbability}
}

// trendSummary is the shared response shape for list/detail.
type trendSummary struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	CurrentProbability float64 `json:"current_probability"`
	CurrentLogOdds   float64   `json:"current_log_odds"`
	RiskLevel        string    `json:"risk_level"`
	ProbabilityBand  string    `json:"probability_band"`
	Active           bool      `json:"active"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (h *handlers) summarize(t models.Trend) trendSummary {
	prob := trend.Probability(t.CurrentLogOdds, h.bounds())
	return trendSummary{
		ID: t.ID, Name: t.Name, Description: t.Description,
		CurrentProbability: prob, CurrentLogOdds: t.CurrentLogOdds,
		RiskLevel:       string(trend.ClassifyRisk(prob)),
		ProbabilityBand: trend.ProbabilityBand(prob),
		Active:          t.Active, UpdatedAt: t.UpdatedAt,
	}
}

func (h *handlers) listTrends(w http.ResponseWriter, r *http.Request) {
	active, err := h.d.Trends.ListActive(r.Context())
	if err != nil {
		internalError(w, err)
		return
	}
	out := make([]trendSummary, 0, len(active))
	for _, t := range active {
		out = append(out, h.summarize(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func parseTrendID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	return id, err == nil
}

// trendDetail extends trendSummary with direction/confidence, derived
// from a 24h-ago snapshot comparison per spec.md §4.5.
type trendDetail struct {
	trendSummary
	Direction        string `json:"direction"`
	ConfidenceRating string `json:"confidence_rating"`
	EvidenceCount24h int    `json:"evidence_count_24h"`
}

func (h *handlers) getTrend(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTrendID(r)
	if !ok {
		badRequest(w, "invalid trend id")
		return
	}
	t, err := h.d.Trends.Get(r.Context(), id)
	if err != nil {
		notFound(w, "trend not found")
		return
	}
	writeJSON(w, http.StatusOK, h.detail(r, t))
}

func (h *handlers) detail(r *http.Request, t models.Trend) trendDetail {
	now := time.Now()
	summary := h.summarize(t)

	bandWidthPct := 0.0
	direction := string(trend.DirectionStable)
	if snap, found, err := h.d.Snapshots.Latest(r.Context(), t.ID, now.Add(-24*time.Hour)); err == nil && found {
		past := trend.Probability(snap.LogOdds, h.bounds())
		direction = string(trend.ClassifyDirection(summary.CurrentProbability, past))
		delta := summary.CurrentProbability - past
		if delta < 0 {
			delta = -delta
		}
		bandWidthPct = delta * 100
	}

	evidenceCount := 0
	avgCorroboration := 0.0
	if rows, err := h.d.Evidence.ListForTrend(r.Context(), t.ID, false, 50); err == nil {
		evidenceCount = len(rows)
		var sum float64
		for _, e := range rows {
			sum += e.CorroborationFactor
		}
		if evidenceCount > 0 {
			avgCorroboration = sum / float64(evidenceCount)
		}
	}

	count24h := 0
	if n, err := h.d.Evidence.CountSince(r.Context(), t.ID, now.Add(-24*time.Hour)); err == nil {
		count24h = n
	}

	return trendDetail{
		trendSummary:     summary,
		Direction:        direction,
		ConfidenceRating: string(trend.ClassifyConfidence(bandWidthPct, evidenceCount, avgCorroboration)),
		EvidenceCount24h: count24h,
	}
}

func (h *handlers) trendEvidence(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTrendID(r)
	if !ok {
		badRequest(w, "invalid trend id")
		return
	}
	includeInvalidated := r.URL.Query().Get("include_invalidated") == "true"
	limit := 200
	rows, err := h.d.Evidence.ListForTrend(r.Context(), id, includeInvalidated, limit)
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *handlers) trendHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTrendID(r)
	if !ok {
		badRequest(w, "invalid trend id")
		return
	}
	days := queryInt(r, "days", 30)
	until := time.Now()
	since := until.Add(-time.Duration(days) * 24 * time.Hour)
	snaps, err := h.d.Snapshots.ListRange(r.Context(), id, since, until)
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (h *handlers) trendRetrospective(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTrendID(r)
	if !ok {
		badRequest(w, "invalid trend id")
		return
	}
	days := queryInt(r, "days", 180)
	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	outcomes, err := h.d.Outcomes.ListResolved(r.Context(), id, since)
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcomes)
}

func (h *handlers) trendDefinitionHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTrendID(r)
	if !ok {
		badRequest(w, "invalid trend id")
		return
	}
	versions, err := h.d.Trends.ListDefinitionVersions(r.Context(), id)
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (h *handlers) trendCalibration(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTrendID(r)
	if !ok {
		badRequest(w, "invalid trend id")
		return
	}
	days := queryInt(r, "days", 180)
	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	outcomes, err := h.d.Outcomes.ListResolved(r.Context(), id, since)
	if err != nil {
		internalError(w, err)
		return
	}
	report := make([]float64, 0, len(outcomes))
	for _, o := range outcomes {
		report = append(report, o.PredictedProb)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trend_id":        id,
		"sample_size":      len(outcomes),
		"predicted_probs": report,
	})
}

type simulateRequest struct {
	Mode         string                            `json:"mode"`
	EventID      *uuid.UUID                        `json:"event_id,omitempty"`
	SignalType   string                            `json:"signal_type,omitempty"`
	Hypothetical *counterfactual.HypotheticalSignal `json:"hypothetical,omitempty"`
}

func (h *handlers) simulateTrend(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTrendID(r)
	if !ok {
		badRequest(w, "invalid trend id")
		return
	}
	var body simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	result, err := h.d.Simulator.Simulate(r.Context(), counterfactual.Request{
		TrendID:      id,
		Mode:         counterfactual.Mode(body.Mode),
		EventID:      body.EventID,
		SignalType:   body.SignalType,
		Hypothetical: body.Hypothetical,
	}, time.Now())
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type recordOutcomeRequest struct {
	PredictionDate time.Time `json:"prediction_date"`
	PredictedProb  float64   `json:"predicted_prob"`
	PredictedRisk  string    `json:"predicted_risk"`
	PredictedBand  string    `json:"predicted_band"`
}

func (h *handlers) recordOutcome(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTrendID(r)
	if !ok {
		badRequest(w, "invalid trend id")
		return
	}
	var body recordOutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	outcome := &models.TrendOutcome{
		TrendID:        id,
		PredictionDate: body.PredictionDate,
		PredictedProb:  body.PredictedProb,
		PredictedRisk:  body.PredictedRisk,
		PredictedBand:  body.PredictedBand,
		Outcome:        models.OutcomeOngoing,
	}
	if err := h.d.Outcomes.Insert(r.Context(), outcome); err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, outcome)
}

type resolveOutcomeRequest struct {
	Outcome     models.OutcomeKind `json:"outcome"`
	OutcomeDate time.Time          `json:"outcome_date"`
}

func (h *handlers) resolveOutcome(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "outcomeId"))
	if err != nil {
		badRequest(w, "invalid outcome id")
		return
	}
	var body resolveOutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	outcome, err := h.d.Outcomes.Get(r.Context(), id)
	if err != nil {
		notFound(w, "outcome not found")
		return
	}
	brier := 0.0
	if body.Outcome.Resolved() {
		diff := outcome.PredictedProb - body.Outcome.Actual()
		brier = diff * diff
	}
	if err := h.d.Outcomes.Resolve(r.Context(), id, body.Outcome, body.OutcomeDate, brier); err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
