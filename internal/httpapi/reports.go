package httpapi

import (
	"net/http"
	"time"
)

// calibrationReport implements /reports/calibration (spec.md §6): the
// global bucket/Brier sweep internal/calibration.Scorer computes over
// every trend's resolved outcomes.
func (h *handlers) calibrationReport(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 180)
	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)

	report, err := h.d.Scorer.ScoreGlobal(r.Context(), since)
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
