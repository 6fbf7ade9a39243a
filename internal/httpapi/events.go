package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/archwatch/sentinel/internal/storage"
	"github.com/archwatch/sentinel/internal/storage/models"
)

// listEvents implements the /events contract from spec.md §6: filters
// {category, trend_id, lifecycle, contradicted, days, limit}.
func (h *handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := storage.EventFilter{
		Category:  q.Get("category"),
		Lifecycle: models.LifecycleStatus(q.Get("lifecycle")),
		Days:      queryInt(r, "days", 7),
		Limit:     queryInt(r, "limit", 100),
	}
	if v := q.Get("trend_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			badRequest(w, "invalid trend_id")
			return
		}
		f.TrendID = &id
	}
	if v := q.Get("contradicted"); v != "" {
		b := v == "true"
		f.Contradicted = &b
	}

	events, err := h.d.Events.ListByFilter(r.Context(), f)
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
