package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/archwatch/sentinel/internal/taxonomy"
)

// listTaxonomyGaps implements the /taxonomy-gaps contract from
// spec.md §6: the open-triage review queue for Tier-2 impacts that
// named an unknown trend or signal type.
func (h *handlers) listTaxonomyGaps(w http.ResponseWriter, r *http.Request) {
	gaps, err := h.d.Triage.Open(r.Context())
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gaps)
}

func (h *handlers) resolveTaxonomyGap(w http.ResponseWriter, r *http.Request) {
	h.triageGap(w, r, h.d.Triage.Resolve)
}

func (h *handlers) rejectTaxonomyGap(w http.ResponseWriter, r *http.Request) {
	h.triageGap(w, r, h.d.Triage.Reject)
}

func (h *handlers) triageGap(w http.ResponseWriter, r *http.Request, transition func(ctx context.Context, id uuid.UUID, at time.Time) error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid gap id")
		return
	}
	if err := transition(r.Context(), id, time.Now()); err != nil {
		if err == taxonomy.ErrAlreadyTriaged {
			writeError(w, http.StatusConflict, "already_triaged", err.Error())
			return
		}
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}
