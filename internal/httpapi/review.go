package httpapi

import (
	"github.com/goccy/go-json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/archwatch/sentinel/internal/storage"
	"github.com/archwatch/sentinel/internal/storage/models"
)

// reviewQueue surfaces events needing human attention — contradicted
// clusters, the population spec.md §3 HumanFeedback exists to correct.
func (h *handlers) reviewQueue(w http.ResponseWriter, r *http.Request) {
	contradicted := true
	events, err := h.d.Events.ListByFilter(r.Context(), storage.EventFilter{
		Contradicted: &contradicted,
		Days:         queryInt(r, "days", 30),
		Limit:        queryInt(r, "limit", 100),
	})
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type feedbackRequest struct {
	Action         models.FeedbackAction `json:"action"`
	EventID        *string                `json:"event_id,omitempty"`
	TrendID        *string                `json:"trend_id,omitempty"`
	EvidenceID     *string                `json:"evidence_id,omitempty"`
	OriginalValue  string                 `json:"original_value"`
	CorrectedValue string                 `json:"corrected_value"`
	Actor          string                 `json:"actor"`
}

// submitFeedback implements the HumanFeedback write path (spec.md §3):
// every action is recorded as an append-only row; mark_noise and
// invalidate additionally drive the storage/ledger side effect the
// action names, since both already have a direct, safe implementation
// (EventRepo.SetSuppressed, evidence.Ledger.Invalidate). The other
// three actions (pin, override_delta, correct_category) are recorded
// for a reviewer to act on manually — this system has no automated
// effect for them yet.
func (h *handlers) submitFeedback(w http.ResponseWriter, r *http.Request) {
	var body feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	f := models.HumanFeedback{
		Action:         body.Action,
		OriginalValue:  body.OriginalValue,
		CorrectedValue: body.CorrectedValue,
		Actor:          body.Actor,
	}
	if id, ok := parseOptionalUUID(body.EventID); ok {
		f.EventID = &id
	}
	if id, ok := parseOptionalUUID(body.TrendID); ok {
		f.TrendID = &id
	}

	err := h.d.DB.WithTx(r.Context(), func(tx pgx.Tx) error {
		return h.d.Feedback.Insert(r.Context(), tx, &f)
	})
	if err != nil {
		internalError(w, err)
		return
	}

	now := time.Now()
	switch body.Action {
	case models.FeedbackMarkNoise:
		if f.EventID != nil {
			if err := h.d.Events.SetSuppressed(r.Context(), *f.EventID, true); err != nil {
				internalError(w, err)
				return
			}
		}
	case models.FeedbackInvalidate:
		evidenceID, ok := parseOptionalUUID(body.EvidenceID)
		if !ok {
			badRequest(w, "invalidate requires evidence_id")
			return
		}
		if _, err := h.d.Ledger.Invalidate(r.Context(), evidenceID, f.ID, now); err != nil {
			internalError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, f)
}

func parseOptionalUUID(s *string) (uuid.UUID, bool) {
	if s == nil || *s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
