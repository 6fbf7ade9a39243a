// Package httpapi implements the thin HTTP contract surface spec.md §6
// names (trend list/detail + sub-resources, /events, /budget,
// /review-queue, /taxonomy-gaps, /reports/calibration) over the core
// packages. There are no trend create, update or delete routes. It
// carries no auth or rate-limiting — that is the API layer's job per
// spec.md §1 — only the ambient request-id/recovery/logging middleware
// every handler benefits from, grounded on the teacher's
// router/router.go chain.
package httpapi

import (
	"github.com/goccy/go-json"
	"net/http"

	"github.com/rs/zerolog/log"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("httpapi: encode response failed")
	}
}

type errBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errBody{Error: code, Message: message})
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, "bad_request", message)
}

func notFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, "not_found", message)
}

func internalError(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("httpapi: handler error")
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
