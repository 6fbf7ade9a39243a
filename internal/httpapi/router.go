package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/archwatch/sentinel/internal/calibration"
	"github.com/archwatch/sentinel/internal/config"
	"github.com/archwatch/sentinel/internal/counterfactual"
	"github.com/archwatch/sentinel/internal/evidence"
	"github.com/archwatch/sentinel/internal/storage"
	"github.com/archwatch/sentinel/internal/taxonomy"
)

// maxBodyBytes bounds every request this surface accepts — small,
// since every payload here is a triage action or a query, never a
// raw-item upload (collectors write directly to storage).
const maxBodyBytes = 256 * 1024

// Deps bundles every repo/service a handler in this package needs.
type Deps struct {
	DB          *storage.DB
	Trends      *storage.TrendRepo
	Events      *storage.EventRepo
	Evidence    *storage.EvidenceRepo
	Snapshots   *storage.SnapshotRepo
	Outcomes    *storage.OutcomeRepo
	Feedback    *storage.FeedbackRepo
	ApiUsage    *storage.ApiUsageRepo

	Ledger      *evidence.Ledger
	Simulator   *counterfactual.Simulator
	Scorer      *calibration.Scorer
	Triage      *taxonomy.Triage

	TrendCfg config.TrendSettings
	LLMCfg   config.LLMSettings

	Log zerolog.Logger
}

// NewRouter assembles the chi router: CORS, request-id, panic
// recovery, request logging, body-size limit — then the routes below
// (trend reads and sub-resources only; no trend create/update/delete).
// No auth/rate-limit middleware; that belongs to
// the API layer in front of this core per spec.md §1.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           3600,
	}))
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(d.Log))
	r.Use(chimw.RequestSize(maxBodyBytes))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "sentinel"})
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "service": "sentinel"})
	})
	r.Handle("/metrics", promhttp.Handler())

	h := &handlers{d: d}

	r.Route("/trends", func(r chi.Router) {
		r.Get("/", h.listTrends)
		r.Get("/{id}", h.getTrend)
		r.Get("/{id}/evidence", h.trendEvidence)
		r.Get("/{id}/history", h.trendHistory)
		r.Get("/{id}/retrospective", h.trendRetrospective)
		r.Get("/{id}/definition-history", h.trendDefinitionHistory)
		r.Get("/{id}/calibration", h.trendCalibration)
		r.Post("/{id}/simulate", h.simulateTrend)
		r.Post("/{id}/outcomes", h.recordOutcome)
		r.Patch("/outcomes/{outcomeId}", h.resolveOutcome)
	})

	r.Get("/events", h.listEvents)
	r.Get("/budget", h.budget)

	r.Route("/review-queue", func(r chi.Router) {
		r.Get("/", h.reviewQueue)
		r.Post("/", h.submitFeedback)
	})

	r.Route("/taxonomy-gaps", func(r chi.Router) {
		r.Get("/", h.listTaxonomyGaps)
		r.Post("/{id}/resolve", h.resolveTaxonomyGap)
		r.Post("/{id}/reject", h.rejectTaxonomyGap)
	})

	r.Get("/reports/calibration", h.calibrationReport)

	return r
}

// requestLogger mirrors the teacher's mwRequestLogger: wraps the
// response writer to capture status/duration and logs one line per
// request, tagged with chi's request id.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", chimw.GetReqID(r.Context())).
				Int("status", rw.Status()).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		})
	}
}
