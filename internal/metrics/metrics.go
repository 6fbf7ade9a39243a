// Package metrics exposes the Prometheus counters and gauges the
// ingestion pipeline, LLM policy layer, and worker supervisor update
// as they run — scraped at /metrics alongside the rest of the HTTP
// surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LLMRequestDuration tracks Tier-1/Tier-2 call latency per
	// provider and tier, split by whether the call succeeded.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_llm_request_duration_seconds",
			Help:    "Duration of LLM provider calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "tier", "outcome"},
	)

	// LLMRequestsTotal counts every Tier-1/Tier-2 invocation attempt.
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_llm_requests_total",
			Help: "Total number of LLM provider call attempts",
		},
		[]string{"provider", "tier", "outcome"},
	)

	// LLMCostUSD accumulates the actual, settled cost of every call.
	LLMCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_llm_cost_usd_total",
			Help: "Cumulative settled LLM spend in USD",
		},
		[]string{"provider", "tier"},
	)

	// CircuitBreakerState mirrors gobreaker's closed/half-open/open
	// state per provider (0=closed, 1=half-open, 2=open).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentinel_llm_circuit_breaker_state",
			Help: "LLM provider circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"provider"},
	)

	// PipelineItemsProcessed counts pipeline stage completions recorded
	// by the orchestrator: one "noise", "clustered" or "error" per raw
	// item, plus one "extracted" per event that finished Tier-2 and
	// evidence application.
	PipelineItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_pipeline_items_processed_total",
			Help: "Total number of raw items processed by the ingestion pipeline",
		},
		[]string{"stage"}, // "noise", "clustered", "error", "extracted"
	)

	// PipelineStageDuration tracks wall-clock time per pipeline stage.
	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_pipeline_stage_duration_seconds",
			Help:    "Duration of each ingestion pipeline stage in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// WorkerJobsProcessed counts queue jobs the worker supervisor has
	// dispatched, split by job type and outcome.
	WorkerJobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_worker_jobs_processed_total",
			Help: "Total number of queue jobs processed by the worker supervisor",
		},
		[]string{"job_type", "outcome"},
	)
)

// RecordLLMCall records the duration and outcome of one Tier-1/Tier-2
// provider call.
func RecordLLMCall(provider, tier string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	LLMRequestDuration.WithLabelValues(provider, tier, outcome).Observe(duration.Seconds())
	LLMRequestsTotal.WithLabelValues(provider, tier, outcome).Inc()
}

// RecordLLMCost adds a settled charge to the cumulative spend counter.
func RecordLLMCost(provider, tier string, costUSD float64) {
	if costUSD <= 0 {
		return
	}
	LLMCostUSD.WithLabelValues(provider, tier).Add(costUSD)
}

// SetCircuitBreakerState mirrors a gobreaker state transition into
// the Prometheus gauge (0=closed, 1=half-open, 2=open).
func SetCircuitBreakerState(provider string, state int) {
	CircuitBreakerState.WithLabelValues(provider).Set(float64(state))
}

// RecordPipelineStage records one raw item completing a pipeline
// stage in the given duration.
func RecordPipelineStage(stage string, duration time.Duration) {
	PipelineStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	PipelineItemsProcessed.WithLabelValues(stage).Inc()
}

// RecordWorkerJob records a queue job's dispatch outcome.
func RecordWorkerJob(jobType string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	WorkerJobsProcessed.WithLabelValues(jobType, outcome).Inc()
}
