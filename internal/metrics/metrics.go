package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Backend metrics
	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_operations_total",
			Help: "Cache backend operations by operation and result",
		},
		[]string{"operation", "result"}, // result: ok, hit, miss, error
	)

	CacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_cache_operation_duration_seconds",
			Help:    "Latency of cache backend operations",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		},
		[]string{"operation"},
	)

	// Query cache metrics
	QueryCacheReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_query_cache_reads_total",
			Help: "Read-through results by scope family and outcome",
		},
		[]string{"scope", "outcome"}, // outcome: hit, miss, bypass
	)

	// Invalidation metrics
	GenerationBumps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_generation_bumps_total",
			Help: "Generation counters advanced, by scope family",
		},
		[]string{"scope"},
	)

	DetailKeyDeletes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_detail_key_deletes_total",
			Help: "Direct detail keys deleted on mutation",
		},
	)

	InvalidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_invalidation_failures_total",
			Help: "Invalidation steps skipped because the backend failed",
		},
		[]string{"step"}, // step: plan, bump, delete
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalog_cache_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Ingestion metrics
	IngestJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_ingest_jobs_total",
			Help: "Ingestion jobs by final outcome",
		},
		[]string{"outcome"}, // done, failed, gone, discarded, duplicate, enqueued
	)

	IngestStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_ingest_step_duration_seconds",
			Help:    "Duration of ingestion steps including retries",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60, 120},
		},
		[]string{"step", "status"},
	)

	IngestStepRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_ingest_step_retries_total",
			Help: "Retried ingestion step attempts",
		},
		[]string{"step"},
	)
)

// ScopeFamily strips the entity id from per-entity scopes so label
// cardinality stays bounded: "artist:stats:42" becomes "artist:stats".
func ScopeFamily(scope string) string {
	if i := strings.LastIndexByte(scope, ':'); i > 0 {
		return scope[:i]
	}
	return scope
}

func RecordCacheOperation(op, result string, d time.Duration) {
	CacheOperations.WithLabelValues(op, result).Inc()
	CacheOperationDuration.WithLabelValues(op).Observe(d.Seconds())
}

func RecordQueryRead(scope, outcome string) {
	QueryCacheReads.WithLabelValues(ScopeFamily(scope), outcome).Inc()
}

func RecordGenerationBump(scope string) {
	GenerationBumps.WithLabelValues(ScopeFamily(scope)).Inc()
}

func RecordDetailDeletes(n int) {
	DetailKeyDeletes.Add(float64(n))
}

func RecordInvalidationFailure(step string) {
	InvalidationFailures.WithLabelValues(step).Inc()
}

func RecordBreakerState(name string, state float64) {
	CircuitBreakerState.WithLabelValues(name).Set(state)
}

func RecordBreakerTransition(name, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}

func RecordIngestJob(outcome string) {
	IngestJobs.WithLabelValues(outcome).Inc()
}

// RecordIngestStep observes a finished step. A nil err records status "ok".
func RecordIngestStep(step string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	IngestStepDuration.WithLabelValues(step, status).Observe(d.Seconds())
}

func RecordIngestRetry(step string) {
	IngestStepRetries.WithLabelValues(step).Inc()
}
