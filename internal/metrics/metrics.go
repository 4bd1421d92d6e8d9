// Package metrics holds the Prometheus collectors of the noise map service.
// Collectors register with the default registry on import and are served
// from GET /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Analytics pipelines
	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "noisemap_pipeline_duration_seconds",
			Help:    "Duration of analytics pipelines, fetch included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pipeline"},
	)

	PipelineErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noisemap_pipeline_errors_total",
			Help: "Analytics pipelines that failed to produce a result",
		},
		[]string{"pipeline"},
	)

	// MalformedRecords counts records a pipeline left out because a field it
	// needs is missing or unusable.
	MalformedRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noisemap_malformed_records_total",
			Help: "Records skipped by a pipeline because of missing or invalid fields",
		},
		[]string{"pipeline"},
	)

	// Store access
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "noisemap_store_operation_duration_seconds",
			Help:    "Duration of record and counter store calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noisemap_store_operation_errors_total",
			Help: "Record and counter store calls that failed",
		},
		[]string{"operation"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "noisemap_store_breaker_state",
			Help: "Circuit breaker state per store (0 closed, 1 half-open, 2 open)",
		},
		[]string{"breaker"},
	)

	// Counters ledger
	LedgerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noisemap_ledger_failures_total",
			Help: "Counter updates that failed after the record operation succeeded",
		},
		[]string{"operation"},
	)

	// HTTP
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noisemap_api_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "noisemap_api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordPipeline records one pipeline run.
func RecordPipeline(pipeline string, duration time.Duration, err error) {
	PipelineDuration.WithLabelValues(pipeline).Observe(duration.Seconds())
	if err != nil {
		PipelineErrors.WithLabelValues(pipeline).Inc()
	}
}

func RecordMalformed(pipeline string) {
	MalformedRecords.WithLabelValues(pipeline).Inc()
}

// RecordStoreOperation records one call into a store.
func RecordStoreOperation(operation string, duration time.Duration, err error) {
	StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		StoreOperationErrors.WithLabelValues(operation).Inc()
	}
}

func RecordLedgerFailure(operation string) {
	LedgerFailures.WithLabelValues(operation).Inc()
}

func SetBreakerState(breaker string, state int) {
	BreakerState.WithLabelValues(breaker).Set(float64(state))
}

func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
