// Package observability exposes the Prometheus instruments used across the
// service. Init binds them to a registry; before Init (or with enabled=false)
// every observe call is a no-op, which keeps unit tests quiet.
package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu      sync.Mutex
	enabled bool

	compositeReads       *prometheus.CounterVec
	compositeDuration    *prometheus.HistogramVec
	sourceReadDuration   *prometheus.HistogramVec
	consistencyFailures  *prometheus.CounterVec
	catalogOps           *prometheus.CounterVec
	catalogOpDuration    *prometheus.HistogramVec
	catalogCache         *prometheus.CounterVec
	invalidationEvents   *prometheus.CounterVec
	invalidationDuration *prometheus.HistogramVec
	invalidationLag      prometheus.Gauge
	httpRequests         *prometheus.CounterVec
	httpDuration         *prometheus.HistogramVec
)

func Init(reg prometheus.Registerer, on bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = on && reg != nil
	if !enabled {
		return
	}

	compositeReads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coverage_view_reads_total",
		Help: "Composite read requests by outcome.",
	}, []string{"view", "outcome"})

	compositeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coverage_view_read_duration_seconds",
		Help:    "Duration of composite reads in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"view", "outcome"})

	sourceReadDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "source_read_duration_seconds",
		Help:    "Duration of per-source pixel reads in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"source", "status"})

	consistencyFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "source_consistency_failures_total",
		Help: "Sources rejected by the consistency checker, by aspect.",
	}, []string{"aspect"})

	catalogOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_op_total",
		Help: "Catalog store operations by status.",
	}, []string{"op", "status"})

	catalogOpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_op_duration_seconds",
		Help:    "Duration of catalog store operations in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"op"})

	catalogCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_cache_total",
		Help: "Catalog LRU results by outcome.",
	}, []string{"outcome"})

	invalidationEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "view_invalidation_events_total",
		Help: "View invalidation events by op and status.",
	}, []string{"op", "status"})

	invalidationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "view_invalidation_duration_seconds",
		Help:    "Time spent applying one invalidation event.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"op"})

	invalidationLag = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "view_invalidation_lag_seconds",
		Help: "Age of the most recently consumed invalidation event.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"method", "route", "status"})

	reg.MustRegister(
		compositeReads, compositeDuration, sourceReadDuration,
		consistencyFailures, catalogOps, catalogOpDuration, catalogCache,
		invalidationEvents, invalidationDuration, invalidationLag,
		httpRequests, httpDuration,
	)
}

func on() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func ObserveCompositeRead(view, outcome string, seconds float64) {
	if !on() {
		return
	}
	compositeReads.WithLabelValues(view, outcome).Inc()
	compositeDuration.WithLabelValues(view, outcome).Observe(seconds)
}

func ObserveSourceRead(source string, err error, seconds float64) {
	if !on() {
		return
	}
	sourceReadDuration.WithLabelValues(source, status(err)).Observe(seconds)
}

func IncConsistencyFailure(aspect string) {
	if !on() {
		return
	}
	consistencyFailures.WithLabelValues(aspect).Inc()
}

func ObserveCatalogOp(op string, err error, seconds float64) {
	if !on() {
		return
	}
	catalogOps.WithLabelValues(op, status(err)).Inc()
	catalogOpDuration.WithLabelValues(op).Observe(seconds)
}

func IncCatalogHit() {
	if !on() {
		return
	}
	catalogCache.WithLabelValues("hit").Inc()
}

func IncCatalogMiss() {
	if !on() {
		return
	}
	catalogCache.WithLabelValues("miss").Inc()
}

func ObserveInvalidation(op string, err error, seconds float64) {
	if !on() {
		return
	}
	invalidationEvents.WithLabelValues(op, status(err)).Inc()
	invalidationDuration.WithLabelValues(op).Observe(seconds)
}

func SetInvalidationLagSeconds(v float64) {
	if !on() {
		return
	}
	invalidationLag.Set(v)
}

func ObserveHTTP(method, route string, statusCode int, seconds float64) {
	if !on() {
		return
	}
	st := strconv.Itoa(statusCode)
	httpRequests.WithLabelValues(method, route, st).Inc()
	httpDuration.WithLabelValues(method, route, st).Observe(seconds)
}
