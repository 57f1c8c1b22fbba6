package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic,
// workflow transitions, the status sweeper and post-commit hooks.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	operations      *prometheus.CounterVec
	sweepDuration   prometheus.Histogram
	sweepRuns       *prometheus.CounterVec
	sweepErrors     prometheus.Counter
	hookFailures    *prometheus.CounterVec
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "request_cache_lookups_total",
		Help: "Request read cache lookups by result",
	}, []string{"result"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "foil_status_transitions_total",
		Help: "Request status transitions by source and target status",
	}, []string{"from", "to", "trigger"})

	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "foil_workflow_operations_total",
		Help: "Workflow operations by name and outcome code",
	}, []string{"operation", "outcome"})

	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "foil_sweep_duration_seconds",
		Help:    "Duration of status sweeps",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	})

	sweepRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "foil_sweep_runs_total",
		Help: "Status sweep runs by result",
	}, []string{"result"})

	sweepErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "foil_sweep_request_errors_total",
		Help: "Per-request failures collected by status sweeps",
	})

	hookFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "foil_hook_failures_total",
		Help: "Post-commit hook failures by hook",
	}, []string{"hook"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLookups, transitions, operations,
		sweepDuration, sweepRuns, sweepErrors, hookFailures, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLookups:    cacheLookups,
		transitions:     transitions,
		operations:      operations,
		sweepDuration:   sweepDuration,
		sweepRuns:       sweepRuns,
		sweepErrors:     sweepErrors,
		hookFailures:    hookFailures,
	}
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheLookup counts request cache hits and misses.
func (m *MetricsService) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordTransition counts a committed status change.
func (m *MetricsService) RecordTransition(from, to, trigger string) {
	if m == nil || from == to {
		return
	}
	m.transitions.WithLabelValues(from, to, trigger).Inc()
}

// RecordOperation counts a workflow call by its outcome code ("ok" on success).
func (m *MetricsService) RecordOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// ObserveSweep records a finished sweep.
func (m *MetricsService) ObserveSweep(duration time.Duration, requestErrors int, failed bool) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
	result := "ok"
	switch {
	case failed:
		result = "failed"
	case requestErrors > 0:
		result = "partial"
	}
	m.sweepRuns.WithLabelValues(result).Inc()
	m.sweepErrors.Add(float64(requestErrors))
}

// RecordHookFailure counts a post-commit hook that gave up.
func (m *MetricsService) RecordHookFailure(hook string) {
	if m == nil {
		return
	}
	m.hookFailures.WithLabelValues(hook).Inc()
}
