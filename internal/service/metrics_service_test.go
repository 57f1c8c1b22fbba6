package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/openrecords-api/internal/dto"
)

func TestWorkflowOperationsAreCounted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.seedRequest(t)

	_, err := f.determination.Acknowledge(ctx, officerGUID, r.ID, dto.AcknowledgePayload{Days: 5})
	require.NoError(t, err)
	_, err = f.determination.Acknowledge(ctx, officerGUID, r.ID, dto.AcknowledgePayload{Days: 5})
	require.Error(t, err)

	ops := f.metrics.operations
	assert.Equal(t, float64(1), testutil.ToFloat64(ops.WithLabelValues("acknowledge", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ops.WithLabelValues("acknowledge", "ALREADY_ACKNOWLEDGED")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.transitions.WithLabelValues("Open", "In Progress", "REQ_ACKNOWLEDGED")))
}

func TestSweepMetrics(t *testing.T) {
	m := NewMetricsService()
	m.ObserveSweep(time.Second, 0, false)
	m.ObserveSweep(time.Second, 2, false)
	m.ObserveSweep(time.Second, 0, true)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.sweepRuns.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sweepRuns.WithLabelValues("partial")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sweepRuns.WithLabelValues("failed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.sweepErrors))
}

func TestMetricsHandlerServesRegistry(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/requests/:id", http.StatusOK, 20*time.Millisecond)
	m.RecordTransition("Open", "Open", "noop")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `http_requests_total{method="GET",path="/api/v1/requests/:id",status="200"} 1`)
	assert.Contains(t, body, "goroutines_total")
	assert.NotContains(t, body, `from="Open",to="Open"`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	m.RecordOperation("acknowledge", "ok")
	m.ObserveSweep(time.Second, 1, false)
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
