package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcal/internal/markethours"
	"marketcal/internal/model"
)

func TestMetrics_ObserveEvent(t *testing.T) {
	m := NewMetrics()

	m.ObserveEvent(model.SessionEvent{Kind: model.EventOpen, Status: markethours.MarketStatus{Open: true}})
	m.ObserveEvent(model.SessionEvent{Kind: model.EventHeartbeat, Status: markethours.MarketStatus{Open: true, PricePolling: true}})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MarketState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PricePolling))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionTransitions.WithLabelValues("open")))

	m.ObserveEvent(model.SessionEvent{Kind: model.EventClose})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.MarketState))

	m.ObserveBreaker(1)
	m.ObserveBreaker(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RedisCircuitBreakerState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RedisCircuitBreakerTrips))

	m.ObserveJob("rules-audit", nil)
	m.ObserveJob("rules-audit", errors.New("gap"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues("rules-audit", "error")))
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics()
		NewMetrics()
	})
}

func TestHealthStatus(t *testing.T) {
	start := time.Date(2024, 1, 16, 14, 30, 0, 0, time.UTC)
	now := start

	h := NewHealthStatus("2027.1", true, 5*time.Minute)
	h.StartedAt = start
	h.now = func() time.Time { return now }

	_, code := h.Report()
	assert.Equal(t, http.StatusServiceUnavailable, code, "no probes yet")

	h.SetSQLiteOK(true)
	h.SetRedisConnected(true)
	h.MarkEvent(start)
	now = start.Add(time.Minute)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "2027.1", body["rules_version"])
	assert.Equal(t, "1m0s", body["event_age"])

	now = start.Add(10 * time.Minute)
	r, code := h.Report()
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", r.Status, "stale clock")

	h.SetSQLiteOK(false)
	r, _ = h.Report()
	assert.Equal(t, "unhealthy", r.Status)
}

func TestHealthStatus_RedisDisabled(t *testing.T) {
	h := NewHealthStatus("test", false, 0)
	h.SetSQLiteOK(true)

	r, code := h.Report()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", r.Status)
}
