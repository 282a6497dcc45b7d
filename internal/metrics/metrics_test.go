package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RateLimitDecision(true)
	m.RateLimitDecision(false)
	m.RateLimitDecision(false)
	m.LoginOutcome("failed")
	m.InputViolation("sql_injection")
	m.FileScan("suspicious")
	m.SecurityEvent("account_locked", "high")
	m.AlertDropped()
	m.ObserveRequest(http.MethodGet, http.StatusOK, 20*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitDecisions.WithLabelValues("limited")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RateLimitDecisions.WithLabelValues("allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginOutcomes.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InputViolations.WithLabelValues("sql_injection")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FileScans.WithLabelValues("suspicious")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SecurityEvents.WithLabelValues("account_locked", "high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "200")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RateLimitDecision(true)
		m.LoginOutcome("success")
		m.InputViolation("xss")
		m.FileScan("clean")
		m.SecurityEvent("login_failed", "medium")
		m.AlertDropped()
		m.ObserveRequest(http.MethodPost, http.StatusCreated, time.Second)
	})
}

func TestHandler_ExposesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.LoginOutcome("blocked")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `farmguard_login_outcomes_total{outcome="blocked"} 1`)
}
