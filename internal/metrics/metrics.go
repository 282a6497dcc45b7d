package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "farmguard"

// Metrics holds the security counters exported on /metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RateLimitDecisions  *prometheus.CounterVec
	LoginOutcomes       *prometheus.CounterVec
	InputViolations     *prometheus.CounterVec
	FileScans           *prometheus.CounterVec
	SecurityEvents      *prometheus.CounterVec
	AlertsDropped       prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Histogram of HTTP request latency",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method"},
		),
		RateLimitDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_decisions_total",
				Help:      "Rate limit decisions by outcome",
			},
			[]string{"decision"},
		),
		LoginOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "login_outcomes_total",
				Help:      "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		InputViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "input_violations_total",
				Help:      "Rejected input by pattern family",
			},
			[]string{"family"},
		),
		FileScans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "file_scans_total",
				Help:      "Completed upload scans by status",
			},
			[]string{"status"},
		),
		SecurityEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "security_events_total",
				Help:      "Security events recorded by type and severity",
			},
			[]string{"event_type", "severity"},
		),
		AlertsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_dropped_total",
				Help:      "Alerts discarded because the dispatch queue was full",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RateLimitDecisions,
		m.LoginOutcomes,
		m.InputViolations,
		m.FileScans,
		m.SecurityEvents,
		m.AlertsDropped,
	)

	return m
}

func (m *Metrics) ObserveRequest(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) RateLimitDecision(limited bool) {
	if m == nil {
		return
	}
	decision := "allowed"
	if limited {
		decision = "limited"
	}
	m.RateLimitDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) LoginOutcome(outcome string) {
	if m == nil {
		return
	}
	m.LoginOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) InputViolation(family string) {
	if m == nil {
		return
	}
	m.InputViolations.WithLabelValues(family).Inc()
}

func (m *Metrics) FileScan(status string) {
	if m == nil {
		return
	}
	m.FileScans.WithLabelValues(status).Inc()
}

func (m *Metrics) SecurityEvent(eventType, severity string) {
	if m == nil {
		return
	}
	m.SecurityEvents.WithLabelValues(eventType, severity).Inc()
}

func (m *Metrics) AlertDropped() {
	if m == nil {
		return
	}
	m.AlertsDropped.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
