package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/felixgeelhaar/hangar/internal/errors"
)

// Metrics holds all Prometheus metrics for hangar.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Session lifecycle metrics
	SessionOperations *prometheus.CounterVec
	SessionDuration   *prometheus.HistogramVec
	TokenRefresh      *prometheus.CounterVec
	Redirects         *prometheus.CounterVec

	// Backend API metrics
	APIRequests *prometheus.CounterVec
	APIDuration *prometheus.HistogramVec

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		SessionOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hangar_session_operations_total",
				Help: "Total number of session operations by outcome",
			},
			[]string{"op", "result"},
		),
		SessionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hangar_session_operation_duration_seconds",
				Help:    "Session operation duration in seconds, including backend calls",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"op"},
		),
		TokenRefresh: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hangar_token_refresh_total",
				Help: "Total number of access token refresh attempts",
			},
			[]string{"result"},
		),
		Redirects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hangar_redirects_total",
				Help: "Total number of route guard redirects",
			},
			[]string{"target"},
		),

		APIRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hangar_api_requests_total",
				Help: "Total number of backend API requests",
			},
			[]string{"endpoint", "status"},
		),
		APIDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hangar_api_request_duration_seconds",
				Help:    "Backend API request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hangar_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code", "component"},
		),
	}
}

// ObserveSessionOp records one session operation
func (m *Metrics) ObserveSessionOp(op, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.SessionOperations.WithLabelValues(op, result).Inc()
	m.SessionDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordRefresh records a refresh attempt: "success", "rejected" or "user_fetch_failed"
func (m *Metrics) RecordRefresh(result string) {
	if m == nil {
		return
	}
	m.TokenRefresh.WithLabelValues(result).Inc()
}

// RecordRedirect records a route guard redirect to target
func (m *Metrics) RecordRedirect(target string) {
	if m == nil {
		return
	}
	m.Redirects.WithLabelValues(target).Inc()
}

// ObserveAPIRequest records a backend call. A status of 0 means the
// request never produced a response.
func (m *Metrics) ObserveAPIRequest(endpoint string, status int, d time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.APIRequests.WithLabelValues(endpoint, label).Inc()
	m.APIDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RecordError counts err under its structured code, or "unknown"
func (m *Metrics) RecordError(err error, component string) {
	if m == nil || err == nil {
		return
	}
	code := string(errors.Code(err))
	if code == "" {
		code = "unknown"
	}
	m.Errors.WithLabelValues(code, component).Inc()
}
