// Package metrics defines the Prometheus collectors exported on /metrics.
//
// Collectors are registered on the Registerer passed to New, so tests can use
// a private registry instead of the global one.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "eightd"

// Metrics holds the eightd collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// RequestsTotal counts HTTP requests.
	// Labels: route (problems, root_causes, ...), method, code
	RequestsTotal *prometheus.CounterVec

	// RequestDuration measures HTTP handler latency.
	// Labels: route, method
	RequestDuration *prometheus.HistogramVec

	// StatusTransitions counts derived problem status changes.
	// Labels: to (OPEN, CLOSED), trigger (update, delete)
	StatusTransitions *prometheus.CounterVec

	// StatusDerivationFailures counts node edits whose status write failed.
	StatusDerivationFailures prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP handler latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"route", "method"},
		),
		StatusTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "problem_status_transitions_total",
				Help:      "Problem status changes caused by root cause edits",
			},
			[]string{"to", "trigger"},
		),
		StatusDerivationFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_derivation_failures_total",
				Help:      "Root cause edits that saved but failed to update the problem status",
			},
		),
	}

	reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.StatusTransitions, m.StatusDerivationFailures)
	return m
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(route, method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.RequestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// RecordStatusTransition records a derived status change.
func (m *Metrics) RecordStatusTransition(to, trigger string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(to, trigger).Inc()
}

// RecordDerivationFailure records a status write that failed after a node edit.
func (m *Metrics) RecordDerivationFailure() {
	if m == nil {
		return
	}
	m.StatusDerivationFailures.Inc()
}
