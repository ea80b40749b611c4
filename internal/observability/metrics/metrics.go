// Package metrics exposes Prometheus collectors for the access gate, auth service and HTTP layer.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	obserrors "github.com/target/institute-web/internal/observability/errors"
)

// Result constants for metric labels.
const (
	ResultAllow = "allow"
	ResultDeny  = "deny"
)

const namespace = "institute"

// Metrics groups every collector the service registers. A nil *Metrics is a no-op sink.
type Metrics struct {
	GateDecisions *prometheus.CounterVec
	AuthEvents    *prometheus.CounterVec
	AuthFailures  *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		GateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Access gate decisions by result and reason",
		}, []string{"result", "reason"}),
		AuthEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "session_events_total",
			Help:      "Session change notifications published",
		}, []string{"kind"}),
		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "failures_total",
			Help:      "Failed auth operations by operation and error class",
		}, []string{"operation", "error_class"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method and status",
		}, []string{"method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	if reg != nil {
		reg.MustRegister(m.GateDecisions, m.AuthEvents, m.AuthFailures, m.HTTPRequests, m.HTTPDuration)
	}
	return m
}

// RecordGateDecision counts one access gate decision.
func (m *Metrics) RecordGateDecision(allow bool, reason string) {
	if m == nil {
		return
	}
	result := ResultDeny
	if allow {
		result = ResultAllow
	}
	m.GateDecisions.WithLabelValues(result, reason).Inc()
}

// RecordAuthEvent counts a published session event.
func (m *Metrics) RecordAuthEvent(kind string) {
	if m == nil {
		return
	}
	m.AuthEvents.WithLabelValues(kind).Inc()
}

// RecordAuthFailure counts a failed auth operation, labelled with the error class.
func (m *Metrics) RecordAuthFailure(operation string, err error) {
	if m == nil || err == nil {
		return
	}
	m.AuthFailures.WithLabelValues(operation, obserrors.Classify(err)).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method).Observe(d.Seconds())
}
