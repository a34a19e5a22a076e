// Package metrics provides Prometheus metrics for the tenancy service.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tenancy"

// Rate limit decisions.
const (
	DecisionAllowed  = "allowed"
	DecisionRejected = "rejected"
	DecisionFailOpen = "fail_open"
)

// PrometheusMetrics holds the collectors exported by the service.
// A nil *PrometheusMetrics is valid and records nothing.
type PrometheusMetrics struct {
	RateLimitDecisions    *prometheus.CounterVec
	InvitationTransitions *prometheus.CounterVec
	AuditWriteFailures    *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
}

// NewPrometheusMetrics creates the collectors and registers them with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		RateLimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_decisions_total",
			Help:      "Rate limiter decisions by action class and outcome.",
		}, []string{"class", "decision"}),
		InvitationTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invitation_transitions_total",
			Help:      "Invitations entering each lifecycle status.",
		}, []string{"status"}),
		AuditWriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_failures_total",
			Help:      "Audit entries that could not be persisted.",
		}, []string{"action"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	for _, c := range []prometheus.Collector{
		m.RateLimitDecisions,
		m.InvitationTransitions,
		m.AuditWriteFailures,
		m.HTTPRequestDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return m, nil
}

// RecordRateLimit counts a limiter decision for an action class.
func (m *PrometheusMetrics) RecordRateLimit(class, decision string) {
	if m == nil {
		return
	}
	m.RateLimitDecisions.WithLabelValues(class, decision).Inc()
}

// RecordInvitation counts an invitation entering status.
func (m *PrometheusMetrics) RecordInvitation(status string) {
	if m == nil {
		return
	}
	m.InvitationTransitions.WithLabelValues(status).Inc()
}

// RecordAuditFailure counts an audit entry that failed to persist.
func (m *PrometheusMetrics) RecordAuditFailure(action string) {
	if m == nil {
		return
	}
	m.AuditWriteFailures.WithLabelValues(action).Inc()
}

// ObserveHTTPRequest records the latency of one HTTP request.
func (m *PrometheusMetrics) ObserveHTTPRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(seconds)
}
