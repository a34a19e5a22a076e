package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestPrometheus_RateLimitDecisions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMetrics(reg)
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	m.RecordRateLimit("invitation", DecisionAllowed)
	m.RecordRateLimit("invitation", DecisionAllowed)
	m.RecordRateLimit("invitation", DecisionRejected)
	m.RecordRateLimit("org_create", DecisionFailOpen)

	if val := getCounterValue(t, m.RateLimitDecisions, "invitation", DecisionAllowed); val != 2 {
		t.Errorf("expected 2 allowed, got %f", val)
	}
	if val := getCounterValue(t, m.RateLimitDecisions, "invitation", DecisionRejected); val != 1 {
		t.Errorf("expected 1 rejected, got %f", val)
	}
	if val := getCounterValue(t, m.RateLimitDecisions, "org_create", DecisionFailOpen); val != 1 {
		t.Errorf("expected 1 fail_open, got %f", val)
	}
}

func TestPrometheus_InvitationsAndAudit(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMetrics(reg)
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	m.RecordInvitation("accepted")
	m.RecordAuditFailure("invitation.accepted")

	if val := getCounterValue(t, m.InvitationTransitions, "accepted"); val != 1 {
		t.Errorf("expected 1, got %f", val)
	}
	if val := getCounterValue(t, m.AuditWriteFailures, "invitation.accepted"); val != 1 {
		t.Errorf("expected 1, got %f", val)
	}
}

func TestPrometheus_HTTPRequestDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMetrics(reg)
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	m.ObserveHTTPRequest("GET", "/api/v1/me/context", "200", 0.25)
	m.ObserveHTTPRequest("GET", "/api/v1/me/context", "200", 0.5)

	observer := m.HTTPRequestDuration.WithLabelValues("GET", "/api/v1/me/context", "200")
	var metric dto.Metric
	if err := observer.(prometheus.Metric).Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if got := metric.GetHistogram().GetSampleCount(); got != 2 {
		t.Errorf("expected count 2, got %d", got)
	}
	if got := metric.GetHistogram().GetSampleSum(); got != 0.75 {
		t.Errorf("expected sum 0.75, got %f", got)
	}
}

func TestPrometheus_DoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheusMetrics(reg); err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	if _, err := NewPrometheusMetrics(reg); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestPrometheus_NilIsNoop(t *testing.T) {
	var m *PrometheusMetrics
	m.RecordRateLimit("mutation", DecisionAllowed)
	m.RecordInvitation("pending")
	m.RecordAuditFailure("team.created")
	m.ObserveHTTPRequest("GET", "/", "200", 1)
}

func getCounterValue(t *testing.T, counter *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	var m dto.Metric
	if err := counter.WithLabelValues(labels...).(prometheus.Metric).Write(&m); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}
