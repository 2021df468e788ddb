package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveMessage("payment.approved", OutcomeApplied, time.Millisecond)
	m.ObserveConflict()
	m.ObserveOutbound("payment.process", nil)
	m.ObserveDeadLetter("orders.events")
	m.ObserveHTTPRequest("/api/orders", "202")
	m.AddRateLimitWait(time.Millisecond)
}

func TestHandler_ExposesCounters(t *testing.T) {
	m := NewMetrics()
	m.ObserveMessage("order.submitted", OutcomeCreated, 5*time.Millisecond)
	m.ObserveConflict()
	m.ObserveOutbound("payment.process", nil)

	rec := httptest.NewRecorder()
	Handler(m).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`orchard_messages_total{kind="order.submitted",outcome="created"} 1`,
		"orchard_version_conflicts_total 1",
		`orchard_outbound_total{kind="payment.process"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}
