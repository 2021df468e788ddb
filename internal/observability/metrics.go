package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Message outcomes recorded per processed delivery.
const (
	OutcomeCreated   = "created"
	OutcomeApplied   = "applied"
	OutcomeIgnored   = "ignored"
	OutcomeOrphan    = "orphan"
	OutcomeMalformed = "malformed"
	OutcomeFailed    = "failed"
)

// Metrics owns the Prometheus registry and the collectors shared across
// the orchestrator, the bus and the submission API.
type Metrics struct {
	registry *prometheus.Registry

	messages       *prometheus.CounterVec
	conflicts      prometheus.Counter
	outbound       *prometheus.CounterVec
	outboundErrors *prometheus.CounterVec
	deadLetters    *prometheus.CounterVec
	handleDuration *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
	rateLimitWaits prometheus.Counter
}

// NewMetrics constructs a Metrics with its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchard_messages_total",
			Help: "Inbound messages by kind and processing outcome.",
		}, []string{"kind", "outcome"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orchard_version_conflicts_total",
			Help: "Optimistic concurrency conflicts during persist.",
		}),
		outbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchard_outbound_total",
			Help: "Outbound commands and events by kind.",
		}, []string{"kind"}),
		outboundErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchard_outbound_errors_total",
			Help: "Outbound dispatch failures by kind.",
		}, []string{"kind"}),
		deadLetters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchard_dead_letters_total",
			Help: "Deliveries parked on the dead-letter stream.",
		}, []string{"stream"}),
		handleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orchard_handle_duration_seconds",
			Help:    "Time spent handling one delivery.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchard_http_requests_total",
			Help: "Submission API requests by route and status code.",
		}, []string{"route", "code"}),
		rateLimitWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orchard_rate_limit_waits_total",
			Help: "Requests that waited on the ingress rate limiter.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.messages,
		m.conflicts,
		m.outbound,
		m.outboundErrors,
		m.deadLetters,
		m.handleDuration,
		m.httpRequests,
		m.rateLimitWaits,
	)
	return m
}

// ObserveMessage records one processed delivery.
func (m *Metrics) ObserveMessage(kind, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(kind, outcome).Inc()
	m.handleDuration.WithLabelValues(kind).Observe(dur.Seconds())
}

// ObserveConflict records one optimistic concurrency conflict.
func (m *Metrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

// ObserveOutbound records one outbound dispatch attempt.
func (m *Metrics) ObserveOutbound(kind string, err error) {
	if m == nil {
		return
	}
	m.outbound.WithLabelValues(kind).Inc()
	if err != nil {
		m.outboundErrors.WithLabelValues(kind).Inc()
	}
}

// ObserveDeadLetter records a delivery parked after exhausting retries.
func (m *Metrics) ObserveDeadLetter(stream string) {
	if m == nil {
		return
	}
	m.deadLetters.WithLabelValues(stream).Inc()
}

// ObserveHTTPRequest records one submission API request.
func (m *Metrics) ObserveHTTPRequest(route, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, code).Inc()
}

// AddRateLimitWait records a request held back by the ingress limiter.
func (m *Metrics) AddRateLimitWait(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.rateLimitWaits.Inc()
}
