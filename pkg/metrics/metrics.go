// Package metrics exposes Prometheus instrumentation for the control plane.
//
// All collectors live on a private registry so tests can scrape without
// colliding with the default global registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

var (
	// WebhookEvents counts ingested webhook deliveries by event type and
	// routing result.
	WebhookEvents = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "drover_webhook_events_total",
		Help: "Webhook deliveries by event type and result.",
	}, []string{"event", "result"})

	// Reviews counts review loop runs by outcome and audit severity.
	Reviews = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "drover_reviews_total",
		Help: "Review loop runs by outcome and severity.",
	}, []string{"outcome", "severity"})

	// ReviewDuration observes end-to-end review latency including the
	// Auditor call.
	ReviewDuration = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "drover_review_duration_seconds",
		Help:    "End-to-end review latency.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	// LockAcquisitions counts lock acquisition attempts by result.
	LockAcquisitions = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "drover_lock_acquisitions_total",
		Help: "Lock acquisition attempts by result (acquired, conflict).",
	}, []string{"result"})

	// SessionTransitions counts session state transitions by target state.
	SessionTransitions = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "drover_session_transitions_total",
		Help: "Session state transitions by target state.",
	}, []string{"to"})

	// RemediationSpawns counts child repair sessions by resulting depth.
	RemediationSpawns = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "drover_remediation_spawns_total",
		Help: "Child repair sessions spawned, by remediation depth.",
	}, []string{"depth"})

	// CascadeDispatches counts cascade dispatch rounds by outcome.
	CascadeDispatches = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "drover_cascade_dispatches_total",
		Help: "Cascade dispatch rounds by outcome (dispatched, failed).",
	}, []string{"outcome"})

	// CascadeDispatchLatency observes dispatch latency per cascade round.
	CascadeDispatchLatency = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "drover_cascade_dispatch_latency_seconds",
		Help:    "Cascade dispatch latency per round.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	// ProviderErrors counts failed out-calls by provider kind.
	ProviderErrors = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "drover_provider_errors_total",
		Help: "Failed external provider calls by provider (agent, vcs, auditor).",
	}, []string{"provider"})

	// HTTPRequests counts API requests by route, method, and status class.
	HTTPRequests = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "drover_http_requests_total",
		Help: "API requests by route, method, and status.",
	}, []string{"route", "method", "status"})
)

// Registry returns the control plane's Prometheus registry.
func Registry() *prometheus.Registry {
	return registry
}

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
