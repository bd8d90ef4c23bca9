// Package metrics holds the Prometheus collectors of the API and log worker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bizassist"

var (
	// ProviderAttempts counts chat provider calls by outcome (success|error).
	ProviderAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "attempts_total",
			Help:      "Chat provider attempts by service and outcome",
		},
		[]string{"service", "outcome"},
	)

	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "latency_seconds",
			Help:      "Chat provider call latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service"},
	)

	// ChatResponses counts answers returned to callers by the service that produced them.
	ChatResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "responses_total",
			Help:      "Chat responses by producing service",
		},
		[]string{"service", "cached"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Response cache lookups by result (hit|miss|error)",
		},
		[]string{"result"},
	)

	SideEffectsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effects_dropped_total",
			Help:      "Log jobs dropped because the dispatch buffer was full",
		},
	)

	SideEffectsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effects_failed_total",
			Help:      "Log jobs that could not be published",
		},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telephony",
			Name:      "webhook_events_total",
			Help:      "Telephony webhook events by mapped call status",
		},
		[]string{"status"},
	)

	SecurityAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "alerts_total",
			Help:      "Security alerts raised by audit event",
		},
		[]string{"event"},
	)

	// LogJobsHandled counts log worker jobs by kind and outcome (ok|error|skipped).
	LogJobsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "logworker",
			Name:      "jobs_total",
			Help:      "Log jobs handled by the worker",
		},
		[]string{"kind", "outcome"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
