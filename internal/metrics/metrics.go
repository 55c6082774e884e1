// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "reelwatch"

var (
	SyncRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Sync runs by outcome (success, error, skipped).",
	}, []string{"result"})

	SyncNewMovies = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "new_movies_total",
		Help:      "Movies inserted by sync runs.",
	})

	SyncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "duration_seconds",
		Help:      "Wall time of completed sync runs.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	lastSyncGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful sync run.",
	})

	NotificationsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "sent_total",
		Help:      "Outbound messages by kind (announce, suggestion, details, reply).",
	}, []string{"kind"})

	NotificationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "failures_total",
		Help:      "Outbound messages that the transport rejected, by kind.",
	}, []string{"kind"})

	BotUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bot",
		Name:      "updates_total",
		Help:      "Inbound updates by handler.",
	}, []string{"handler"})

	CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "circuit_breaker_state",
		Help:      "0 = closed, 1 = half-open, 2 = open.",
	}, []string{"name"})
)

func init() {
	prometheus.MustRegister(
		SyncRuns,
		SyncNewMovies,
		SyncDuration,
		lastSyncGauge,
		NotificationsSent,
		NotificationFailures,
		BotUpdates,
		CircuitBreakerState,
	)
}

// RecordSyncSuccess updates the sync counters after a completed run.
func RecordSyncSuccess(newMovies int, took time.Duration, at time.Time) {
	SyncRuns.WithLabelValues("success").Inc()
	SyncNewMovies.Add(float64(newMovies))
	SyncDuration.Observe(took.Seconds())
	if !at.IsZero() {
		lastSyncGauge.Set(float64(at.Unix()))
	}
}
