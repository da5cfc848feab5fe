// Package metrics holds the process-wide Prometheus collectors. They are
// registered on the default registry and served by the ops endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "outagebot"

var (
	// RefreshCycles counts refresh cycles by result:
	// unchanged, changed, no_changes, fetch_error, error.
	RefreshCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_cycles_total",
			Help:      "Refresh cycles by result",
		},
		[]string{"result"},
	)

	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Wall time of one refresh cycle",
			Buckets:   prometheus.DefBuckets,
		},
	)

	SnapshotChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_changes_total",
			Help:      "Changed (date, queue) payloads by kind: appeared, updated",
		},
		[]string{"kind"},
	)

	Ticks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_ticks_total",
			Help:      "Notification scheduler ticks",
		},
	)

	// Notifications counts delivery outcomes per event type:
	// sent, failed, dedup, quiet.
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification outcomes by event type",
		},
		[]string{"type", "outcome"},
	)

	QueueLookupErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_lookup_errors_total",
			Help:      "Queue payload lookups that failed during a tick",
		},
	)

	LedgerPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_pruned_total",
			Help:      "Sent-event rows removed by retention",
		},
	)

	SendAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_attempts_total",
			Help:      "Transport send attempts by result: ok, retry, error",
		},
		[]string{"result"},
	)

	TaskRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_runs_total",
			Help:      "Periodic task runs by task and result: ok, error, skipped, panic",
		},
		[]string{"task", "result"},
	)

	GoroutineRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goroutine_restarts_total",
			Help:      "Supervised goroutine restarts by name and cause: error, panic",
		},
		[]string{"name", "cause"},
	)

	UpdatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_dropped_total",
			Help:      "Incoming chat updates dropped because the router was busy",
		},
	)

	Commands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Chat commands handled by command and result: ok, error, unknown",
		},
		[]string{"command", "result"},
	)
)
