package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "taskinbox"

var (
	// ─── API Gateway ─────────────────────────────────────────────────────────────

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "HTTP requests served, by route pattern, method and status code.",
	}, []string{"route", "method", "code"})

	APIRequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	APIIngestPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "ingest_published_total",
		Help:      "Raw source payloads accepted and published to the ingest topic.",
	}, []string{"source"})

	// ─── Task service ────────────────────────────────────────────────────────────

	TasksCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tasks",
		Name:      "created_total",
		Help:      "Tasks created, by source.",
	}, []string{"source"})

	TasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tasks",
		Name:      "completed_total",
		Help:      "Tasks marked complete.",
	})

	// ─── Scheduling ──────────────────────────────────────────────────────────────

	ScheduleRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduling",
		Name:      "runs_total",
		Help:      "Scheduling calls, by mode (auto|manual) and outcome.",
	}, []string{"mode", "outcome"})

	TasksPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduling",
		Name:      "tasks_placed_total",
		Help:      "Tasks given a slot, by priority.",
	}, []string{"priority"})

	ScheduleDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scheduling",
		Name:      "duration_seconds",
		Help:      "Wall time of a scheduling call from lock to commit.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"mode"})

	SweepUsers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "sweep_users_total",
		Help:      "Users visited by the periodic inbox sweep, by outcome.",
	}, []string{"outcome"})

	// ─── Ingestor ────────────────────────────────────────────────────────────────

	IngestMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingestor",
		Name:      "messages_total",
		Help:      "Ingest messages processed, by source and outcome.",
	}, []string{"source", "outcome"})

	IngestRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingestor",
		Name:      "rate_limited_total",
		Help:      "Ingest messages rejected by the per-user rate limiter.",
	})

	// ─── Notifier ────────────────────────────────────────────────────────────────

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifier",
		Name:      "events_total",
		Help:      "Scheduling events handled by the notifier, by status.",
	}, []string{"status"})

	// ─── Kafka ───────────────────────────────────────────────────────────────────

	MessagesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "kafka",
		Name:      "messages_consumed_total",
		Help:      "Messages read from a topic, by outcome (committed|redeliver).",
	}, []string{"topic", "outcome"})

	// DLQTotal counts messages forwarded to the dead-letter topic, by service.
	DLQTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dlq_total",
		Help:      "Messages forwarded to the dead-letter topic.",
	}, []string{"service"})
)
