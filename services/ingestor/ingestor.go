// Package ingestor turns raw source payloads from the ingest topic into
// tasks and calendar events.
package ingestor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
	"github.com/ramiqadoumi/task-inbox/internal/kafka"
	redisstore "github.com/ramiqadoumi/task-inbox/internal/redis"
	"github.com/ramiqadoumi/task-inbox/internal/sources"
	"github.com/ramiqadoumi/task-inbox/pkg/retry"
	"github.com/ramiqadoumi/task-inbox/pkg/telemetry"
)

// Sink stores what the ingestor produces. *service.TaskService satisfies it.
type Sink interface {
	Create(ctx context.Context, userID string, draft domain.TaskDraft) (*domain.Task, error)
	ImportEvent(ctx context.Context, userID string, ev domain.CalendarEvent) (*domain.CalendarEvent, error)
}

// Ingestor consumes tasks.ingest, normalises each payload through the source
// registry and hands the result to the sink.
type Ingestor struct {
	consumer kafka.Consumer
	producer kafka.Producer
	sink     Sink
	registry *sources.Registry
	limiter  redisstore.RateLimiter // nil = disabled
	retry    retry.Config
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithRateLimiter enables the per-user ingestion limit.
func WithRateLimiter(l redisstore.RateLimiter) Option {
	return func(i *Ingestor) { i.limiter = l }
}

// WithRetry sets how transient sink failures are retried.
func WithRetry(rc retry.Config) Option {
	return func(i *Ingestor) { i.retry = rc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Ingestor) { i.logger = l }
}

// New creates an Ingestor.
func New(consumer kafka.Consumer, producer kafka.Producer, sink Sink, registry *sources.Registry, opts ...Option) *Ingestor {
	i := &Ingestor{
		consumer: consumer,
		producer: producer,
		sink:     sink,
		registry: registry,
		retry:    retry.Config{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Run starts consuming. Blocks until ctx is cancelled.
func (i *Ingestor) Run(ctx context.Context) error {
	return i.consumer.Subscribe(ctx, i.handle)
}

func (i *Ingestor) handle(ctx context.Context, msg kafka.Message) error {
	ctx, span := telemetry.Tracer("ingestor").Start(ctx, "ingestor.handle")
	defer span.End()

	var in kafka.IngestMessage
	if err := json.Unmarshal(msg.Value, &in); err != nil {
		span.SetStatus(codes.Error, "malformed message")
		return i.toDLQ(ctx, msg, "unknown", fmt.Errorf("malformed ingest message: %w", err))
	}
	if in.UserID == "" {
		span.SetStatus(codes.Error, "missing user")
		return i.toDLQ(ctx, msg, string(in.Source), errors.New("ingest message has no user_id"))
	}

	span.SetAttributes(
		attribute.String("user_id", in.UserID),
		attribute.String("source", string(in.Source)),
	)
	log := i.logger.With(
		slog.String("user_id", in.UserID),
		slog.String("source", string(in.Source)),
	)

	if i.limiter != nil {
		allowed, err := i.limiter.Allow(ctx, "ingest:"+in.UserID)
		if err != nil {
			// Fail open: a Redis outage must not drop user input.
			log.Error("rate limiter error", slog.String("error", err.Error()))
		} else if !allowed {
			log.Warn("rate limit exceeded, sending to DLQ")
			span.SetStatus(codes.Error, "rate limit exceeded")
			telemetry.IngestRateLimited.Inc()
			return i.toDLQ(ctx, msg, string(in.Source),
				&domain.RateLimitExceededError{Key: "ingest:" + in.UserID, Limit: i.limiter.Limit()})
		}
	}

	var (
		outcome string
		err     error
	)
	if in.Source == domain.SourceCalendar {
		outcome, err = i.importEvent(ctx, in, log)
	} else {
		outcome, err = i.createTask(ctx, in, log)
	}

	switch {
	case err == nil:
		telemetry.IngestMessages.WithLabelValues(string(in.Source), outcome).Inc()
		return nil
	case isPermanent(err):
		log.Warn("rejected payload, sending to DLQ", slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, "rejected payload")
		return i.toDLQ(ctx, msg, string(in.Source), err)
	default:
		// Transient: leave the offset uncommitted.
		span.RecordError(err)
		span.SetStatus(codes.Error, "sink failed")
		telemetry.IngestMessages.WithLabelValues(string(in.Source), "error").Inc()
		return fmt.Errorf("ingest %s payload for %s: %w", in.Source, in.UserID, err)
	}
}

func (i *Ingestor) createTask(ctx context.Context, in kafka.IngestMessage, log *slog.Logger) (string, error) {
	draft, err := i.registry.Normalize(in.Source, in.Payload)
	if err != nil {
		return "", err
	}

	var task *domain.Task
	err = retry.Do(ctx, i.withRetryLog(log), func(ctx context.Context) error {
		var err error
		task, err = i.sink.Create(ctx, in.UserID, draft)
		if isPermanent(err) || isDuplicate(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if isDuplicate(err) {
		log.Info("duplicate payload ignored", slog.String("external_id", draft.ExternalID))
		return "duplicate", nil
	}
	if err != nil {
		return "", err
	}
	log.Info("task ingested", slog.String("task_id", task.ID))
	return "created", nil
}

func (i *Ingestor) importEvent(ctx context.Context, in kafka.IngestMessage, log *slog.Logger) (string, error) {
	ev, err := sources.DecodeCalendarEvent(in.Payload)
	if err != nil {
		return "", err
	}

	var saved *domain.CalendarEvent
	err = retry.Do(ctx, i.withRetryLog(log), func(ctx context.Context) error {
		var err error
		saved, err = i.sink.ImportEvent(ctx, in.UserID, ev)
		if isPermanent(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return "", err
	}
	log.Info("calendar event ingested", slog.String("event_id", saved.ID))
	return "event", nil
}

func (i *Ingestor) withRetryLog(log *slog.Logger) retry.Config {
	rc := i.retry
	rc.OnRetry = func(attempt int, err error) {
		log.Warn("sink failed, retrying", slog.Int("attempt", attempt), slog.String("error", err.Error()))
	}
	return rc
}

// toDLQ wraps msg with reason and publishes it to the dead-letter topic.
// A failed DLQ publish is returned so the offset stays uncommitted.
func (i *Ingestor) toDLQ(ctx context.Context, msg kafka.Message, source string, reason error) error {
	telemetry.IngestMessages.WithLabelValues(source, "dlq").Inc()
	telemetry.DLQTotal.WithLabelValues("ingestor").Inc()
	if err := kafka.PublishDeadLetter(ctx, i.producer, msg, reason, i.now()); err != nil {
		i.logger.Error("failed to publish to DLQ",
			slog.String("user_id", msg.UserID()),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// isPermanent reports errors caused by the payload itself; retrying or
// redelivering them cannot succeed.
func isPermanent(err error) bool {
	var (
		payload         *sources.PayloadError
		invalid         *domain.InvalidTaskError
		unknown         *domain.UnknownSourceError
		invalidDuration *domain.InvalidDurationError
	)
	return errors.As(err, &payload) || errors.As(err, &invalid) ||
		errors.As(err, &unknown) || errors.As(err, &invalidDuration)
}

func isDuplicate(err error) bool {
	var dup *domain.DuplicateTaskError
	return errors.As(err, &dup)
}
