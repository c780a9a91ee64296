// Package notifier consumes scheduling results and tells users where their
// tasks landed.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ramiqadoumi/task-inbox/internal/kafka"
	redisstore "github.com/ramiqadoumi/task-inbox/internal/redis"
	"github.com/ramiqadoumi/task-inbox/pkg/telemetry"
)

// Deliverer sends one event over every channel. *notify.Dispatcher satisfies it.
type Deliverer interface {
	Deliver(ctx context.Context, ev kafka.TasksScheduledEvent) error
}

// Notifier consumes tasks.scheduled and delivers each event. Undeliverable
// events go to the dead-letter topic.
type Notifier struct {
	consumer  kafka.Consumer
	producer  kafka.Producer
	deliverer Deliverer
	dedup     redisstore.Deduper // nil = every delivery is sent
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time

	wg sync.WaitGroup
}

// Option configures a Notifier.
type Option func(*Notifier)

func WithLogger(l *slog.Logger) Option        { return func(n *Notifier) { n.logger = l } }
func WithTimeout(d time.Duration) Option      { return func(n *Notifier) { n.timeout = d } }
func WithDeduper(d redisstore.Deduper) Option { return func(n *Notifier) { n.dedup = d } }
func withClock(now func() time.Time) Option   { return func(n *Notifier) { n.now = now } }

// New creates a Notifier.
func New(consumer kafka.Consumer, producer kafka.Producer, deliverer Deliverer, opts ...Option) *Notifier {
	n := &Notifier{
		consumer:  consumer,
		producer:  producer,
		deliverer: deliverer,
		timeout:   time.Minute,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Run consumes until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	return n.consumer.Subscribe(ctx, n.handle)
}

// Wait blocks until in-flight deliveries finish. Call after Run returns.
func (n *Notifier) Wait() { n.wg.Wait() }

// dedupKey identifies one scheduling call; the per-user lock serialises them.
func dedupKey(ev kafka.TasksScheduledEvent) string {
	return ev.UserID + ":" + strconv.FormatInt(ev.ScheduledAt.UnixNano(), 10)
}

// handle returns nil for anything that ends in a delivery or the DLQ, so the
// offset is committed. Only a failed DLQ publish is returned.
func (n *Notifier) handle(consumerCtx context.Context, msg kafka.Message) error {
	var ev kafka.TasksScheduledEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil || ev.UserID == "" {
		if err == nil {
			err = errors.New("event has no user_id")
		}
		n.logger.Error("malformed scheduling event", slog.String("error", err.Error()))
		telemetry.NotificationsSent.WithLabelValues("malformed").Inc()
		return n.toDLQ(consumerCtx, msg, err)
	}

	ctx, span := telemetry.Tracer("notifier").Start(consumerCtx, "notifier.deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", ev.UserID),
		attribute.Int("tasks.count", len(ev.Tasks)),
	)
	log := n.logger.With(slog.String("user_id", ev.UserID), slog.Int("tasks", len(ev.Tasks)))

	if len(ev.Tasks) == 0 {
		telemetry.NotificationsSent.WithLabelValues("skipped").Inc()
		return nil
	}

	key := dedupKey(ev)
	if n.dedup != nil {
		first, err := n.dedup.Claim(ctx, key)
		if err != nil {
			log.Warn("dedup unavailable, delivering anyway", slog.String("error", err.Error()))
		} else if !first {
			log.Info("event already delivered, skipping")
			telemetry.NotificationsSent.WithLabelValues("duplicate").Inc()
			return nil
		}
	}

	n.wg.Add(1)
	defer n.wg.Done()

	// Delivery gets its own deadline so a consumer shutdown does not cut a
	// send in half; spans still hang off the consumer span.
	execCtx, cancel := context.WithTimeout(trace.ContextWithSpan(context.Background(), span), n.timeout)
	defer cancel()

	start := n.now()
	err := n.deliverer.Deliver(execCtx, ev)
	if err == nil {
		log.Info("notification delivered", slog.Duration("took", n.now().Sub(start)))
		telemetry.NotificationsSent.WithLabelValues("sent").Inc()
		return nil
	}

	log.Error("notification failed", slog.String("error", err.Error()))
	span.RecordError(err)
	span.SetStatus(codes.Error, "delivery failed")
	telemetry.NotificationsSent.WithLabelValues("failed").Inc()

	if dlqErr := n.toDLQ(ctx, msg, err); dlqErr != nil {
		if n.dedup != nil {
			_ = n.dedup.Forget(ctx, key)
		}
		return dlqErr
	}
	return nil
}

func (n *Notifier) toDLQ(ctx context.Context, msg kafka.Message, reason error) error {
	telemetry.DLQTotal.WithLabelValues("notifier").Inc()
	if err := kafka.PublishDeadLetter(ctx, n.producer, msg, reason, n.now()); err != nil {
		n.logger.Error("failed to publish to DLQ",
			slog.String("user_id", msg.UserID()),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}
