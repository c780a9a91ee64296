// Package notify tells users where their tasks landed once a scheduling run
// commits.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ramiqadoumi/task-inbox/internal/kafka"
	"github.com/ramiqadoumi/task-inbox/pkg/retry"
)

// Notifier delivers one scheduling result over one channel.
type Notifier interface {
	Notify(ctx context.Context, ev kafka.TasksScheduledEvent) error
	Name() string
}

// Dispatcher fans an event out to every configured notifier, throttling
// outbound calls and retrying transient failures.
type Dispatcher struct {
	notifiers []Notifier
	limiter   *rate.Limiter
	retry     retry.Config
	logger    *slog.Logger
}

// NewDispatcher builds a Dispatcher. perSecond <= 0 disables throttling.
func NewDispatcher(notifiers []Notifier, perSecond float64, burst int, rc retry.Config, logger *slog.Logger) *Dispatcher {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &Dispatcher{
		notifiers: notifiers,
		limiter:   rate.NewLimiter(limit, burst),
		retry:     rc,
		logger:    logger,
	}
}

// Deliver sends ev through every notifier. A failing channel does not stop
// the others; all failures are joined into the returned error.
func (d *Dispatcher) Deliver(ctx context.Context, ev kafka.TasksScheduledEvent) error {
	if len(ev.Tasks) == 0 {
		return nil
	}
	var errs []error
	for _, n := range d.notifiers {
		rc := d.retry
		rc.OnRetry = func(attempt int, err error) {
			d.logger.Warn("notification failed, retrying",
				slog.String("notifier", n.Name()),
				slog.String("user_id", ev.UserID),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		}
		err := retry.Do(ctx, rc, func(ctx context.Context) error {
			if err := d.limiter.Wait(ctx); err != nil {
				return retry.Permanent(fmt.Errorf("throttle: %w", err))
			}
			return n.Notify(ctx, ev)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Summary renders the plain-text body shared by the notifiers.
func Summary(ev kafka.TasksScheduledEvent, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d task(s) scheduled:\n", len(ev.Tasks))
	for i, t := range ev.Tasks {
		start, end := t.Start.In(loc), t.End.In(loc)
		fmt.Fprintf(&b, "\n%d. %s\n   %s, %s-%s\n   Priority: %s\n",
			i+1, t.Title, start.Format("Mon Jan 2"), start.Format("15:04"), end.Format("15:04"),
			strings.ToUpper(t.Priority.String()))
	}
	return b.String()
}
