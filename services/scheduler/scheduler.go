// Package scheduler periodically auto-schedules every user's inbox. Only the
// replica holding the Redis leader lease sweeps.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
	redisstore "github.com/ramiqadoumi/task-inbox/internal/redis"
	"github.com/ramiqadoumi/task-inbox/pkg/telemetry"
)

// Sweep outcomes, also used as metric labels.
const (
	OutcomeScheduled = "scheduled"
	OutcomeEmpty     = "empty"
	OutcomeBusy      = "busy"
	OutcomeFailed    = "failed"
)

// UserLister finds users with work waiting. postgres.TaskRepository satisfies it.
type UserLister interface {
	UsersWithInbox(ctx context.Context, limit int) ([]string, error)
}

// InboxScheduler places a user's INBOX tasks. *service.TaskService satisfies it.
type InboxScheduler interface {
	ScheduleInbox(ctx context.Context, userID string) ([]domain.Task, error)
}

// Config tunes the sweep.
type Config struct {
	// Spec is a standard five-field cron expression.
	Spec        string
	Location    *time.Location
	BatchSize   int
	Concurrency int
}

// Result tallies one sweep by outcome.
type Result map[string]int

// Scheduler runs the inbox sweep on a cron schedule.
type Scheduler struct {
	users  UserLister
	inbox  InboxScheduler
	leader redisstore.Leader
	cfg    Config
	parser cron.Parser
	logger *slog.Logger
}

// New creates a Scheduler. Zero BatchSize and Concurrency fall back to 500 and 4.
func New(users UserLister, inbox InboxScheduler, leader redisstore.Leader, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(cfg.Spec); err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", cfg.Spec, err)
	}
	return &Scheduler{
		users:  users,
		inbox:  inbox,
		leader: leader,
		cfg:    cfg,
		parser: parser,
		logger: logger,
	}, nil
}

// Run fires the sweep on every cron tick until ctx is cancelled. A tick that
// arrives while the previous sweep is still running is skipped.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.cfg.Location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(s.cfg.Spec, func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("register sweep: %w", err)
	}
	c.Start()
	s.logger.Info("sweep registered", slog.String("spec", s.cfg.Spec))

	<-ctx.Done()
	<-c.Stop().Done()

	resignCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.leader.Resign(resignCtx); err != nil {
		s.logger.Warn("resign leadership", slog.String("error", err.Error()))
	}
	return nil
}

// Tick sweeps if this instance is the leader.
func (s *Scheduler) Tick(ctx context.Context) {
	ok, err := s.leader.TryLead(ctx)
	if err != nil {
		s.logger.Error("leader election", slog.String("error", err.Error()))
		return
	}
	if !ok {
		s.logger.Debug("not leader, skipping sweep")
		return
	}
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("sweep", slog.String("error", err.Error()))
	}
}

// Sweep runs ScheduleInbox for every user with INBOX tasks. Per-user failures
// are counted, not returned.
func (s *Scheduler) Sweep(ctx context.Context) (Result, error) {
	start := time.Now()
	users, err := s.users.UsersWithInbox(ctx, s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	var mu sync.Mutex
	res := Result{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, userID := range users {
		g.Go(func() error {
			outcome := s.sweepUser(gctx, userID)
			telemetry.SweepUsers.WithLabelValues(outcome).Inc()
			mu.Lock()
			res[outcome]++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("sweep finished",
		slog.Int("users", len(users)),
		slog.Int("scheduled", res[OutcomeScheduled]),
		slog.Int("busy", res[OutcomeBusy]),
		slog.Int("failed", res[OutcomeFailed]),
		slog.Duration("took", time.Since(start)),
	)
	return res, nil
}

func (s *Scheduler) sweepUser(ctx context.Context, userID string) string {
	placed, err := s.inbox.ScheduleInbox(ctx, userID)
	var busy *domain.ScheduleInProgressError
	switch {
	case errors.As(err, &busy):
		return OutcomeBusy
	case err != nil:
		s.logger.Warn("inbox sweep failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return OutcomeFailed
	case len(placed) == 0:
		return OutcomeEmpty
	default:
		return OutcomeScheduled
	}
}
