// Package service implements the task use cases shared by the HTTP API, the
// ingestor and the periodic scheduler.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
	"github.com/ramiqadoumi/task-inbox/internal/kafka"
	"github.com/ramiqadoumi/task-inbox/internal/postgres"
	redisstore "github.com/ramiqadoumi/task-inbox/internal/redis"
	"github.com/ramiqadoumi/task-inbox/internal/scheduling"
	"github.com/ramiqadoumi/task-inbox/pkg/telemetry"
)

// Deps are the collaborators of a TaskService.
type Deps struct {
	Tasks    postgres.TaskRepository
	Events   postgres.EventRepository
	Settings postgres.SettingsRepository
	Cache    redisstore.TaskCache
	Lock     redisstore.UserLock
	Producer kafka.Producer
	Logger   *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
	// Location is the single timezone working hours are read in. Defaults to UTC.
	Location *time.Location
	// Horizon overrides the default look-ahead when positive.
	Horizon time.Duration
}

// TaskService owns every state transition of a task.
type TaskService struct {
	tasks    postgres.TaskRepository
	events   postgres.EventRepository
	settings postgres.SettingsRepository
	cache    redisstore.TaskCache
	lock     redisstore.UserLock
	producer kafka.Producer
	logger   *slog.Logger
	now      func() time.Time
	loc      *time.Location
	horizon  time.Duration
}

// New builds a TaskService. Cache and Producer may be nil.
func New(d Deps) *TaskService {
	s := &TaskService{
		tasks:    d.Tasks,
		events:   d.Events,
		settings: d.Settings,
		cache:    d.Cache,
		lock:     d.Lock,
		producer: d.Producer,
		logger:   d.Logger,
		now:      d.Now,
		loc:      d.Location,
		horizon:  d.Horizon,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func (s *TaskService) clock() time.Time { return s.now().In(s.loc) }

// Create validates draft and stores it as a new INBOX task.
func (s *TaskService) Create(ctx context.Context, userID string, draft domain.TaskDraft) (*domain.Task, error) {
	if err := draft.Clean(); err != nil {
		return nil, err
	}
	task := domain.NewTask(uuid.New().String(), userID, draft, s.clock())
	if err := s.tasks.Create(ctx, &task); err != nil {
		return nil, err
	}
	telemetry.TasksCreated.WithLabelValues(string(task.Source)).Inc()
	s.logger.Info("task created",
		slog.String("task_id", task.ID),
		slog.String("user_id", userID),
		slog.String("source", string(task.Source)),
	)
	s.cachePut(ctx, &task)
	return &task, nil
}

// Get returns one task, served from Redis when possible.
func (s *TaskService) Get(ctx context.Context, userID, id string) (*domain.Task, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, &domain.TaskNotFoundError{TaskID: id}
	}
	if s.cache != nil {
		task, err := s.cache.Get(ctx, userID, id)
		if err != nil {
			s.logger.Warn("cache read failed", slog.String("task_id", id), slog.String("error", err.Error()))
		} else if task != nil {
			return task, nil
		}
	}
	task, err := s.tasks.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	s.cachePut(ctx, task)
	return task, nil
}

// List returns the user's tasks matching filter, newest first.
func (s *TaskService) List(ctx context.Context, userID string, filter postgres.TaskFilter) ([]domain.Task, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, &domain.InvalidTaskError{Field: "status", Reason: fmt.Sprintf("%q is not a status", filter.Status)}
	}
	if filter.Source != "" && !filter.Source.Valid() {
		return nil, &domain.InvalidTaskError{Field: "source", Reason: fmt.Sprintf("%q is not a source", filter.Source)}
	}
	return s.tasks.List(ctx, userID, filter)
}

// Patch holds the fields a client may change. Nil fields are left alone.
type Patch struct {
	Title           *string          `json:"title,omitempty"`
	Description     *string          `json:"description,omitempty"`
	Priority        *domain.Priority `json:"priority,omitempty"`
	Tags            *[]string        `json:"tags,omitempty"`
	DueDate         *time.Time       `json:"due_date,omitempty"`
	ClearDueDate    bool             `json:"clear_due_date,omitempty"`
	DurationMinutes *int             `json:"duration_minutes,omitempty"`
	ScheduledStart  *time.Time       `json:"scheduled_start,omitempty"`
	Status          *domain.Status   `json:"status,omitempty"`
}

// Update applies p to a task.
//
// Changing the duration or proposing a new scheduled_start drops the current
// placement and returns the task to INBOX; a proposed start is confirmed by a
// manual Schedule call. Status may only move to INBOX or ARCHIVED here;
// completion and scheduling have their own operations.
func (s *TaskService) Update(ctx context.Context, userID, id string, p Patch) (*domain.Task, error) {
	task, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if err := domain.ValidateTitle(title); err != nil {
			return nil, withTaskID(err, id)
		}
		task.Title = title
	}
	if p.Description != nil {
		task.Description = *p.Description
	}
	if p.Priority != nil {
		task.Priority = *p.Priority
	}
	if p.Tags != nil {
		task.Tags = domain.CleanTags(*p.Tags)
	}
	if p.ClearDueDate {
		task.DueDate = nil
	} else if p.DueDate != nil {
		task.DueDate = p.DueDate
	}
	if p.DurationMinutes != nil && *p.DurationMinutes != task.DurationMinutes {
		if err := domain.ValidateDuration(*p.DurationMinutes); err != nil {
			return nil, withTaskID(err, id)
		}
		task.DurationMinutes = *p.DurationMinutes
		unplace(task)
	}
	if p.ScheduledStart != nil {
		if task.Status.IsTerminal() {
			return nil, &domain.InvalidTaskError{TaskID: id, Field: "scheduled_start", Reason: "cannot be set on a " + string(task.Status) + " task"}
		}
		unplace(task)
		start := p.ScheduledStart.In(s.loc)
		task.ScheduledStart = &start
	}
	if p.Status != nil && *p.Status != task.Status {
		switch *p.Status {
		case domain.StatusInbox:
			unplace(task)
			task.Status = domain.StatusInbox
			task.CompletedAt = nil
		case domain.StatusArchived:
			task.Status = domain.StatusArchived
		default:
			return nil, &domain.InvalidTaskError{TaskID: id, Field: "status", Reason: "can only be set to INBOX or ARCHIVED"}
		}
	}

	task.UpdatedAt = s.clock()
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}
	s.cachePut(ctx, task)
	return task, nil
}

// Delete removes a task.
func (s *TaskService) Delete(ctx context.Context, userID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return &domain.TaskNotFoundError{TaskID: id}
	}
	if err := s.tasks.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.cacheDelete(ctx, userID, id)
	return nil
}

// Complete marks a task COMPLETED. Completing twice keeps the first timestamp.
func (s *TaskService) Complete(ctx context.Context, userID, id string) (*domain.Task, error) {
	task, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if task.Status == domain.StatusCompleted {
		return task, nil
	}
	task, err = s.tasks.Complete(ctx, userID, id, s.clock())
	if err != nil {
		return nil, err
	}
	telemetry.TasksCompleted.Inc()
	s.cachePut(ctx, task)
	return task, nil
}

// Schedule places the given tasks for userID.
//
// With autoSlot the engine picks every slot. Without it, each task must
// already carry a proposed scheduled_start, which is checked against working
// hours and occupied time. Either way the whole batch commits or nothing does.
func (s *TaskService) Schedule(ctx context.Context, userID string, ids []string, autoSlot bool) ([]domain.Task, error) {
	ctx, span := telemetry.Tracer("task-service").Start(ctx, "service.schedule")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID), attribute.Int("tasks", len(ids)), attribute.Bool("auto_slot", autoSlot))

	mode := "manual"
	if autoSlot {
		mode = "auto"
	}
	started := time.Now()

	placed, err := s.schedule(ctx, userID, ids, autoSlot)
	telemetry.ScheduleRuns.WithLabelValues(mode, outcome(err)).Inc()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	telemetry.ScheduleDurationSeconds.WithLabelValues(mode).Observe(time.Since(started).Seconds())
	for _, t := range placed {
		telemetry.TasksPlaced.WithLabelValues(t.Priority.String()).Inc()
	}
	return placed, nil
}

func (s *TaskService) schedule(ctx context.Context, userID string, ids []string, autoSlot bool) ([]domain.Task, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, &domain.InvalidTaskError{Field: "task_ids", Reason: "must not be empty"}
	}
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return nil, &domain.TaskNotFoundError{TaskID: id}
		}
	}

	release, err := s.lock.Acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	tasks, err := s.tasks.ListByIDs(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	if err := checkBatch(ids, tasks); err != nil {
		return nil, err
	}

	wh, err := s.settings.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	cfg := scheduling.FromWorkingHours(wh)
	if s.horizon > 0 {
		cfg.Horizon = s.horizon
	}
	cfg.Location = s.loc
	now := s.clock()

	from, to := now, cfg.Lookahead(now)
	if !autoSlot {
		for i := range tasks {
			localize(&tasks[i], s.loc)
		}
		from, to = proposedSpan(tasks, now)
	}
	occupied, err := s.occupied(ctx, userID, ids, from, to)
	if err != nil {
		return nil, err
	}

	var placed []domain.Task
	if autoSlot {
		placed, err = scheduling.Schedule(tasks, occupied, cfg, now)
	} else {
		placed, err = scheduling.Validate(tasks, occupied, cfg)
	}
	if err != nil {
		return nil, err
	}

	if err := s.tasks.SaveSchedule(ctx, userID, placed, now); err != nil {
		return nil, err
	}
	for i := range placed {
		placed[i].Status = domain.StatusScheduled
		placed[i].UpdatedAt = now
	}
	s.cacheDelete(ctx, userID, ids...)
	s.publishScheduled(ctx, userID, autoSlot, placed, now)

	s.logger.Info("tasks scheduled",
		slog.String("user_id", userID),
		slog.Int("count", len(placed)),
		slog.Bool("auto_slot", autoSlot),
	)
	return placed, nil
}

// proposedSpan covers every caller-supplied slot in the batch, so events
// outside the auto horizon are still checked against them.
func proposedSpan(tasks []domain.Task, now time.Time) (from, to time.Time) {
	from, to = now, now
	for _, t := range tasks {
		if t.ScheduledStart == nil {
			continue
		}
		start := *t.ScheduledStart
		end := start.Add(time.Duration(t.DurationMinutes) * time.Minute)
		if start.Before(from) {
			from = start
		}
		if end.After(to) {
			to = end
		}
	}
	return from, to
}

func localize(t *domain.Task, loc *time.Location) {
	if t.ScheduledStart != nil {
		start := t.ScheduledStart.In(loc)
		t.ScheduledStart = &start
	}
	if t.ScheduledEnd != nil {
		end := t.ScheduledEnd.In(loc)
		t.ScheduledEnd = &end
	}
}

// ScheduleInbox auto-schedules every INBOX task of the user. It returns
// (nil, nil) when the inbox is empty.
func (s *TaskService) ScheduleInbox(ctx context.Context, userID string) ([]domain.Task, error) {
	inbox, err := s.tasks.List(ctx, userID, postgres.TaskFilter{Status: domain.StatusInbox})
	if err != nil {
		return nil, err
	}
	if len(inbox) == 0 {
		return nil, nil
	}
	ids := make([]string, len(inbox))
	for i, t := range inbox {
		ids[i] = t.ID
	}
	return s.Schedule(ctx, userID, ids, true)
}

// occupied collects the busy time the batch must avoid: placed tasks outside
// the batch plus calendar events overlapping [from, to).
func (s *TaskService) occupied(ctx context.Context, userID string, batch []string, from, to time.Time) ([]domain.Interval, error) {
	busy, err := s.tasks.ListOccupied(ctx, userID, batch)
	if err != nil {
		return nil, err
	}
	events, err := s.events.ListBetween(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	for i := range events {
		busy = append(busy, events[i].Interval())
	}
	return busy, nil
}

func (s *TaskService) publishScheduled(ctx context.Context, userID string, autoSlot bool, placed []domain.Task, at time.Time) {
	if s.producer == nil {
		return
	}
	ev := kafka.NewTasksScheduledEvent(userID, autoSlot, placed, at)
	if err := kafka.PublishJSON(ctx, s.producer, kafka.TopicScheduled, userID, ev); err != nil {
		s.logger.Warn("publish scheduled event failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *TaskService) load(ctx context.Context, userID, id string) (*domain.Task, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, &domain.TaskNotFoundError{TaskID: id}
	}
	return s.tasks.GetByID(ctx, userID, id)
}

func (s *TaskService) cachePut(ctx context.Context, task *domain.Task) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, task); err != nil {
		s.logger.Warn("cache write failed", slog.String("task_id", task.ID), slog.String("error", err.Error()))
	}
}

func (s *TaskService) cacheDelete(ctx context.Context, userID string, ids ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, userID, ids...); err != nil {
		s.logger.Warn("cache invalidation failed", slog.String("user_id", userID), slog.String("error", err.Error()))
	}
}

// checkBatch reports the first requested id that was not found, then the
// first task that can no longer be scheduled.
func checkBatch(ids []string, tasks []domain.Task) error {
	found := make(map[string]*domain.Task, len(tasks))
	for i := range tasks {
		found[tasks[i].ID] = &tasks[i]
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return &domain.TaskNotFoundError{TaskID: id}
		}
	}
	for _, id := range ids {
		if t := found[id]; t.Status.IsTerminal() {
			return &domain.InvalidTaskError{TaskID: id, Field: "status", Reason: "is " + string(t.Status)}
		}
	}
	return nil
}

func unplace(t *domain.Task) {
	t.ScheduledStart, t.ScheduledEnd = nil, nil
	if t.Status == domain.StatusScheduled {
		t.Status = domain.StatusInbox
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func withTaskID(err error, id string) error {
	var invalid *domain.InvalidTaskError
	if errors.As(err, &invalid) {
		invalid.TaskID = id
	}
	return err
}

func outcome(err error) string {
	var (
		invalidDuration *domain.InvalidDurationError
		unplaceable     *domain.UnplaceableError
		conflict        *domain.ConflictError
		outside         *domain.OutsideWorkingHoursError
		busy            *domain.ScheduleInProgressError
		notFound        *domain.TaskNotFoundError
		invalid         *domain.InvalidTaskError
		invalidConfig   *domain.InvalidConfigError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &invalidDuration):
		return "invalid_duration"
	case errors.As(err, &unplaceable):
		return "unplaceable"
	case errors.As(err, &conflict), errors.As(err, &outside):
		return "rejected"
	case errors.As(err, &busy):
		return "locked"
	case errors.As(err, &notFound), errors.As(err, &invalid), errors.As(err, &invalidConfig):
		return "invalid"
	default:
		return "error"
	}
}
