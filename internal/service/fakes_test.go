package service_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
	"github.com/ramiqadoumi/task-inbox/internal/postgres"
)

// ─── fake TaskRepository ─────────────────────────────────────────────────────

type fakeTasks struct {
	mu      sync.Mutex
	tasks   map[string]domain.Task
	saveErr error
	saves   int
}

func newFakeTasks(tasks ...domain.Task) *fakeTasks {
	f := &fakeTasks{tasks: make(map[string]domain.Task)}
	for _, t := range tasks {
		f.tasks[t.ID] = t
	}
	return f
}

func (f *fakeTasks) Create(_ context.Context, task *domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if task.ExternalID != "" {
		for _, t := range f.tasks {
			if t.UserID == task.UserID && t.Source == task.Source && t.ExternalID == task.ExternalID {
				return &domain.DuplicateTaskError{Source: task.Source, ExternalID: task.ExternalID}
			}
		}
	}
	f.tasks[task.ID] = *task
	return nil
}

func (f *fakeTasks) GetByID(_ context.Context, userID, id string) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok || t.UserID != userID {
		return nil, &domain.TaskNotFoundError{TaskID: id}
	}
	return &t, nil
}

func (f *fakeTasks) ListByIDs(_ context.Context, userID string, ids []string) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Task
	for _, id := range ids {
		if t, ok := f.tasks[id]; ok && t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeTasks) List(_ context.Context, userID string, filter postgres.TaskFilter) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Task
	for _, t := range f.tasks {
		if t.UserID != userID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Priority != nil && t.Priority != *filter.Priority {
			continue
		}
		if filter.Source != "" && t.Source != filter.Source {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeTasks) Update(_ context.Context, task *domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[task.ID]; !ok {
		return &domain.TaskNotFoundError{TaskID: task.ID}
	}
	f.tasks[task.ID] = *task
	return nil
}

func (f *fakeTasks) Delete(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok || t.UserID != userID {
		return &domain.TaskNotFoundError{TaskID: id}
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeTasks) Complete(_ context.Context, userID, id string, at time.Time) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok || t.UserID != userID {
		return nil, &domain.TaskNotFoundError{TaskID: id}
	}
	t.Status = domain.StatusCompleted
	t.CompletedAt = &at
	t.UpdatedAt = at
	f.tasks[id] = t
	return &t, nil
}

func (f *fakeTasks) ListOccupied(_ context.Context, userID string, exclude []string) ([]domain.Interval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var out []domain.Interval
	for _, t := range f.tasks {
		if t.UserID != userID || skip[t.ID] || t.Status.IsTerminal() {
			continue
		}
		if iv, ok := t.Interval(); ok {
			out = append(out, iv)
		}
	}
	return out, nil
}

func (f *fakeTasks) SaveSchedule(_ context.Context, _ string, tasks []domain.Task, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	for _, t := range tasks {
		t.Status = domain.StatusScheduled
		t.UpdatedAt = at
		f.tasks[t.ID] = t
	}
	return nil
}

func (f *fakeTasks) UsersWithInbox(_ context.Context, _ int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var users []string
	for _, t := range f.tasks {
		if t.Status == domain.StatusInbox && !seen[t.UserID] {
			seen[t.UserID] = true
			users = append(users, t.UserID)
		}
	}
	sort.Strings(users)
	return users, nil
}

func (f *fakeTasks) get(id string) domain.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[id]
}

// ─── fake EventRepository ────────────────────────────────────────────────────

type fakeEvents struct {
	events []domain.CalendarEvent
}

func (f *fakeEvents) Upsert(_ context.Context, ev *domain.CalendarEvent) error {
	for i, e := range f.events {
		if ev.ExternalID != "" && e.UserID == ev.UserID && e.ExternalID == ev.ExternalID {
			ev.ID = e.ID
			f.events[i] = *ev
			return nil
		}
	}
	f.events = append(f.events, *ev)
	return nil
}

func (f *fakeEvents) ListBetween(_ context.Context, userID string, from, to time.Time) ([]domain.CalendarEvent, error) {
	var out []domain.CalendarEvent
	for _, e := range f.events {
		if e.UserID == userID && e.Start.Before(to) && e.End.After(from) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEvents) Delete(_ context.Context, userID, id string) error {
	for i, e := range f.events {
		if e.ID == id && e.UserID == userID {
			f.events = append(f.events[:i], f.events[i+1:]...)
			return nil
		}
	}
	return &domain.EventNotFoundError{EventID: id}
}

// ─── fake SettingsRepository ─────────────────────────────────────────────────

type fakeSettings struct {
	byUser map[string]domain.WorkingHours
}

func (f *fakeSettings) Get(_ context.Context, userID string) (domain.WorkingHours, error) {
	if wh, ok := f.byUser[userID]; ok {
		return wh, nil
	}
	return domain.WorkingHours{UserID: userID}, nil
}

func (f *fakeSettings) Upsert(_ context.Context, wh domain.WorkingHours) error {
	if f.byUser == nil {
		f.byUser = make(map[string]domain.WorkingHours)
	}
	f.byUser[wh.UserID] = wh
	return nil
}

// ─── fake TaskCache ──────────────────────────────────────────────────────────

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]domain.Task
	getErr  error
	deletes int
}

func newFakeCache() *fakeCache { return &fakeCache{entries: make(map[string]domain.Task)} }

func (c *fakeCache) Put(_ context.Context, task *domain.Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[task.UserID+"/"+task.ID] = *task
	return nil
}

func (c *fakeCache) Get(_ context.Context, userID, taskID string) (*domain.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	t, ok := c.entries[userID+"/"+taskID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (c *fakeCache) Delete(_ context.Context, userID string, taskIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	for _, id := range taskIDs {
		delete(c.entries, userID+"/"+id)
	}
	return nil
}

// ─── fake UserLock ───────────────────────────────────────────────────────────

type fakeLock struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired int
}

func newFakeLock() *fakeLock { return &fakeLock{held: make(map[string]bool)} }

func (l *fakeLock) Acquire(_ context.Context, userID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[userID] {
		return nil, &domain.ScheduleInProgressError{UserID: userID}
	}
	l.held[userID] = true
	l.acquired++
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, userID)
	}, nil
}

func (l *fakeLock) isHeld(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[userID]
}

// ─── fake Producer ───────────────────────────────────────────────────────────

type published struct {
	topic string
	key   string
	value []byte
}

type fakeProducer struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakeProducer) Publish(_ context.Context, topic, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{topic: topic, key: key, value: value})
	return nil
}

func (p *fakeProducer) Close() error { return nil }

var errBoom = errors.New("boom")
