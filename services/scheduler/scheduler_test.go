package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
)

type fakeUsers struct {
	users []string
	err   error
	limit int
}

func (f *fakeUsers) UsersWithInbox(_ context.Context, limit int) ([]string, error) {
	f.limit = limit
	return f.users, f.err
}

type fakeInbox struct {
	mu      sync.Mutex
	calls   []string
	results map[string]int
	errs    map[string]error
	active  atomic.Int32
	peak    atomic.Int32
	delay   time.Duration
}

func (f *fakeInbox) ScheduleInbox(_ context.Context, userID string) ([]domain.Task, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(f.delay)

	f.mu.Lock()
	f.calls = append(f.calls, userID)
	f.mu.Unlock()

	if err := f.errs[userID]; err != nil {
		return nil, err
	}
	return make([]domain.Task, f.results[userID]), nil
}

type fakeLeader struct {
	lead     bool
	err      error
	resigned bool
}

func (f *fakeLeader) TryLead(context.Context) (bool, error) { return f.lead, f.err }
func (f *fakeLeader) Resign(context.Context) error {
	f.resigned = true
	return nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newScheduler(t *testing.T, users *fakeUsers, inbox *fakeInbox, leader *fakeLeader, cfg Config) *Scheduler {
	t.Helper()
	if cfg.Spec == "" {
		cfg.Spec = "*/15 * * * *"
	}
	s, err := New(users, inbox, leader, cfg, quiet())
	require.NoError(t, err)
	return s
}

func TestNew_RejectsBadSpec(t *testing.T) {
	_, err := New(&fakeUsers{}, &fakeInbox{}, &fakeLeader{}, Config{Spec: "every tuesday"}, quiet())
	assert.Error(t, err)

	_, err = New(&fakeUsers{}, &fakeInbox{}, &fakeLeader{}, Config{Spec: "@hourly"}, quiet())
	assert.NoError(t, err)
}

func TestSweep_TalliesOutcomes(t *testing.T) {
	users := &fakeUsers{users: []string{"u1", "u2", "u3", "u4"}}
	inbox := &fakeInbox{
		results: map[string]int{"u1": 3},
		errs: map[string]error{
			"u3": &domain.ScheduleInProgressError{UserID: "u3"},
			"u4": &domain.UnplaceableError{TaskID: "t9"},
		},
	}
	s := newScheduler(t, users, inbox, &fakeLeader{lead: true}, Config{BatchSize: 50})

	res, err := s.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Result{OutcomeScheduled: 1, OutcomeEmpty: 1, OutcomeBusy: 1, OutcomeFailed: 1}, res)
	assert.ElementsMatch(t, []string{"u1", "u2", "u3", "u4"}, inbox.calls)
	assert.Equal(t, 50, users.limit)
}

func TestSweep_ListFailure(t *testing.T) {
	s := newScheduler(t, &fakeUsers{err: errors.New("db down")}, &fakeInbox{}, &fakeLeader{lead: true}, Config{})
	_, err := s.Sweep(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestSweep_BoundedConcurrency(t *testing.T) {
	users := &fakeUsers{users: []string{"a", "b", "c", "d", "e", "f", "g", "h"}}
	inbox := &fakeInbox{delay: 10 * time.Millisecond}
	s := newScheduler(t, users, inbox, &fakeLeader{lead: true}, Config{Concurrency: 2})

	res, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, res[OutcomeEmpty])
	assert.LessOrEqual(t, inbox.peak.Load(), int32(2))
}

func TestTick_FollowerDoesNothing(t *testing.T) {
	users := &fakeUsers{users: []string{"u1"}}
	inbox := &fakeInbox{}

	newScheduler(t, users, inbox, &fakeLeader{lead: false}, Config{}).Tick(context.Background())
	assert.Empty(t, inbox.calls)

	newScheduler(t, users, inbox, &fakeLeader{err: errors.New("redis down")}, Config{}).Tick(context.Background())
	assert.Empty(t, inbox.calls)

	newScheduler(t, users, inbox, &fakeLeader{lead: true}, Config{}).Tick(context.Background())
	assert.Equal(t, []string{"u1"}, inbox.calls)
}

func TestRun_ResignsOnShutdown(t *testing.T) {
	leader := &fakeLeader{lead: true}
	s := newScheduler(t, &fakeUsers{}, &fakeInbox{}, leader, Config{Spec: "@every 1h"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, leader.resigned)
}
