package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
	"github.com/ramiqadoumi/task-inbox/internal/kafka"
	"github.com/ramiqadoumi/task-inbox/internal/postgres"
	"github.com/ramiqadoumi/task-inbox/internal/service"
	"github.com/ramiqadoumi/task-inbox/services/api-gateway/middleware"
)

var secret = []byte("test-secret")

// ─── fakes ───────────────────────────────────────────────────────────────────

type fakeTasks struct {
	err error

	gotUser   string
	gotDraft  domain.TaskDraft
	gotFilter postgres.TaskFilter
	gotIDs    []string
	gotAuto   bool
	gotPatch  service.Patch
	gotFrom   time.Time
}

func (f *fakeTasks) Create(_ context.Context, userID string, d domain.TaskDraft) (*domain.Task, error) {
	f.gotUser, f.gotDraft = userID, d
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Task{ID: "t1", UserID: userID, Title: d.Title, Status: domain.StatusInbox}, nil
}

func (f *fakeTasks) Get(_ context.Context, userID, id string) (*domain.Task, error) {
	f.gotUser = userID
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Task{ID: id, UserID: userID}, nil
}

func (f *fakeTasks) List(_ context.Context, userID string, filter postgres.TaskFilter) ([]domain.Task, error) {
	f.gotUser, f.gotFilter = userID, filter
	return nil, f.err
}

func (f *fakeTasks) Update(_ context.Context, _, id string, p service.Patch) (*domain.Task, error) {
	f.gotPatch = p
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Task{ID: id}, nil
}

func (f *fakeTasks) Delete(context.Context, string, string) error { return f.err }

func (f *fakeTasks) Complete(_ context.Context, _, id string) (*domain.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Task{ID: id, Status: domain.StatusCompleted}, nil
}

func (f *fakeTasks) Schedule(_ context.Context, userID string, ids []string, auto bool) ([]domain.Task, error) {
	f.gotUser, f.gotIDs, f.gotAuto = userID, ids, auto
	if f.err != nil {
		return nil, f.err
	}
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	out := make([]domain.Task, len(ids))
	for i, id := range ids {
		out[i] = domain.Task{ID: id, Status: domain.StatusScheduled, ScheduledStart: &start, ScheduledEnd: &end}
	}
	return out, nil
}

func (f *fakeTasks) ImportEvent(_ context.Context, userID string, ev domain.CalendarEvent) (*domain.CalendarEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	ev.ID, ev.UserID = "ev1", userID
	return &ev, nil
}

func (f *fakeTasks) ListEvents(_ context.Context, _ string, from, _ time.Time) ([]domain.CalendarEvent, error) {
	f.gotFrom = from
	return nil, f.err
}

func (f *fakeTasks) DeleteEvent(context.Context, string, string) error { return f.err }

func (f *fakeTasks) Settings(_ context.Context, userID string) (domain.WorkingHours, error) {
	return domain.WorkingHours{UserID: userID, StartHour: 9, EndHour: 18, BufferMinutes: 15}, f.err
}

func (f *fakeTasks) UpdateSettings(_ context.Context, userID string, wh domain.WorkingHours) (domain.WorkingHours, error) {
	wh.UserID = userID
	return wh, f.err
}

type recordingProducer struct {
	topic, key string
	value      []byte
	err        error
}

func (p *recordingProducer) Publish(_ context.Context, topic, key string, value []byte) error {
	if p.err != nil {
		return p.err
	}
	p.topic, p.key, p.value = topic, key, value
	return nil
}

func (p *recordingProducer) Close() error { return nil }

// ─── helpers ─────────────────────────────────────────────────────────────────

func newServer(tasks Tasks, producer kafka.Producer) http.Handler {
	h := NewREST(tasks, producer, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(secret))
		h.Routes(r)
	})
	return r
}

func token(t *testing.T, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := tok.SignedString(secret)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token(t, "alice"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

// ─── tests ───────────────────────────────────────────────────────────────────

func TestAuth_RejectsMissingAndBadTokens(t *testing.T) {
	srv := newServer(&fakeTasks{}, &recordingProducer{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateTask(t *testing.T) {
	tasks := &fakeTasks{}
	srv := newServer(tasks, &recordingProducer{})

	rec := do(t, srv, http.MethodPost, "/api/v1/tasks", `{"title":"write report","priority":"high","duration_minutes":45}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "alice", tasks.gotUser)
	assert.Equal(t, "write report", tasks.gotDraft.Title)
	require.NotNil(t, tasks.gotDraft.Priority)
	assert.Equal(t, domain.PriorityHigh, *tasks.gotDraft.Priority)

	var got domain.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "t1", got.ID)
}

func TestCreateTask_BadBody(t *testing.T) {
	srv := newServer(&fakeTasks{}, &recordingProducer{})
	rec := do(t, srv, http.MethodPost, "/api/v1/tasks", `{"title":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTasks_Filters(t *testing.T) {
	tasks := &fakeTasks{}
	srv := newServer(tasks, &recordingProducer{})

	rec := do(t, srv, http.MethodGet, "/api/v1/tasks?status=INBOX&priority=urgent&source=email&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusInbox, tasks.gotFilter.Status)
	assert.Equal(t, domain.SourceEmail, tasks.gotFilter.Source)
	require.NotNil(t, tasks.gotFilter.Priority)
	assert.Equal(t, domain.PriorityUrgent, *tasks.gotFilter.Priority)
	assert.Equal(t, 5, tasks.gotFilter.Limit)
	assert.JSONEq(t, `{"tasks":[]}`, rec.Body.String())

	for _, q := range []string{"priority=someday", "limit=-1", "limit=x"} {
		rec = do(t, srv, http.MethodGet, "/api/v1/tasks?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestScheduleTasks_DefaultsToAutoSlot(t *testing.T) {
	tasks := &fakeTasks{}
	srv := newServer(tasks, &recordingProducer{})

	rec := do(t, srv, http.MethodPost, "/api/v1/tasks/schedule", `{"task_ids":["a","b"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, tasks.gotAuto)
	assert.Equal(t, []string{"a", "b"}, tasks.gotIDs)

	var resp ScheduleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Tasks, 2)

	rec = do(t, srv, http.MethodPost, "/api/v1/tasks/schedule", `{"task_ids":["a"],"auto_slot":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, tasks.gotAuto)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{&domain.TaskNotFoundError{TaskID: "x"}, http.StatusNotFound},
		{&domain.EventNotFoundError{EventID: "x"}, http.StatusNotFound},
		{&domain.InvalidTaskError{Field: "title", Reason: "is required"}, http.StatusBadRequest},
		{&domain.UnknownSourceError{Source: "fax"}, http.StatusBadRequest},
		{&domain.DuplicateTaskError{Source: domain.SourceEmail, ExternalID: "m1"}, http.StatusConflict},
		{&domain.ConflictError{TaskID: "a", ConflictsWith: "b"}, http.StatusConflict},
		{&domain.ScheduleInProgressError{UserID: "alice"}, http.StatusConflict},
		{&domain.InvalidDurationError{TaskID: "a", Minutes: 600, MaxMinutes: 540}, http.StatusUnprocessableEntity},
		{&domain.UnplaceableError{TaskID: "a"}, http.StatusUnprocessableEntity},
		{&domain.OutsideWorkingHoursError{TaskID: "a"}, http.StatusUnprocessableEntity},
		{&domain.InvalidConfigError{Reason: "bad"}, http.StatusUnprocessableEntity},
		{&domain.RateLimitExceededError{Key: "k", Limit: 1}, http.StatusTooManyRequests},
		{fmt.Errorf("wrapped: %w", &domain.TaskNotFoundError{TaskID: "x"}), http.StatusNotFound},
		{errors.New("database on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%T", tc.err), func(t *testing.T) {
			srv := newServer(&fakeTasks{err: tc.err}, &recordingProducer{})
			rec := do(t, srv, http.MethodPost, "/api/v1/tasks/schedule", `{"task_ids":["a"]}`)
			assert.Equal(t, tc.code, rec.Code)
			if tc.code == http.StatusInternalServerError {
				assert.NotContains(t, rec.Body.String(), "fire", "internal errors are not leaked")
			}
		})
	}
}

func TestIngest_PublishesKeyedByUser(t *testing.T) {
	producer := &recordingProducer{}
	srv := newServer(&fakeTasks{}, producer)

	rec := do(t, srv, http.MethodPost, "/api/v1/ingest/email", `{"message_id":"<m1>","subject":"hi"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, kafka.TopicIngest, producer.topic)
	assert.Equal(t, "alice", producer.key)

	var msg kafka.IngestMessage
	require.NoError(t, json.Unmarshal(producer.value, &msg))
	assert.Equal(t, domain.SourceEmail, msg.Source)
	assert.JSONEq(t, `{"message_id":"<m1>","subject":"hi"}`, string(msg.Payload))
}

func TestIngest_Rejects(t *testing.T) {
	srv := newServer(&fakeTasks{}, &recordingProducer{})

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/v1/ingest/fax", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/v1/ingest/chat", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/v1/ingest/chat", `null`).Code)
}

func TestIngest_PublishFailure(t *testing.T) {
	srv := newServer(&fakeTasks{}, &recordingProducer{err: errors.New("broker down")})
	rec := do(t, srv, http.MethodPost, "/api/v1/ingest/chat", `{"text":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestUpdateTask_DecodesPatch(t *testing.T) {
	tasks := &fakeTasks{}
	srv := newServer(tasks, &recordingProducer{})

	rec := do(t, srv, http.MethodPatch, "/api/v1/tasks/t1", `{"title":"new","duration_minutes":60,"status":"ARCHIVED"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, tasks.gotPatch.Title)
	assert.Equal(t, "new", *tasks.gotPatch.Title)
	require.NotNil(t, tasks.gotPatch.DurationMinutes)
	assert.Equal(t, 60, *tasks.gotPatch.DurationMinutes)
	require.NotNil(t, tasks.gotPatch.Status)
	assert.Equal(t, domain.StatusArchived, *tasks.gotPatch.Status)
	assert.Nil(t, tasks.gotPatch.Priority)
}

func TestDeleteAndComplete(t *testing.T) {
	srv := newServer(&fakeTasks{}, &recordingProducer{})
	assert.Equal(t, http.StatusNoContent, do(t, srv, http.MethodDelete, "/api/v1/tasks/t1", "").Code)

	rec := do(t, srv, http.MethodPost, "/api/v1/tasks/t1/complete", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"COMPLETED"`)
}

func TestCalendarEvents(t *testing.T) {
	tasks := &fakeTasks{}
	srv := newServer(tasks, &recordingProducer{})

	rec := do(t, srv, http.MethodPost, "/api/v1/calendar/events",
		`{"title":"standup","start":"2026-03-02T09:00:00Z","end":"2026-03-02T09:15:00Z"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/v1/calendar/events?from=2026-03-02T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), tasks.gotFrom)
	assert.JSONEq(t, `{"events":[]}`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/v1/calendar/events?to=tomorrow", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettings(t *testing.T) {
	srv := newServer(&fakeTasks{}, &recordingProducer{})

	rec := do(t, srv, http.MethodGet, "/api/v1/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"start_hour":9`)

	rec = do(t, srv, http.MethodPut, "/api/v1/settings", `{"start_hour":8,"end_hour":16,"buffer_minutes":10}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id":"alice"`)

	srv = newServer(&fakeTasks{err: &domain.InvalidConfigError{Reason: "start after end"}}, &recordingProducer{})
	rec = do(t, srv, http.MethodPut, "/api/v1/settings", `{"start_hour":18,"end_hour":9}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
