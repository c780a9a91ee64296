package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
	"github.com/ramiqadoumi/task-inbox/internal/kafka"
	"github.com/ramiqadoumi/task-inbox/internal/postgres"
	"github.com/ramiqadoumi/task-inbox/internal/service"
	"github.com/ramiqadoumi/task-inbox/pkg/telemetry"
	"github.com/ramiqadoumi/task-inbox/services/api-gateway/middleware"
)

// Tasks is the subset of *service.TaskService the REST API calls.
type Tasks interface {
	Create(ctx context.Context, userID string, draft domain.TaskDraft) (*domain.Task, error)
	Get(ctx context.Context, userID, id string) (*domain.Task, error)
	List(ctx context.Context, userID string, filter postgres.TaskFilter) ([]domain.Task, error)
	Update(ctx context.Context, userID, id string, p service.Patch) (*domain.Task, error)
	Delete(ctx context.Context, userID, id string) error
	Complete(ctx context.Context, userID, id string) (*domain.Task, error)
	Schedule(ctx context.Context, userID string, ids []string, autoSlot bool) ([]domain.Task, error)
	ImportEvent(ctx context.Context, userID string, ev domain.CalendarEvent) (*domain.CalendarEvent, error)
	ListEvents(ctx context.Context, userID string, from, to time.Time) ([]domain.CalendarEvent, error)
	DeleteEvent(ctx context.Context, userID, id string) error
	Settings(ctx context.Context, userID string) (domain.WorkingHours, error)
	UpdateSettings(ctx context.Context, userID string, wh domain.WorkingHours) (domain.WorkingHours, error)
}

// REST handles HTTP requests for the API Gateway.
type REST struct {
	tasks    Tasks
	producer kafka.Producer
	logger   *slog.Logger
	now      func() time.Time
}

// NewREST creates a new REST handler.
func NewREST(tasks Tasks, producer kafka.Producer, logger *slog.Logger) *REST {
	return &REST{tasks: tasks, producer: producer, logger: logger, now: time.Now}
}

// Routes mounts the authenticated API on r.
func (h *REST) Routes(r chi.Router) {
	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", h.CreateTask)
		r.Get("/", h.ListTasks)
		r.Post("/schedule", h.ScheduleTasks)
		r.Get("/{id}", h.GetTask)
		r.Patch("/{id}", h.UpdateTask)
		r.Delete("/{id}", h.DeleteTask)
		r.Post("/{id}/complete", h.CompleteTask)
	})
	r.Post("/ingest/{source}", h.Ingest)
	r.Route("/calendar/events", func(r chi.Router) {
		r.Post("/", h.ImportEvent)
		r.Get("/", h.ListEvents)
		r.Delete("/{id}", h.DeleteEvent)
	})
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.PutSettings)
}

// ScheduleRequest is the JSON body for POST /api/v1/tasks/schedule.
type ScheduleRequest struct {
	TaskIDs  []string `json:"task_ids"`
	AutoSlot *bool    `json:"auto_slot,omitempty"`
}

// ScheduleResponse lists the placed tasks in placement order.
type ScheduleResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

// IngestResponse is the 202 body of POST /api/v1/ingest/{source}.
type IngestResponse struct {
	Status     string        `json:"status"`
	Source     domain.Source `json:"source"`
	ReceivedAt time.Time     `json:"received_at"`
}

// CreateTask handles POST /api/v1/tasks.
func (h *REST) CreateTask(w http.ResponseWriter, r *http.Request) {
	var draft domain.TaskDraft
	if !decodeBody(w, r, &draft) {
		return
	}
	task, err := h.tasks.Create(r.Context(), userID(r), draft)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// ListTasks handles GET /api/v1/tasks?status=&priority=&source=&limit=.
func (h *REST) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := postgres.TaskFilter{
		Status: domain.Status(q.Get("status")),
		Source: domain.Source(q.Get("source")),
	}
	if raw := q.Get("priority"); raw != "" {
		p, ok := domain.ParsePriority(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown priority "+strconv.Quote(raw))
			return
		}
		filter.Priority = &p
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	tasks, err := h.tasks.List(r.Context(), userID(r), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	writeJSON(w, http.StatusOK, map[string][]domain.Task{"tasks": tasks})
}

// GetTask handles GET /api/v1/tasks/{id}.
func (h *REST) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.Get(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// UpdateTask handles PATCH /api/v1/tasks/{id}.
func (h *REST) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var patch service.Patch
	if !decodeBody(w, r, &patch) {
		return
	}
	task, err := h.tasks.Update(r.Context(), userID(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// DeleteTask handles DELETE /api/v1/tasks/{id}.
func (h *REST) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.Delete(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CompleteTask handles POST /api/v1/tasks/{id}/complete.
func (h *REST) CompleteTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.Complete(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ScheduleTasks handles POST /api/v1/tasks/schedule. auto_slot defaults to true.
func (h *REST) ScheduleTasks(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.Tracer("api-gateway").Start(r.Context(), "api_gateway.schedule_tasks")
	defer span.End()

	var req ScheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	auto := req.AutoSlot == nil || *req.AutoSlot
	span.SetAttributes(attribute.Int("tasks", len(req.TaskIDs)), attribute.Bool("auto_slot", auto))

	placed, err := h.tasks.Schedule(ctx, userID(r), req.TaskIDs, auto)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "schedule failed")
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ScheduleResponse{Tasks: placed})
}

// Ingest handles POST /api/v1/ingest/{source}. The raw JSON body is queued
// on the ingest topic keyed by user; normalisation happens in the ingestor.
func (h *REST) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.Tracer("api-gateway").Start(r.Context(), "api_gateway.ingest")
	defer span.End()

	source := domain.Source(chi.URLParam(r, "source"))
	if !source.Valid() {
		h.fail(w, r, &domain.UnknownSourceError{Source: source})
		return
	}
	var payload json.RawMessage
	if !decodeBody(w, r, &payload) {
		return
	}
	if string(payload) == "null" {
		writeError(w, http.StatusBadRequest, "payload is required")
		return
	}

	user := userID(r)
	msg := kafka.IngestMessage{UserID: user, Source: source, Payload: payload, ReceivedAt: h.now().UTC()}
	span.SetAttributes(attribute.String("source", string(source)))

	if err := kafka.PublishJSON(ctx, h.producer, kafka.TopicIngest, user, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "kafka publish failed")
		h.logger.Error("failed to publish ingest message",
			slog.String("user_id", user),
			slog.String("source", string(source)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to enqueue payload")
		return
	}

	telemetry.APIIngestPublished.WithLabelValues(string(source)).Inc()
	writeJSON(w, http.StatusAccepted, IngestResponse{Status: "accepted", Source: source, ReceivedAt: msg.ReceivedAt})
}

// ImportEvent handles POST /api/v1/calendar/events.
func (h *REST) ImportEvent(w http.ResponseWriter, r *http.Request) {
	var ev domain.CalendarEvent
	if !decodeBody(w, r, &ev) {
		return
	}
	saved, err := h.tasks.ImportEvent(r.Context(), userID(r), ev)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// ListEvents handles GET /api/v1/calendar/events?from=&to= (RFC 3339).
func (h *REST) ListEvents(w http.ResponseWriter, r *http.Request) {
	from, ok := queryTime(w, r, "from")
	if !ok {
		return
	}
	to, ok := queryTime(w, r, "to")
	if !ok {
		return
	}
	events, err := h.tasks.ListEvents(r.Context(), userID(r), from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if events == nil {
		events = []domain.CalendarEvent{}
	}
	writeJSON(w, http.StatusOK, map[string][]domain.CalendarEvent{"events": events})
}

// DeleteEvent handles DELETE /api/v1/calendar/events/{id}.
func (h *REST) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.DeleteEvent(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSettings handles GET /api/v1/settings.
func (h *REST) GetSettings(w http.ResponseWriter, r *http.Request) {
	wh, err := h.tasks.Settings(r.Context(), userID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wh)
}

// PutSettings handles PUT /api/v1/settings.
func (h *REST) PutSettings(w http.ResponseWriter, r *http.Request) {
	var wh domain.WorkingHours
	if !decodeBody(w, r, &wh) {
		return
	}
	saved, err := h.tasks.UpdateSettings(r.Context(), userID(r), wh)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// Healthz handles GET /healthz.
func (h *REST) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fail writes the status for a domain error, logging anything unexpected.
func (h *REST) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		taskNotFound    *domain.TaskNotFoundError
		eventNotFound   *domain.EventNotFoundError
		invalidTask     *domain.InvalidTaskError
		unknownSource   *domain.UnknownSourceError
		duplicate       *domain.DuplicateTaskError
		conflict        *domain.ConflictError
		busy            *domain.ScheduleInProgressError
		invalidDuration *domain.InvalidDurationError
		unplaceable     *domain.UnplaceableError
		outside         *domain.OutsideWorkingHoursError
		invalidConfig   *domain.InvalidConfigError
		rateLimited     *domain.RateLimitExceededError
	)
	switch {
	case errors.As(err, &taskNotFound), errors.As(err, &eventNotFound):
		return http.StatusNotFound
	case errors.As(err, &invalidTask), errors.As(err, &unknownSource):
		return http.StatusBadRequest
	case errors.As(err, &duplicate), errors.As(err, &conflict), errors.As(err, &busy):
		return http.StatusConflict
	case errors.As(err, &invalidDuration), errors.As(err, &unplaceable),
		errors.As(err, &outside), errors.As(err, &invalidConfig):
		return http.StatusUnprocessableEntity
	case errors.As(err, &rateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func userID(r *http.Request) string {
	id, _ := middleware.UserID(r.Context())
	return id
}

// decodeBody decodes the JSON body into v, answering 400 (or 413) on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func queryTime(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be an RFC 3339 timestamp")
		return time.Time{}, false
	}
	return t, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
