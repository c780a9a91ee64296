package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
	"github.com/ramiqadoumi/task-inbox/internal/scheduling"
)

// ImportEvent stores a calendar event as occupied time. Re-importing an event
// with the same external id moves it instead of duplicating it.
func (s *TaskService) ImportEvent(ctx context.Context, userID string, ev domain.CalendarEvent) (*domain.CalendarEvent, error) {
	if !ev.End.After(ev.Start) {
		return nil, &domain.InvalidTaskError{Field: "end", Reason: "must be after start"}
	}
	ev.ID = uuid.New().String()
	ev.UserID = userID
	ev.CreatedAt = s.clock()
	if err := s.events.Upsert(ctx, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// ListEvents returns events overlapping [from, to). A zero from means now and
// a zero to means from plus the default horizon.
func (s *TaskService) ListEvents(ctx context.Context, userID string, from, to time.Time) ([]domain.CalendarEvent, error) {
	if from.IsZero() {
		from = s.clock()
	}
	if to.IsZero() {
		to = from.Add(scheduling.DefaultHorizon)
	}
	if !to.After(from) {
		return nil, &domain.InvalidTaskError{Field: "to", Reason: "must be after from"}
	}
	return s.events.ListBetween(ctx, userID, from, to)
}

// DeleteEvent removes an imported event.
func (s *TaskService) DeleteEvent(ctx context.Context, userID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return &domain.EventNotFoundError{EventID: id}
	}
	return s.events.Delete(ctx, userID, id)
}

// Settings returns the user's working hours with defaults filled in.
func (s *TaskService) Settings(ctx context.Context, userID string) (domain.WorkingHours, error) {
	wh, err := s.settings.Get(ctx, userID)
	if err != nil {
		return wh, err
	}
	if wh.StartHour == 0 && wh.EndHour == 0 {
		wh.StartHour = scheduling.DefaultStartHour
		wh.EndHour = scheduling.DefaultEndHour
		wh.BufferMinutes = int(scheduling.DefaultBuffer / time.Minute)
	}
	return wh, nil
}

// UpdateSettings validates and stores new working hours.
func (s *TaskService) UpdateSettings(ctx context.Context, userID string, wh domain.WorkingHours) (domain.WorkingHours, error) {
	wh.UserID = userID
	cfg := scheduling.Config{
		StartHour: wh.StartHour,
		EndHour:   wh.EndHour,
		Buffer:    time.Duration(wh.BufferMinutes) * time.Minute,
		Horizon:   scheduling.DefaultHorizon,
	}
	if err := cfg.Validate(); err != nil {
		return wh, err
	}
	wh.UpdatedAt = s.clock()
	if err := s.settings.Upsert(ctx, wh); err != nil {
		return wh, err
	}
	return wh, nil
}
