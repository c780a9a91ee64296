package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
)

// EventRepository stores calendar events imported from external calendars
// or created by hand. Events only ever block time; they are never scheduled.
type EventRepository interface {
	Upsert(ctx context.Context, ev *domain.CalendarEvent) error
	ListBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.CalendarEvent, error)
	Delete(ctx context.Context, userID, id string) error
}

type eventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository wraps a pgxpool with the EventRepository interface.
func NewEventRepository(pool *pgxpool.Pool) EventRepository {
	return &eventRepository{pool: pool}
}

// Upsert inserts ev, or refreshes the existing row when the user already has
// an event with the same external id. ev.ID is overwritten with the stored id.
func (r *eventRepository) Upsert(ctx context.Context, ev *domain.CalendarEvent) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO calendar_events (id, user_id, title, external_id, starts_at, ends_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, external_id) WHERE external_id IS NOT NULL
		DO UPDATE SET title = EXCLUDED.title, starts_at = EXCLUDED.starts_at, ends_at = EXCLUDED.ends_at
		RETURNING id
	`, ev.ID, ev.UserID, ev.Title, nullable(ev.ExternalID), ev.Start, ev.End, ev.CreatedAt).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("upsert calendar event %s: %w", ev.ID, err)
	}
	return nil
}

// ListBetween returns events overlapping [from, to), earliest first.
func (r *eventRepository) ListBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.CalendarEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, title, external_id, starts_at, ends_at, created_at
		FROM calendar_events
		WHERE user_id = $1 AND starts_at < $3 AND ends_at > $2
		ORDER BY starts_at ASC
	`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list calendar events for user %s: %w", userID, err)
	}
	defer rows.Close()

	var events []domain.CalendarEvent
	for rows.Next() {
		var (
			ev         domain.CalendarEvent
			externalID *string
		)
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.Title, &externalID, &ev.Start, &ev.End, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan calendar event: %w", err)
		}
		if externalID != nil {
			ev.ExternalID = *externalID
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *eventRepository) Delete(ctx context.Context, userID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM calendar_events WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete calendar event %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.EventNotFoundError{EventID: id}
	}
	return nil
}
