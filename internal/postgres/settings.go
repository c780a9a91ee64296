package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
)

// SettingsRepository stores per-user working hours.
type SettingsRepository interface {
	// Get returns the stored settings, or a zero WorkingHours carrying only
	// UserID when the user never saved any.
	Get(ctx context.Context, userID string) (domain.WorkingHours, error)
	Upsert(ctx context.Context, wh domain.WorkingHours) error
}

type settingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository wraps a pgxpool with the SettingsRepository interface.
func NewSettingsRepository(pool *pgxpool.Pool) SettingsRepository {
	return &settingsRepository{pool: pool}
}

func (r *settingsRepository) Get(ctx context.Context, userID string) (domain.WorkingHours, error) {
	wh := domain.WorkingHours{UserID: userID}
	err := r.pool.QueryRow(ctx, `
		SELECT start_hour, end_hour, buffer_minutes, updated_at
		FROM user_settings
		WHERE user_id = $1
	`, userID).Scan(&wh.StartHour, &wh.EndHour, &wh.BufferMinutes, &wh.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.WorkingHours{UserID: userID}, nil
	}
	if err != nil {
		return wh, fmt.Errorf("get settings for user %s: %w", userID, err)
	}
	return wh, nil
}

func (r *settingsRepository) Upsert(ctx context.Context, wh domain.WorkingHours) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_settings (user_id, start_hour, end_hour, buffer_minutes, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id)
		DO UPDATE SET start_hour = EXCLUDED.start_hour, end_hour = EXCLUDED.end_hour,
		              buffer_minutes = EXCLUDED.buffer_minutes, updated_at = EXCLUDED.updated_at
	`, wh.UserID, wh.StartHour, wh.EndHour, wh.BufferMinutes, wh.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert settings for user %s: %w", wh.UserID, err)
	}
	return nil
}
