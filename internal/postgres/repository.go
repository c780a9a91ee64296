package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
)

// TaskFilter narrows List results. Zero values mean "any".
type TaskFilter struct {
	Status   domain.Status
	Priority *domain.Priority
	Source   domain.Source
	Limit    int
}

// TaskRepository abstracts all database access for tasks.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	GetByID(ctx context.Context, userID, id string) (*domain.Task, error)
	ListByIDs(ctx context.Context, userID string, ids []string) ([]domain.Task, error)
	List(ctx context.Context, userID string, filter TaskFilter) ([]domain.Task, error)
	Update(ctx context.Context, task *domain.Task) error
	Delete(ctx context.Context, userID, id string) error
	Complete(ctx context.Context, userID, id string, at time.Time) (*domain.Task, error)
	ListOccupied(ctx context.Context, userID string, exclude []string) ([]domain.Interval, error)
	SaveSchedule(ctx context.Context, userID string, tasks []domain.Task, at time.Time) error
	UsersWithInbox(ctx context.Context, limit int) ([]string, error)
}

const (
	defaultListLimit = 200
	uniqueViolation  = "23505"
)

const taskColumns = `id, user_id, title, description, priority, source, status, tags, external_id,
	due_date, duration_minutes, scheduled_start, scheduled_end, created_at, updated_at, completed_at`

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps a pgxpool with the TaskRepository interface.
func NewRepository(pool *pgxpool.Pool) TaskRepository {
	return &repository{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func (r *repository) Create(ctx context.Context, task *domain.Task) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		task.ID, task.UserID, task.Title, task.Description, task.Priority.String(),
		string(task.Source), string(task.Status), tags(task.Tags), nullable(task.ExternalID),
		task.DueDate, task.DurationMinutes, task.ScheduledStart, task.ScheduledEnd,
		task.CreatedAt, task.UpdatedAt, task.CompletedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return &domain.DuplicateTaskError{Source: task.Source, ExternalID: task.ExternalID}
	}
	if err != nil {
		return fmt.Errorf("create task %s: %w", task.ID, err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, userID, id string) (*domain.Task, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = $1 AND user_id = $2
	`, id, userID)

	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.TaskNotFoundError{TaskID: id}
	}
	return task, err
}

// ListByIDs returns the user's tasks among ids, ordered by creation time.
// IDs that do not exist or belong to another user are silently absent.
func (r *repository) ListByIDs(ctx context.Context, userID string, ids []string) ([]domain.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE user_id = $1 AND id = ANY($2)
		ORDER BY created_at ASC, id ASC
	`, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("list tasks by ids: %w", err)
	}
	return collectTasks(rows)
}

func (r *repository) List(ctx context.Context, userID string, filter TaskFilter) ([]domain.Task, error) {
	where := []string{"user_id = $1"}
	args := []any{userID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, filter.Priority.String())
		where = append(where, fmt.Sprintf("priority = $%d", len(args)))
	}
	if filter.Source != "" {
		args = append(args, string(filter.Source))
		where = append(where, fmt.Sprintf("source = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM tasks
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d
	`, taskColumns, strings.Join(where, " AND "), len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks for user %s: %w", userID, err)
	}
	return collectTasks(rows)
}

func (r *repository) Update(ctx context.Context, task *domain.Task) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks
		SET title = $1, description = $2, priority = $3, status = $4, tags = $5,
		    due_date = $6, duration_minutes = $7, scheduled_start = $8, scheduled_end = $9,
		    updated_at = $10, completed_at = $11
		WHERE id = $12 AND user_id = $13
	`,
		task.Title, task.Description, task.Priority.String(), string(task.Status), tags(task.Tags),
		task.DueDate, task.DurationMinutes, task.ScheduledStart, task.ScheduledEnd,
		task.UpdatedAt, task.CompletedAt, task.ID, task.UserID,
	)
	if err != nil {
		return fmt.Errorf("update task %s: %w", task.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.TaskNotFoundError{TaskID: task.ID}
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, userID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.TaskNotFoundError{TaskID: id}
	}
	return nil
}

func (r *repository) Complete(ctx context.Context, userID, id string, at time.Time) (*domain.Task, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE tasks
		SET status = $1, completed_at = $2, updated_at = $2
		WHERE id = $3 AND user_id = $4
		RETURNING `+taskColumns,
		string(domain.StatusCompleted), at, id, userID,
	)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.TaskNotFoundError{TaskID: id}
	}
	return task, err
}

// ListOccupied returns the intervals of the user's placed, not yet finished
// tasks, skipping the ids in exclude (tasks about to be rescheduled).
func (r *repository) ListOccupied(ctx context.Context, userID string, exclude []string) ([]domain.Interval, error) {
	if exclude == nil {
		exclude = []string{}
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, scheduled_start, scheduled_end
		FROM tasks
		WHERE user_id = $1
		  AND scheduled_start IS NOT NULL
		  AND scheduled_end IS NOT NULL
		  AND status NOT IN ($2, $3)
		  AND NOT (id = ANY($4))
		ORDER BY scheduled_start ASC
	`, userID, string(domain.StatusCompleted), string(domain.StatusArchived), exclude)
	if err != nil {
		return nil, fmt.Errorf("list occupied for user %s: %w", userID, err)
	}
	defer rows.Close()

	var out []domain.Interval
	for rows.Next() {
		var iv domain.Interval
		if err := rows.Scan(&iv.Ref, &iv.Start, &iv.End); err != nil {
			return nil, fmt.Errorf("scan occupied interval: %w", err)
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

// SaveSchedule persists the placements of a whole batch in one transaction and
// marks each task SCHEDULED. Nothing is written if any row is missing.
func (r *repository) SaveSchedule(ctx context.Context, userID string, tasks []domain.Task, at time.Time) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for i := range tasks {
			t := &tasks[i]
			tag, err := tx.Exec(ctx, `
				UPDATE tasks
				SET scheduled_start = $1, scheduled_end = $2, status = $3, updated_at = $4
				WHERE id = $5 AND user_id = $6
			`, t.ScheduledStart, t.ScheduledEnd, string(domain.StatusScheduled), at, t.ID, userID)
			if err != nil {
				return fmt.Errorf("save schedule for task %s: %w", t.ID, err)
			}
			if tag.RowsAffected() == 0 {
				return &domain.TaskNotFoundError{TaskID: t.ID}
			}
		}
		return nil
	})
}

// UsersWithInbox lists users that have at least one INBOX task.
func (r *repository) UsersWithInbox(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT user_id
		FROM tasks
		WHERE status = $1
		ORDER BY user_id
		LIMIT $2
	`, string(domain.StatusInbox), limit)
	if err != nil {
		return nil, fmt.Errorf("list users with inbox: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func collectTasks(rows pgx.Rows) ([]domain.Task, error) {
	defer rows.Close()
	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// scanTask reads a task row from any pgx row type. pgx.ErrNoRows stays reachable via errors.Is.
func scanTask(row interface {
	Scan(...any) error
}) (*domain.Task, error) {
	var (
		task       domain.Task
		priority   string
		source     string
		status     string
		externalID *string
	)
	err := row.Scan(
		&task.ID, &task.UserID, &task.Title, &task.Description, &priority, &source, &status,
		&task.Tags, &externalID, &task.DueDate, &task.DurationMinutes,
		&task.ScheduledStart, &task.ScheduledEnd, &task.CreatedAt, &task.UpdatedAt, &task.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	task.Priority, _ = domain.ParsePriority(priority)
	task.Source = domain.Source(source)
	task.Status = domain.Status(status)
	if externalID != nil {
		task.ExternalID = *externalID
	}
	return &task, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// tags keeps a nil slice from being encoded as SQL NULL.
func tags(t []string) []string {
	if t == nil {
		return []string{}
	}
	return t
}
