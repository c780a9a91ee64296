package domain

import "time"

// Status represents the lifecycle states a task can be in.
type Status string

const (
	StatusInbox     Status = "INBOX"
	StatusScheduled Status = "SCHEDULED"
	StatusCompleted Status = "COMPLETED"
	StatusArchived  Status = "ARCHIVED"
)

// IsTerminal returns true if the task can no longer be scheduled.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusArchived
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusInbox, StatusScheduled, StatusCompleted, StatusArchived:
		return true
	}
	return false
}

// Source identifies where a task came from.
type Source string

const (
	SourceManual      Source = "manual"
	SourceEmail       Source = "email"
	SourceChat        Source = "chat"
	SourceCalendar    Source = "calendar"
	SourceSpreadsheet Source = "spreadsheet"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourceManual, SourceEmail, SourceChat, SourceCalendar, SourceSpreadsheet:
		return true
	}
	return false
}

// DefaultDurationMinutes is applied by callers when a task arrives without a duration.
const DefaultDurationMinutes = 30

// Task is the core domain entity: one unit of work waiting for a calendar slot.
type Task struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Priority        Priority   `json:"priority"`
	Source          Source     `json:"source"`
	Status          Status     `json:"status"`
	Tags            []string   `json:"tags,omitempty"`
	ExternalID      string     `json:"external_id,omitempty"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	ScheduledStart  *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd    *time.Time `json:"scheduled_end,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Duration returns the task length as a time.Duration.
func (t *Task) Duration() time.Duration {
	return time.Duration(t.DurationMinutes) * time.Minute
}

// IsPlaced reports whether both scheduled bounds are set.
func (t *Task) IsPlaced() bool {
	return t.ScheduledStart != nil && t.ScheduledEnd != nil
}

// Interval returns the task's occupied interval. ok is false when the task is not placed.
func (t *Task) Interval() (iv Interval, ok bool) {
	if !t.IsPlaced() {
		return Interval{}, false
	}
	return Interval{Start: *t.ScheduledStart, End: *t.ScheduledEnd, Ref: t.ID}, true
}

// CalendarEvent is an imported external commitment. It only ever occupies time.
type CalendarEvent struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Title      string    `json:"title"`
	ExternalID string    `json:"external_id,omitempty"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	CreatedAt  time.Time `json:"created_at"`
}

// Interval returns the event's occupied interval.
func (e *CalendarEvent) Interval() Interval {
	return Interval{Start: e.Start, End: e.End, Ref: e.ID}
}

// WorkingHours is the per-user scheduling window stored alongside the user.
type WorkingHours struct {
	UserID        string    `json:"user_id"`
	StartHour     int       `json:"start_hour"`
	EndHour       int       `json:"end_hour"`
	BufferMinutes int       `json:"buffer_minutes"`
	UpdatedAt     time.Time `json:"updated_at"`
}
