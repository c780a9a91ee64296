package domain

import (
	"fmt"
	"time"
)

// TaskNotFoundError is returned when a task ID does not exist for the user.
type TaskNotFoundError struct {
	TaskID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// EventNotFoundError is returned when a calendar event ID does not exist for the user.
type EventNotFoundError struct {
	EventID string
}

func (e *EventNotFoundError) Error() string {
	return fmt.Sprintf("calendar event not found: %s", e.EventID)
}

// DuplicateTaskError is returned when a task with the same source and
// external id already exists for the user.
type DuplicateTaskError struct {
	Source     Source
	ExternalID string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("task from %s with external id %q already exists", e.Source, e.ExternalID)
}

// InvalidTaskError is returned when a task fails input validation.
type InvalidTaskError struct {
	TaskID string
	Field  string
	Reason string
}

func (e *InvalidTaskError) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("invalid task: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid task %s: %s %s", e.TaskID, e.Field, e.Reason)
}

// InvalidDurationError is returned when a task's duration is non-positive or
// longer than one working day. MaxMinutes is the working-day length.
type InvalidDurationError struct {
	TaskID     string
	Minutes    int
	MaxMinutes int
}

func (e *InvalidDurationError) Error() string {
	if e.Minutes <= 0 {
		return fmt.Sprintf("task %s: duration must be positive, got %d minutes", e.TaskID, e.Minutes)
	}
	return fmt.Sprintf("task %s: duration %d minutes exceeds working day of %d minutes",
		e.TaskID, e.Minutes, e.MaxMinutes)
}

// UnplaceableError is returned when no free slot exists before the look-ahead horizon.
type UnplaceableError struct {
	TaskID  string
	Horizon time.Time
}

func (e *UnplaceableError) Error() string {
	return fmt.Sprintf("task %s: no free slot before %s", e.TaskID, e.Horizon.Format(time.RFC3339))
}

// InvalidConfigError is returned for a malformed working-hours configuration.
type InvalidConfigError struct {
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return "invalid scheduling config: " + e.Reason
}

// ConflictError is returned when a manually placed task overlaps occupied time.
type ConflictError struct {
	TaskID        string
	ConflictsWith string
	Start         time.Time
	End           time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("task %s [%s, %s) overlaps %s", e.TaskID,
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339), e.ConflictsWith)
}

// OutsideWorkingHoursError is returned when a manually placed task leaves the working window.
type OutsideWorkingHoursError struct {
	TaskID string
	Start  time.Time
	End    time.Time
}

func (e *OutsideWorkingHoursError) Error() string {
	return fmt.Sprintf("task %s [%s, %s) is outside working hours", e.TaskID,
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// ScheduleInProgressError is returned when another scheduling call holds the user's lock.
type ScheduleInProgressError struct {
	UserID string
}

func (e *ScheduleInProgressError) Error() string {
	return fmt.Sprintf("scheduling already in progress for user %s", e.UserID)
}

// UnknownSourceError is returned when no normalizer is registered for a source.
type UnknownSourceError struct {
	Source Source
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("no normalizer registered for source %q", e.Source)
}

// RateLimitExceededError is returned when a user exceeds the ingestion rate.
type RateLimitExceededError struct {
	Key   string
	Limit int
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %q: limit is %d", e.Key, e.Limit)
}
