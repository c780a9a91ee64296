package kafka

import (
	"encoding/json"
	"time"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
)

const (
	TopicIngest    = "tasks.ingest"
	TopicScheduled = "tasks.scheduled"
	TopicDLQ       = "tasks.dlq"
)

// IngestMessage carries one raw, source-specific payload into the ingestor.
// Keyed by UserID.
type IngestMessage struct {
	UserID     string          `json:"user_id"`
	Source     domain.Source   `json:"source"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// ScheduledTask is the slice of a task that notifications need.
type ScheduledTask struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Priority domain.Priority `json:"priority"`
	Start    time.Time       `json:"start"`
	End      time.Time       `json:"end"`
}

// TasksScheduledEvent is published after a scheduling call commits.
type TasksScheduledEvent struct {
	UserID      string          `json:"user_id"`
	AutoSlot    bool            `json:"auto_slot"`
	Tasks       []ScheduledTask `json:"tasks"`
	ScheduledAt time.Time       `json:"scheduled_at"`
}

// NewTasksScheduledEvent builds the event from placed tasks, skipping any
// that carry no placement.
func NewTasksScheduledEvent(userID string, autoSlot bool, tasks []domain.Task, at time.Time) TasksScheduledEvent {
	ev := TasksScheduledEvent{UserID: userID, AutoSlot: autoSlot, ScheduledAt: at, Tasks: make([]ScheduledTask, 0, len(tasks))}
	for _, t := range tasks {
		if !t.IsPlaced() {
			continue
		}
		ev.Tasks = append(ev.Tasks, ScheduledTask{
			ID: t.ID, Title: t.Title, Priority: t.Priority,
			Start: *t.ScheduledStart, End: *t.ScheduledEnd,
		})
	}
	return ev
}

// DeadLetter wraps a message that could not be processed. Value holds the
// original bytes verbatim (base64 in JSON) since they may not be valid JSON.
type DeadLetter struct {
	Topic    string    `json:"topic"`
	Key      string    `json:"key"`
	Value    []byte    `json:"value"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// NewDeadLetter records why msg was rejected.
func NewDeadLetter(msg Message, reason error, at time.Time) DeadLetter {
	return DeadLetter{Topic: msg.Topic, Key: string(msg.Key), Value: msg.Value, Reason: reason.Error(), FailedAt: at}
}
