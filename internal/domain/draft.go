package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Bounds applied to every incoming task, whatever its source.
const (
	MaxTitleRunes      = 500
	MinDurationMinutes = 5
	MaxDurationMinutes = 480
)

// TaskDraft is a task as submitted by a user or a source normalizer, before
// it has an ID, an owner or timestamps.
type TaskDraft struct {
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Priority        *Priority  `json:"priority,omitempty"`
	Source          Source     `json:"source,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
	ExternalID      string     `json:"external_id,omitempty"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
}

// Clean applies defaults and validates the draft in place. A missing priority
// becomes PriorityMedium, a zero duration DefaultDurationMinutes and an empty
// source SourceManual.
func (d *TaskDraft) Clean() error {
	d.Title = strings.TrimSpace(d.Title)
	if err := ValidateTitle(d.Title); err != nil {
		return err
	}
	if d.Priority == nil {
		p := PriorityMedium
		d.Priority = &p
	}
	if d.DurationMinutes == 0 {
		d.DurationMinutes = DefaultDurationMinutes
	}
	if err := ValidateDuration(d.DurationMinutes); err != nil {
		return err
	}
	if d.Source == "" {
		d.Source = SourceManual
	}
	if !d.Source.Valid() {
		return &InvalidTaskError{Field: "source", Reason: fmt.Sprintf("%q is not a task source", d.Source)}
	}
	d.Tags = CleanTags(d.Tags)
	return nil
}

// ValidateTitle checks the trimmed title length in runes.
func ValidateTitle(title string) error {
	n := utf8.RuneCountInString(title)
	if n == 0 {
		return &InvalidTaskError{Field: "title", Reason: "is required"}
	}
	if n > MaxTitleRunes {
		return &InvalidTaskError{Field: "title", Reason: fmt.Sprintf("exceeds %d characters", MaxTitleRunes)}
	}
	return nil
}

// ValidateDuration checks minutes against the accepted task length range.
func ValidateDuration(minutes int) error {
	if minutes < MinDurationMinutes || minutes > MaxDurationMinutes {
		return &InvalidTaskError{Field: "duration_minutes",
			Reason: fmt.Sprintf("must be between %d and %d, got %d", MinDurationMinutes, MaxDurationMinutes, minutes)}
	}
	return nil
}

// CleanTags trims tags, drops empty ones and removes duplicates keeping first occurrence.
func CleanTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// NewTask turns a cleaned draft into an INBOX task owned by userID.
func NewTask(id, userID string, d TaskDraft, now time.Time) Task {
	priority := PriorityMedium
	if d.Priority != nil {
		priority = *d.Priority
	}
	return Task{
		ID:              id,
		UserID:          userID,
		Title:           d.Title,
		Description:     d.Description,
		Priority:        priority,
		Source:          d.Source,
		Status:          StatusInbox,
		Tags:            d.Tags,
		ExternalID:      d.ExternalID,
		DueDate:         d.DueDate,
		DurationMinutes: d.DurationMinutes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
