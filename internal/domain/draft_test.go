package domain_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
)

func TestTaskDraft_CleanDefaults(t *testing.T) {
	d := domain.TaskDraft{Title: "  renew passport  ", Tags: []string{"home", " ", "home", "admin"}}
	if err := d.Clean(); err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if d.Title != "renew passport" {
		t.Errorf("title not trimmed: %q", d.Title)
	}
	if d.Priority == nil || *d.Priority != domain.PriorityMedium {
		t.Errorf("priority should default to medium, got %v", d.Priority)
	}
	if d.DurationMinutes != domain.DefaultDurationMinutes {
		t.Errorf("duration should default to %d, got %d", domain.DefaultDurationMinutes, d.DurationMinutes)
	}
	if d.Source != domain.SourceManual {
		t.Errorf("source should default to manual, got %q", d.Source)
	}
	if got := strings.Join(d.Tags, ","); got != "home,admin" {
		t.Errorf("tags = %q", got)
	}
}

func TestTaskDraft_CleanRejects(t *testing.T) {
	tests := []struct {
		name  string
		draft domain.TaskDraft
		field string
	}{
		{"empty title", domain.TaskDraft{Title: "   "}, "title"},
		{"long title", domain.TaskDraft{Title: strings.Repeat("é", domain.MaxTitleRunes+1)}, "title"},
		{"too short", domain.TaskDraft{Title: "x", DurationMinutes: 4}, "duration_minutes"},
		{"too long", domain.TaskDraft{Title: "x", DurationMinutes: 481}, "duration_minutes"},
		{"negative", domain.TaskDraft{Title: "x", DurationMinutes: -30}, "duration_minutes"},
		{"bad source", domain.TaskDraft{Title: "x", Source: "fax"}, "source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.draft.Clean()
			var invalid *domain.InvalidTaskError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidTaskError, got %v", err)
			}
			if invalid.Field != tt.field {
				t.Errorf("field = %q, want %q", invalid.Field, tt.field)
			}
		})
	}
}

func TestTaskDraft_TitleCountsRunes(t *testing.T) {
	d := domain.TaskDraft{Title: strings.Repeat("é", domain.MaxTitleRunes)}
	if err := d.Clean(); err != nil {
		t.Errorf("%d runes should be accepted: %v", domain.MaxTitleRunes, err)
	}
}

func TestNewTask(t *testing.T) {
	high := domain.PriorityHigh
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	task := domain.NewTask("t1", "u1", domain.TaskDraft{Title: "x", Priority: &high, Source: domain.SourceEmail, DurationMinutes: 45}, now)

	if task.Status != domain.StatusInbox {
		t.Errorf("new tasks land in the inbox, got %s", task.Status)
	}
	if task.Priority != domain.PriorityHigh || task.DurationMinutes != 45 || task.UserID != "u1" {
		t.Errorf("fields not copied: %+v", task)
	}
	if task.IsPlaced() {
		t.Error("new task must not be placed")
	}
	if !task.CreatedAt.Equal(now) || !task.UpdatedAt.Equal(now) {
		t.Error("timestamps should be now")
	}
}
