package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
)

func TestStatusConstants(t *testing.T) {
	tests := []struct {
		status domain.Status
		want   string
	}{
		{domain.StatusInbox, "INBOX"},
		{domain.StatusScheduled, "SCHEDULED"},
		{domain.StatusCompleted, "COMPLETED"},
		{domain.StatusArchived, "ARCHIVED"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if string(tt.status) != tt.want {
				t.Errorf("Status value = %q, want %q", tt.status, tt.want)
			}
			if !tt.status.Valid() {
				t.Errorf("Valid(%q) = false, want true", tt.status)
			}
		})
	}
	if domain.Status("PENDING").Valid() {
		t.Error("Valid(PENDING) = true, want false")
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []domain.Status{domain.StatusCompleted, domain.StatusArchived} {
		if !s.IsTerminal() {
			t.Errorf("IsTerminal(%q) = false, want true", s)
		}
	}
	for _, s := range []domain.Status{domain.StatusInbox, domain.StatusScheduled} {
		if s.IsTerminal() {
			t.Errorf("IsTerminal(%q) = true, want false", s)
		}
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in    string
		want  domain.Priority
		known bool
	}{
		{"urgent", domain.PriorityUrgent, true},
		{"HIGH", domain.PriorityHigh, true},
		{" medium ", domain.PriorityMedium, true},
		{"low", domain.PriorityLow, true},
		{"critical", domain.PriorityMedium, false},
		{"", domain.PriorityMedium, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, known := domain.ParsePriority(tt.in)
			if got != tt.want || known != tt.known {
				t.Errorf("ParsePriority(%q) = (%v, %v), want (%v, %v)", tt.in, got, known, tt.want, tt.known)
			}
		})
	}
}

func TestPriorityWeight(t *testing.T) {
	if w := domain.PriorityUrgent.Weight(); w != 0 {
		t.Errorf("urgent weight = %d, want 0", w)
	}
	if w := domain.PriorityLow.Weight(); w != 3 {
		t.Errorf("low weight = %d, want 3", w)
	}
	if w := domain.Priority(42).Weight(); w != domain.PriorityMedium.Weight() {
		t.Errorf("out-of-range weight = %d, want medium weight", w)
	}
}

func TestPriorityJSON(t *testing.T) {
	var task domain.Task
	if err := json.Unmarshal([]byte(`{"priority":"urgent"}`), &task); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if task.Priority != domain.PriorityUrgent {
		t.Errorf("priority = %v, want urgent", task.Priority)
	}
	if err := json.Unmarshal([]byte(`{"priority":"whenever"}`), &task); err != nil {
		t.Fatalf("unknown priority must not fail: %v", err)
	}
	if task.Priority != domain.PriorityMedium {
		t.Errorf("priority = %v, want medium", task.Priority)
	}

	out, err := json.Marshal(struct {
		P domain.Priority `json:"p"`
	}{domain.PriorityHigh})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"p":"high"}` {
		t.Errorf("marshal = %s", out)
	}
}

func TestTaskInterval(t *testing.T) {
	task := domain.Task{ID: "t1", DurationMinutes: 45}
	if _, ok := task.Interval(); ok {
		t.Fatal("unplaced task must not report an interval")
	}
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(task.Duration())
	task.ScheduledStart, task.ScheduledEnd = &start, &end

	iv, ok := task.Interval()
	if !ok {
		t.Fatal("placed task must report an interval")
	}
	if iv.Ref != "t1" || !iv.Start.Equal(start) || iv.Duration() != 45*time.Minute {
		t.Errorf("unexpected interval %+v", iv)
	}
}

func TestIntervalOverlaps(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC) }
	iv := domain.Interval{Start: at(10, 0), End: at(11, 0)}

	tests := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"before, touching", at(9, 0), at(10, 0), false},
		{"after, touching", at(11, 0), at(12, 0), false},
		{"inside", at(10, 15), at(10, 45), true},
		{"covering", at(9, 0), at(12, 0), true},
		{"straddling start", at(9, 30), at(10, 30), true},
		{"straddling end", at(10, 30), at(11, 30), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := iv.Overlaps(tt.start, tt.end); got != tt.want {
				t.Errorf("Overlaps = %v, want %v", got, tt.want)
			}
		})
	}
}
