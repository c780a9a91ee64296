package scheduling

import (
	"sort"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
)

// Validate checks caller-placed tasks: each must carry a start, its end is
// derived from the duration, the window must sit inside working hours and no
// two intervals of existing ∪ tasks may overlap.
//
// It returns copies of the tasks with ScheduledEnd filled in, ordered by start.
func Validate(tasks []domain.Task, existing []domain.Interval, cfg Config) ([]domain.Task, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	maxMinutes := cfg.WorkdayMinutes()

	placed := make([]domain.Task, len(tasks))
	copy(placed, tasks)
	for i := range placed {
		task := &placed[i]
		if task.ScheduledStart == nil {
			return nil, &domain.InvalidTaskError{TaskID: task.ID, Field: "scheduled_start", Reason: "is required for manual scheduling"}
		}
		if d := task.DurationMinutes; d <= 0 || d > maxMinutes {
			return nil, &domain.InvalidDurationError{TaskID: task.ID, Minutes: d, MaxMinutes: maxMinutes}
		}
		start := *task.ScheduledStart
		end := start.Add(task.Duration())
		if !cfg.contains(start, end) {
			return nil, &domain.OutsideWorkingHoursError{TaskID: task.ID, Start: start, End: end}
		}
		task.ScheduledEnd = &end
	}

	sort.SliceStable(placed, func(i, j int) bool {
		return placed[i].ScheduledStart.Before(*placed[j].ScheduledStart)
	})

	timeline := NewTimeline(existing)
	for i := range placed {
		task := &placed[i]
		start, end := *task.ScheduledStart, *task.ScheduledEnd
		if conflict, busy := timeline.FirstConflict(start, end); busy {
			return nil, &domain.ConflictError{TaskID: task.ID, ConflictsWith: conflict.Ref, Start: start, End: end}
		}
		timeline.Insert(domain.Interval{Start: start, End: end, Ref: task.ID})
	}
	return placed, nil
}
