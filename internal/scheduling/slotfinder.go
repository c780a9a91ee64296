// Package scheduling places tasks into free working-hour slots.
//
// The engine is a pure function of its inputs: it reads no clock, touches no
// storage and keeps no state between calls. Callers must serialise calls for
// the same user so that each call sees a current set of occupied intervals.
package scheduling

import (
	"sort"
	"time"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
)

// Schedule assigns every task a start and end inside working hours that does
// not overlap existing or previously placed intervals.
//
// The returned slice holds copies of the tasks in placement order: priority
// weight first, then due date (tasks without a due date last), ties kept in
// input order. Either every task is placed or an error is returned and no
// placement is reported.
func Schedule(tasks []domain.Task, existing []domain.Interval, cfg Config, now time.Time) ([]domain.Task, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	maxMinutes := cfg.WorkdayMinutes()
	for i := range tasks {
		if d := tasks[i].DurationMinutes; d <= 0 || d > maxMinutes {
			return nil, &domain.InvalidDurationError{TaskID: tasks[i].ID, Minutes: d, MaxMinutes: maxMinutes}
		}
	}

	ordered := make([]domain.Task, len(tasks))
	copy(ordered, tasks)
	SortForPlacement(ordered)

	timeline := NewTimeline(existing)
	horizon := now.Add(cfg.Horizon)
	cursor := cfg.align(now)

	for i := range ordered {
		task := &ordered[i]
		start, ok := findSlot(cfg, timeline, cursor, task.Duration(), horizon)
		if !ok {
			return nil, &domain.UnplaceableError{TaskID: task.ID, Horizon: horizon}
		}
		end := start.Add(task.Duration())
		task.ScheduledStart = &start
		task.ScheduledEnd = &end

		timeline.Insert(domain.Interval{Start: start, End: end, Ref: task.ID})
		cursor = end.Add(cfg.Buffer)
	}
	return ordered, nil
}

// findSlot returns the earliest start at or after cursor whose window fits in
// one working day and is free on the timeline. ok is false once the search
// passes the horizon.
func findSlot(cfg Config, tl *Timeline, cursor time.Time, d time.Duration, horizon time.Time) (time.Time, bool) {
	candidate := cfg.align(cursor)
	for {
		if candidate.After(horizon) {
			return time.Time{}, false
		}
		end := candidate.Add(d)
		if !cfg.contains(candidate, end) {
			candidate = cfg.nextOpening(candidate)
			continue
		}
		conflict, busy := tl.FirstConflict(candidate, end)
		if !busy {
			return candidate, true
		}
		candidate = cfg.align(conflict.End.Add(cfg.Buffer))
	}
}

// SortForPlacement orders tasks in place by priority weight, then due date.
// Tasks without a due date sort after all dated tasks of the same weight.
func SortForPlacement(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		wi, wj := tasks[i].Priority.Weight(), tasks[j].Priority.Weight()
		if wi != wj {
			return wi < wj
		}
		return dueBefore(tasks[i].DueDate, tasks[j].DueDate)
	})
}

func dueBefore(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.Before(*b)
	}
}
