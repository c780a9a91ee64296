package scheduling

import (
	"sort"
	"time"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
)

// Timeline is an index of occupied intervals ordered by start time.
// It is owned by a single scheduling call and is not safe for concurrent use.
type Timeline struct {
	items []domain.Interval
}

// NewTimeline copies and sorts the given intervals. The input is left untouched.
func NewTimeline(existing []domain.Interval) *Timeline {
	items := make([]domain.Interval, len(existing))
	copy(items, existing)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Start.Before(items[j].Start)
	})
	return &Timeline{items: items}
}

// Len returns the number of intervals in the index.
func (tl *Timeline) Len() int { return len(tl.items) }

// Intervals returns a copy of the index in start order.
func (tl *Timeline) Intervals() []domain.Interval {
	out := make([]domain.Interval, len(tl.items))
	copy(out, tl.items)
	return out
}

// Insert adds iv after any interval with an equal or earlier start. O(log n) search, O(n) shift.
func (tl *Timeline) Insert(iv domain.Interval) {
	i := sort.Search(len(tl.items), func(i int) bool {
		return tl.items[i].Start.After(iv.Start)
	})
	tl.items = append(tl.items, domain.Interval{})
	copy(tl.items[i+1:], tl.items[i:])
	tl.items[i] = iv
}

// FirstConflict returns the earliest-starting interval overlapping [start, end).
// Only intervals starting before end can overlap, so the scan is bounded by a
// binary search on start.
func (tl *Timeline) FirstConflict(start, end time.Time) (domain.Interval, bool) {
	limit := sort.Search(len(tl.items), func(i int) bool {
		return !tl.items[i].Start.Before(end)
	})
	for _, iv := range tl.items[:limit] {
		if iv.Overlaps(start, end) {
			return iv, true
		}
	}
	return domain.Interval{}, false
}
