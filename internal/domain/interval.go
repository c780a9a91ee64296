package domain

import "time"

// Interval is a half-open [Start, End) block of occupied time.
// Ref optionally names the task or event that owns it.
type Interval struct {
	Start time.Time
	End   time.Time
	Ref   string
}

// Overlaps reports whether two half-open intervals share any instant.
// Touching intervals ([a,b) and [b,c)) do not overlap.
func (iv Interval) Overlaps(start, end time.Time) bool {
	return start.Before(iv.End) && end.After(iv.Start)
}

// Duration returns End - Start.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}
