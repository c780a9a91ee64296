package domain

import (
	"fmt"
	"strings"
)

// Priority is a closed enumeration. Its numeric value is the placement weight:
// lower values are placed first.
type Priority uint8

const (
	PriorityUrgent Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

var priorityNames = [...]string{
	PriorityUrgent: "urgent",
	PriorityHigh:   "high",
	PriorityMedium: "medium",
	PriorityLow:    "low",
}

// ParsePriority maps a name to a Priority. Unknown names fall back to
// PriorityMedium; the second return value reports whether the name was known.
func ParsePriority(s string) (Priority, bool) {
	name := strings.ToLower(strings.TrimSpace(s))
	for p, n := range priorityNames {
		if n == name {
			return Priority(p), true
		}
	}
	return PriorityMedium, false
}

// Weight returns the ordering weight. Out-of-range values weigh as medium.
func (p Priority) Weight() int {
	if p > PriorityLow {
		return int(PriorityMedium)
	}
	return int(p)
}

func (p Priority) String() string {
	if p > PriorityLow {
		return fmt.Sprintf("priority(%d)", uint8(p))
	}
	return priorityNames[p]
}

// MarshalText encodes the priority by name.
func (p Priority) MarshalText() ([]byte, error) {
	if p > PriorityLow {
		return []byte(priorityNames[PriorityMedium]), nil
	}
	return []byte(priorityNames[p]), nil
}

// UnmarshalText decodes a priority by name, never failing.
func (p *Priority) UnmarshalText(b []byte) error {
	*p, _ = ParsePriority(string(b))
	return nil
}
