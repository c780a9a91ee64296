package scheduling

import (
	"fmt"
	"time"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
)

const (
	DefaultStartHour = 9
	DefaultEndHour   = 18
	DefaultBuffer    = 15 * time.Minute
	DefaultHorizon   = 30 * 24 * time.Hour
)

// Config is the working-hours window used for one scheduling call.
type Config struct {
	// StartHour and EndHour bound the daily window on a 24-hour clock.
	// EndHour may be 24 to mean midnight.
	StartHour int
	EndHour   int
	// Buffer is the idle gap inserted after every placed task.
	Buffer time.Duration
	// Horizon caps how far past now a slot may start.
	Horizon time.Duration
	// Location is the timezone the window is read in. Nil uses each
	// timestamp's own location.
	Location *time.Location
}

// DefaultConfig returns 09:00–18:00 with a 15 minute buffer and a 30 day horizon.
func DefaultConfig() Config {
	return Config{
		StartHour: DefaultStartHour,
		EndHour:   DefaultEndHour,
		Buffer:    DefaultBuffer,
		Horizon:   DefaultHorizon,
	}
}

// FromWorkingHours builds a Config from stored per-user settings, keeping the
// default horizon. A zero-valued window means "no settings" and yields the defaults.
func FromWorkingHours(wh domain.WorkingHours) Config {
	cfg := DefaultConfig()
	if wh.StartHour == 0 && wh.EndHour == 0 {
		return cfg
	}
	cfg.StartHour = wh.StartHour
	cfg.EndHour = wh.EndHour
	if wh.BufferMinutes >= 0 {
		cfg.Buffer = time.Duration(wh.BufferMinutes) * time.Minute
	}
	return cfg
}

// Validate checks the window is a non-empty range inside one day.
func (c Config) Validate() error {
	switch {
	case c.StartHour < 0 || c.StartHour > 23:
		return &domain.InvalidConfigError{Reason: fmt.Sprintf("start hour %d out of range 0..23", c.StartHour)}
	case c.EndHour < 1 || c.EndHour > 24:
		return &domain.InvalidConfigError{Reason: fmt.Sprintf("end hour %d out of range 1..24", c.EndHour)}
	case c.StartHour >= c.EndHour:
		return &domain.InvalidConfigError{Reason: fmt.Sprintf("start hour %d is not before end hour %d", c.StartHour, c.EndHour)}
	case c.Buffer < 0:
		return &domain.InvalidConfigError{Reason: "buffer must not be negative"}
	case c.Horizon <= 0:
		return &domain.InvalidConfigError{Reason: "horizon must be positive"}
	}
	return nil
}

// WorkdayMinutes is the length of one working window.
func (c Config) WorkdayMinutes() int {
	return (c.EndHour - c.StartHour) * 60
}

// Lookahead is the latest instant an auto placement from now can end: a slot
// may start at the horizon and run for up to one working day.
func (c Config) Lookahead(now time.Time) time.Time {
	return now.Add(c.Horizon + time.Duration(c.WorkdayMinutes())*time.Minute)
}

func (c Config) local(t time.Time) time.Time {
	if c.Location == nil {
		return t
	}
	return t.In(c.Location)
}

// opening returns the start of the working window on t's calendar day in Location.
func (c Config) opening(t time.Time) time.Time {
	t = c.local(t)
	y, m, d := t.Date()
	return time.Date(y, m, d, c.StartHour, 0, 0, 0, t.Location())
}

// closing returns the end of the working window on t's calendar day.
func (c Config) closing(t time.Time) time.Time {
	t = c.local(t)
	y, m, d := t.Date()
	return time.Date(y, m, d, c.EndHour, 0, 0, 0, t.Location())
}

// nextOpening returns the start of the working window on the day after t.
func (c Config) nextOpening(t time.Time) time.Time {
	t = c.local(t)
	y, m, d := t.Date()
	return time.Date(y, m, d+1, c.StartHour, 0, 0, 0, t.Location())
}

// align moves t to the first working instant at or after it.
func (c Config) align(t time.Time) time.Time {
	t = c.local(t)
	if open := c.opening(t); t.Before(open) {
		return open
	}
	if !t.Before(c.closing(t)) {
		return c.nextOpening(t)
	}
	return t
}

// contains reports whether [start, end) fits in the working window of start's day.
func (c Config) contains(start, end time.Time) bool {
	return !start.Before(c.opening(start)) && !end.After(c.closing(start))
}
