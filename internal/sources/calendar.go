package sources

import (
	"errors"
	"strings"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
)

const busyTitle = "Busy"

// CalendarPayload is one event from an external calendar. Start and End are
// RFC 3339 timestamps, or plain dates for all-day events.
type CalendarPayload struct {
	EventID string `json:"event_id"`
	Summary string `json:"summary"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// DecodeCalendarEvent parses a calendar payload into an event owned by nobody
// yet; the caller fills in ID, UserID and CreatedAt.
func DecodeCalendarEvent(payload []byte) (domain.CalendarEvent, error) {
	var p CalendarPayload
	if err := decode(domain.SourceCalendar, payload, &p); err != nil {
		return domain.CalendarEvent{}, err
	}
	start, err := parseTime(p.Start)
	if err != nil {
		return domain.CalendarEvent{}, &PayloadError{Source: domain.SourceCalendar, Err: err}
	}
	end, err := parseTime(p.End)
	if err != nil {
		return domain.CalendarEvent{}, &PayloadError{Source: domain.SourceCalendar, Err: err}
	}
	if !end.After(start) {
		return domain.CalendarEvent{}, &PayloadError{Source: domain.SourceCalendar, Err: errors.New("end must be after start")}
	}

	title := strings.TrimSpace(p.Summary)
	if title == "" {
		title = busyTitle
	}
	return domain.CalendarEvent{
		Title:      truncateRunes(title, domain.MaxTitleRunes),
		ExternalID: p.EventID,
		Start:      start,
		End:        end,
	}, nil
}
