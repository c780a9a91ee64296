package sources

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
)

// dateLayouts are accepted for free-form date cells, tried in order.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// PayloadError reports a payload that is not valid for its source.
type PayloadError struct {
	Source domain.Source
	Err    error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("invalid %s payload: %v", e.Source, e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

func decode(source domain.Source, payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return &PayloadError{Source: source, Err: err}
	}
	return nil
}

// parseTime parses s with the first matching layout. Layouts without a zone
// are read as UTC.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// parseDuration reads minutes from "45", "45m", "1.5h" or a Go duration
// such as "1h30m". Empty input yields 0 so the caller's default applies.
func parseDuration(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	if h, ok := strings.CutSuffix(s, "h"); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(h), 64); err == nil {
			return int(math.Round(f * 60)), nil
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("unrecognised duration %q", s)
	}
	return int(d / time.Minute), nil
}

func priorityPtr(name string) *domain.Priority {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	p, _ := domain.ParsePriority(name)
	return &p
}
