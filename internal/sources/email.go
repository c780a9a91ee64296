package sources

import (
	"strings"
	"time"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
)

const noSubject = "No Subject"

// EmailMessage is the structured form of an email forwarded for task creation.
type EmailMessage struct {
	MessageID       string     `json:"message_id"`
	From            string     `json:"from"`
	Subject         string     `json:"subject"`
	Body            string     `json:"body"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	Priority        string     `json:"priority,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
}

// Email turns an email into a task titled by its subject.
type Email struct{}

func (Email) Source() domain.Source { return domain.SourceEmail }

func (Email) Normalize(payload []byte) (domain.TaskDraft, error) {
	var m EmailMessage
	if err := decode(domain.SourceEmail, payload, &m); err != nil {
		return domain.TaskDraft{}, err
	}

	title := strings.TrimSpace(m.Subject)
	if title == "" {
		title = noSubject
	}
	var desc strings.Builder
	if m.From != "" {
		desc.WriteString("From: " + m.From)
	}
	if body := strings.TrimSpace(m.Body); body != "" {
		if desc.Len() > 0 {
			desc.WriteString("\n\n")
		}
		desc.WriteString(body)
	}

	d := domain.TaskDraft{
		Title:           truncateRunes(title, domain.MaxTitleRunes),
		Description:     desc.String(),
		Priority:        priorityPtr(m.Priority),
		Source:          domain.SourceEmail,
		Tags:            append([]string{"email"}, m.Tags...),
		ExternalID:      m.MessageID,
		DueDate:         m.DueDate,
		DurationMinutes: m.DurationMinutes,
	}
	return d, d.Clean()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
