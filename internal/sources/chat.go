package sources

import (
	"regexp"
	"strings"
	"time"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
)

var hashtag = regexp.MustCompile(`#(\w+)`)

// ChatMessage is a chat message forwarded for task creation.
type ChatMessage struct {
	MessageID string     `json:"message_id,omitempty"`
	Sender    string     `json:"sender"`
	Text      string     `json:"text"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	Priority  string     `json:"priority,omitempty"`
}

// Chat turns a chat message into a task. The first line is the title, the
// rest goes to the description. Hashtags become tags, except priority names,
// which set the priority when none was given explicitly.
type Chat struct{}

func (Chat) Source() domain.Source { return domain.SourceChat }

func (Chat) Normalize(payload []byte) (domain.TaskDraft, error) {
	var m ChatMessage
	if err := decode(domain.SourceChat, payload, &m); err != nil {
		return domain.TaskDraft{}, err
	}

	text := strings.TrimSpace(m.Text)
	title, rest, _ := strings.Cut(text, "\n")

	priority := priorityPtr(m.Priority)
	tags := []string{"chat"}
	for _, match := range hashtag.FindAllStringSubmatch(text, -1) {
		if p, known := domain.ParsePriority(match[1]); known {
			if priority == nil {
				priority = &p
			}
			continue
		}
		tags = append(tags, strings.ToLower(match[1]))
	}

	var desc []string
	if m.Sender != "" {
		desc = append(desc, "From: "+m.Sender)
	}
	if rest = strings.TrimSpace(rest); rest != "" {
		desc = append(desc, rest)
	}

	d := domain.TaskDraft{
		Title:       truncateRunes(strings.TrimSpace(title), domain.MaxTitleRunes),
		Description: strings.Join(desc, "\n\n"),
		Priority:    priority,
		Source:      domain.SourceChat,
		Tags:        tags,
		ExternalID:  m.MessageID,
		DueDate:     m.DueDate,
	}
	return d, d.Clean()
}
