package sources

import "github.com/ramiqadoumi/task-inbox/internal/domain"

// Manual accepts a TaskDraft as-is.
type Manual struct{}

func (Manual) Source() domain.Source { return domain.SourceManual }

func (Manual) Normalize(payload []byte) (domain.TaskDraft, error) {
	var d domain.TaskDraft
	if err := decode(domain.SourceManual, payload, &d); err != nil {
		return d, err
	}
	d.Source = domain.SourceManual
	return d, d.Clean()
}
