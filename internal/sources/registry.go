// Package sources turns structured payloads from each ingestion channel into
// task drafts. Every source has exactly one Normalizer; calendar payloads are
// the exception and decode into events via DecodeCalendarEvent.
package sources

import (
	"sync"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
)

// Normalizer converts one source-specific payload into a cleaned TaskDraft.
type Normalizer interface {
	Normalize(payload []byte) (domain.TaskDraft, error)
	Source() domain.Source
}

// Registry maps sources to their normalizers.
type Registry struct {
	mu          sync.RWMutex
	normalizers map[domain.Source]Normalizer
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{normalizers: make(map[domain.Source]Normalizer)}
}

// DefaultRegistry returns a Registry with every built-in task source.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Manual{})
	r.Register(Email{})
	r.Register(Chat{})
	r.Register(Spreadsheet{})
	return r
}

// Register adds a normalizer, replacing any previous one for the same source.
// Safe to call concurrently.
func (r *Registry) Register(n Normalizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.normalizers[n.Source()] = n
}

// Get returns the normalizer for source, or *domain.UnknownSourceError.
func (r *Registry) Get(source domain.Source) (Normalizer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.normalizers[source]
	if !ok {
		return nil, &domain.UnknownSourceError{Source: source}
	}
	return n, nil
}

// Normalize looks up the normalizer for source and runs it.
func (r *Registry) Normalize(source domain.Source, payload []byte) (domain.TaskDraft, error) {
	n, err := r.Get(source)
	if err != nil {
		return domain.TaskDraft{}, err
	}
	return n.Normalize(payload)
}
