// Package watch streams committed history entries to downstream consumers.
// Registry changes become visible to external systems (DNS audit, reporting,
// replication) only through this stream, never by polling the store.
package watch

import (
	"context"
	"sync"

	"registryd/internal/model"
)

// Sink receives committed history entries. Publication is after-commit and
// at-least-once: a failed publish is logged and dropped, never rolled back.
type Sink interface {
	PublishHistory(ctx context.Context, entry model.HistoryEntry)
}

// MemorySink collects published entries for tests and dev mode.
type MemorySink struct {
	mu      sync.Mutex
	entries []model.HistoryEntry
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) PublishHistory(_ context.Context, entry model.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

// Entries returns a copy of everything published so far.
func (s *MemorySink) Entries() []model.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.HistoryEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
