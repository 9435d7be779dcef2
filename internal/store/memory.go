package store

import (
	"context"
	"sync"
)

// MemoryBackend keeps membership in process memory only.
type MemoryBackend struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryBackend returns a backend preloaded with entries.
func NewMemoryBackend(entries ...Entry) *MemoryBackend {
	return &MemoryBackend{entries: append([]Entry(nil), entries...)}
}

func (m *MemoryBackend) Load(context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...), nil
}

func (m *MemoryBackend) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *MemoryBackend) Flush(context.Context) error { return nil }

func (m *MemoryBackend) Close() error { return nil }
