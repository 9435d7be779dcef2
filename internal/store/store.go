// Package store tracks which source documents have already been acquired so
// repeated runs skip re-downloading them.
package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/papergest/internal/exam"
)

// Entry is the recorded metadata of one acquired document.
type Entry struct {
	Fingerprint string    `json:"fingerprint"`
	Subject     string    `json:"subject"`
	Topic       string    `json:"topic,omitempty"`
	Origin      string    `json:"origin,omitempty"`
	Name        string    `json:"name,omitempty"`
	Path        string    `json:"path,omitempty"`
	AcquiredAt  time.Time `json:"acquired_at"`
}

// Document returns a source document whose payload is read lazily from the
// entry's local path.
func (e Entry) Document() exam.SourceDocument {
	path := e.Path
	return exam.LazyDocument(e.Fingerprint, e.Subject, e.Origin, e.Name, func(context.Context) ([]byte, error) {
		if path == "" {
			return nil, errors.New("no local copy recorded")
		}
		return os.ReadFile(path)
	})
}

// Backend persists store membership. Append is called once per new
// fingerprint; Flush and Close mark teardown.
type Backend interface {
	Load(ctx context.Context) ([]Entry, error)
	Append(ctx context.Context, e Entry) error
	Flush(ctx context.Context) error
	Close() error
}

// ErrNoFingerprint is returned when recording an entry without identity.
var ErrNoFingerprint = errors.New("entry has no fingerprint")

// Store is the in-process view of acquired documents. It is safe for
// concurrent use.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	entries []Entry
	index   map[string]int
	logger  *slog.Logger
}

// Open loads existing membership from backend. Duplicate fingerprints in
// the persisted data are collapsed to their first occurrence.
func Open(ctx context.Context, backend Backend, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	loaded, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load store: %w", err)
	}
	s := &Store{
		backend: backend,
		index:   make(map[string]int, len(loaded)),
		logger:  logger,
	}
	for _, e := range loaded {
		if e.Fingerprint == "" {
			continue
		}
		if _, ok := s.index[e.Fingerprint]; ok {
			continue
		}
		s.index[e.Fingerprint] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	logger.Debug("document store opened", "entries", len(s.entries))
	return s, nil
}

// Has reports whether fingerprint is known.
func (s *Store) Has(fingerprint string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[fingerprint]
	return ok
}

// Get returns the entry for fingerprint.
func (s *Store) Get(fingerprint string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[fingerprint]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// Len is the number of known documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Record marks e as acquired. Recording a known fingerprint is a no-op and
// reports added=false.
func (s *Store) Record(ctx context.Context, e Entry) (added bool, err error) {
	if e.Fingerprint == "" {
		return false, ErrNoFingerprint
	}
	if e.AcquiredAt.IsZero() {
		e.AcquiredAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[e.Fingerprint]; ok {
		return false, nil
	}
	if err := s.backend.Append(ctx, e); err != nil {
		return false, fmt.Errorf("record %s: %w", e.Fingerprint, err)
	}
	s.index[e.Fingerprint] = len(s.entries)
	s.entries = append(s.entries, e)
	return true, nil
}

// List yields the entries for subject (all subjects when empty, compared
// case-insensitively). Entries recorded under topicHint come first; within
// each group recording order is kept. Every range over the returned
// sequence iterates a fresh snapshot.
func (s *Store) List(subject, topicHint string) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		s.mu.RLock()
		snapshot := make([]Entry, len(s.entries))
		copy(snapshot, s.entries)
		s.mu.RUnlock()

		var rest []Entry
		for _, e := range snapshot {
			if subject != "" && !strings.EqualFold(e.Subject, subject) {
				continue
			}
			if topicHint != "" && !strings.EqualFold(e.Topic, topicHint) {
				rest = append(rest, e)
				continue
			}
			if !yield(e) {
				return
			}
		}
		for _, e := range rest {
			if !yield(e) {
				return
			}
		}
	}
}

// Documents is List mapped to lazily loaded source documents.
func (s *Store) Documents(subject, topicHint string) iter.Seq[exam.SourceDocument] {
	return func(yield func(exam.SourceDocument) bool) {
		for e := range s.List(subject, topicHint) {
			if !yield(e.Document()) {
				return
			}
		}
	}
}

// Flush persists pending membership.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Flush(ctx)
}

// Close flushes and releases the backend.
func (s *Store) Close(ctx context.Context) error {
	flushErr := s.Flush(ctx)
	return errors.Join(flushErr, s.backend.Close())
}
