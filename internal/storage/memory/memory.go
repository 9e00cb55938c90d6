// Package memory implements storage.Backend in process memory; intended for
// tests and local development. The package mutex makes every AtomicUpdate
// trivially atomic.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"pkt.systems/statevault/internal/storage"
)

// Store holds records and index entries behind one mutex.
type Store struct {
	mu      sync.Mutex
	records map[string]*recordEntry
	index   map[string]IndexEntry
	closed  bool
}

type recordEntry struct {
	record *storage.Record
	ids    []string
	etag   string
}

// IndexEntry is one secondary-index slot, exposed for test assertions.
type IndexEntry struct {
	Score float64
	IDs   []string
}

// New returns a ready to use in-memory store.
func New() *Store {
	return &Store{
		records: make(map[string]*recordEntry),
		index:   make(map[string]IndexEntry),
	}
}

// AtomicUpdate applies fn under the store mutex and commits the result.
func (s *Store) AtomicUpdate(_ context.Context, key string, fn storage.UpdateFunc) (*storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, storage.NewError(storage.CodeUnavailable, "memory store closed")
	}

	var cur *storage.Record
	if entry, ok := s.records[key]; ok {
		cur = entry.record.Clone()
	}
	next, ids, err := fn(cur)
	if err != nil {
		return nil, err
	}
	if next == nil {
		next = cur
	}
	if next == nil {
		// Absent key committed unchanged stays absent.
		return nil, nil
	}
	committed := next.Clone()
	s.records[key] = &recordEntry{
		record: committed,
		ids:    append([]string(nil), ids...),
		etag:   uuid.NewString(),
	}
	return committed.Clone(), nil
}

// WriteIndex records the score for key. Always succeeds for the in-memory
// store; real backends may lose this write.
func (s *Store) WriteIndex(_ context.Context, key string, score float64, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.NewError(storage.CodeUnavailable, "memory store closed")
	}
	s.index[key] = IndexEntry{Score: score, IDs: append([]string(nil), ids...)}
	return nil
}

// Close marks the store closed; subsequent calls fail with an unavailable
// error so shutdown bugs surface in tests.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Index returns the current index entry for key, for test assertions.
func (s *Store) Index(key string) (IndexEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.index[key]
	return entry, ok
}

// Record returns a copy of the stored record for key, for test assertions.
func (s *Store) Record(key string) (*storage.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.records[key]
	if !ok {
		return nil, false
	}
	return entry.record.Clone(), true
}

// AssociatedIDs returns the ids recorded by the last committed update for key.
func (s *Store) AssociatedIDs(key string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.records[key]
	if !ok {
		return nil
	}
	return append([]string(nil), entry.ids...)
}
