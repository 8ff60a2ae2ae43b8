package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"brokergate/internal/audit"
)

// Store keeps audit entries in memory for tests and infrastructure-free
// boots. Entries are returned newest first, matching the PostgreSQL store.
type Store struct {
	mu      sync.RWMutex
	entries []audit.Entry
}

func New() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *Store) ListByRecord(_ context.Context, recordID uuid.UUID) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].RecordID == recordID {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

// All returns every entry in append order; test helper.
func (s *Store) All() []audit.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Entry(nil), s.entries...)
}
