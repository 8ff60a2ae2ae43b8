package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"brokergate/internal/lifecycle"
	"brokergate/pkg/platform/sentinel"
)

// Store is the in-memory mirror of the PostgreSQL record store. It lets the
// service boot without infrastructure and keeps unit tests hermetic. Returned
// records are copies; callers never share memory with the stored state.
type Store struct {
	mu      sync.RWMutex
	records map[string]map[uuid.UUID]*lifecycle.Record
}

func New() *Store {
	return &Store{records: make(map[string]map[uuid.UUID]*lifecycle.Record)}
}

func (s *Store) Create(_ context.Context, rec *lifecycle.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.records[rec.Kind]
	if !ok {
		byID = make(map[uuid.UUID]*lifecycle.Record)
		s.records[rec.Kind] = byID
	}
	if _, exists := byID[rec.ID]; exists {
		return fmt.Errorf("create %s %s: %w", rec.Kind, rec.ID, sentinel.ErrConflict)
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	byID[rec.ID] = copyRecord(rec)
	return nil
}

func (s *Store) Get(_ context.Context, kind string, id uuid.UUID) (*lifecycle.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[kind][id]
	if !ok {
		return nil, fmt.Errorf("get %s %s: %w", kind, id, sentinel.ErrNotFound)
	}
	return copyRecord(rec), nil
}

// GetForUpdate has no row lock to take here; mutual exclusion per record is
// provided by the memory TxRunner's sharded locks.
func (s *Store) GetForUpdate(ctx context.Context, kind string, id uuid.UUID) (*lifecycle.Record, error) {
	return s.Get(ctx, kind, id)
}

func (s *Store) ApplyMerge(_ context.Context, kind string, id uuid.UUID, proposed lifecycle.Fields, status *lifecycle.StateName) (*lifecycle.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[kind][id]
	if !ok {
		return nil, fmt.Errorf("merge %s %s: %w", kind, id, sentinel.ErrNotFound)
	}
	rec.Fields = lifecycle.Merge(rec.Fields, proposed)
	if status != nil {
		rec.Status = *status
	}
	rec.UpdatedAt = time.Now().UTC()
	return copyRecord(rec), nil
}

func copyRecord(rec *lifecycle.Record) *lifecycle.Record {
	out := *rec
	out.Fields = rec.Fields.Clone()
	return &out
}
