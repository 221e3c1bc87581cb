package testutil

import (
	"context"
	"sync"

	"github.com/bkyoung/review-bridge/internal/domain"
	"github.com/bkyoung/review-bridge/internal/store"
)

// MemoryStore is an in-memory store.Store. Commits apply staged records
// atomically; CommitErr, when set, makes the next commit fail.
type MemoryStore struct {
	mu        sync.Mutex
	committed *store.RecordSet
	staged    map[string]domain.DurableRecord

	CommitErr error
	Commits   []string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		committed: store.NewRecordSet(),
		staged:    map[string]domain.DurableRecord{},
	}
}

func (s *MemoryStore) Current(ctx context.Context) (*store.RecordSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := store.NewRecordSet()
	for _, r := range s.committed.All() {
		out.Put(r)
	}
	for _, r := range s.staged {
		out.Put(r)
	}
	return out, nil
}

func (s *MemoryStore) Put(ctx context.Context, record domain.DurableRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged[record.EntityID] = record
	return nil
}

func (s *MemoryStore) Commit(ctx context.Context, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CommitErr != nil {
		err := s.CommitErr
		s.CommitErr = nil
		return err
	}
	for _, r := range s.staged {
		s.committed.Put(r)
	}
	s.staged = map[string]domain.DurableRecord{}
	s.Commits = append(s.Commits, message)
	return nil
}

// Committed returns the committed record for an entity.
func (s *MemoryStore) Committed(entityID string) (domain.DurableRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed.Get(entityID)
}
