// Package gitstore persists the durable record set as a single text blob in
// a version-controlled ref.
package gitstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bkyoung/review-bridge/internal/domain"
	"github.com/bkyoung/review-bridge/internal/store"
	"github.com/bkyoung/review-bridge/internal/vcs"
)

// Config locates the state repository.
type Config struct {
	URL         string
	Ref         string
	FileName    string
	WorkDir     string
	AuthorName  string
	AuthorEmail string
	PushRetries int
}

// Store implements store.Store on top of a vcs working copy.
type Store struct {
	cfg    Config
	client vcs.Client

	mu     sync.Mutex
	repo   vcs.Repository
	staged map[string]domain.DurableRecord
}

// New constructs a git-backed store.
func New(cfg Config, client vcs.Client) *Store {
	if cfg.FileName == "" {
		cfg.FileName = "state.json"
	}
	if cfg.PushRetries <= 0 {
		cfg.PushRetries = 3
	}
	return &Store{cfg: cfg, client: client, staged: map[string]domain.DurableRecord{}}
}

// Current pulls the ref and returns the stored set overlaid with any staged
// records.
func (s *Store) Current(ctx context.Context) (*store.RecordSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.refresh(ctx)
	if err != nil {
		return nil, err
	}
	for _, record := range s.staged {
		set.Put(record)
	}
	return set, nil
}

// Put stages a record for the next Commit.
func (s *Store) Put(ctx context.Context, record domain.DurableRecord) error {
	if record.EntityID == "" {
		return fmt.Errorf("%w: record without entity id", domain.ErrData)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged[record.EntityID] = record
	return nil
}

// Commit merges staged records over the freshly pulled set (key wins
// last-write) and pushes. A lost push race is retried up to the configured
// bound, then the commit fails with domain.ErrConflict and the staged
// records remain for the next attempt.
func (s *Store) Commit(ctx context.Context, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.staged) == 0 {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < s.cfg.PushRetries; attempt++ {
		set, err := s.refresh(ctx)
		if err != nil {
			return err
		}
		for _, record := range s.staged {
			set.Put(record)
		}
		data, err := set.Serialize()
		if err != nil {
			return err
		}
		path := filepath.Join(s.repo.Dir(), s.cfg.FileName)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write state file: %w", err)
		}
		if _, err := s.repo.CommitAll(ctx, message, s.cfg.AuthorName, s.cfg.AuthorEmail); err != nil {
			return err
		}
		err = s.repo.Push(ctx)
		if err == nil {
			s.staged = map[string]domain.DurableRecord{}
			return nil
		}
		if !errors.Is(err, vcs.ErrNonFastForward) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("state push lost after %d attempts: %w (%v)",
		s.cfg.PushRetries, domain.ErrConflict, lastErr)
}

// refresh materializes or updates the working copy and parses the blob.
// Callers hold s.mu.
func (s *Store) refresh(ctx context.Context) (*store.RecordSet, error) {
	if s.repo == nil {
		repo, err := s.client.Materialize(ctx, s.cfg.URL, s.cfg.Ref, s.cfg.WorkDir)
		if err != nil {
			return nil, err
		}
		s.repo = repo
	} else if err := s.repo.FetchCheckout(ctx, s.cfg.Ref); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.repo.Dir(), s.cfg.FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return store.NewRecordSet(), nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	return store.Deserialize(data)
}
