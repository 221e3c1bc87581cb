// Package store materializes the bridge's durable memory: a set of
// per-entity records serialized as line-delimited JSON and kept in a
// version-controlled ref.
package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/bkyoung/review-bridge/internal/domain"
)

// Store persists durable records.
type Store interface {
	// Current returns the record set as of the last refresh.
	Current(ctx context.Context) (*RecordSet, error)

	// Put stages a record, replacing any staged or stored record with the
	// same entity id.
	Put(ctx context.Context, record domain.DurableRecord) error

	// Commit persists staged records with optimistic concurrency. After
	// exhausting its retry budget it fails with domain.ErrConflict and no
	// staged record is lost.
	Commit(ctx context.Context, message string) error
}

// RecordSet is a set of durable records keyed by entity id.
type RecordSet struct {
	records map[string]domain.DurableRecord
}

// NewRecordSet returns an empty set.
func NewRecordSet() *RecordSet {
	return &RecordSet{records: map[string]domain.DurableRecord{}}
}

// Get returns the record for an entity id.
func (s *RecordSet) Get(entityID string) (domain.DurableRecord, bool) {
	r, ok := s.records[entityID]
	return r, ok
}

// Put replaces the entry with the record's entity id.
func (s *RecordSet) Put(record domain.DurableRecord) {
	s.records[record.EntityID] = record
}

// Len returns the number of records.
func (s *RecordSet) Len() int {
	return len(s.records)
}

// All returns the records sorted by entity id.
func (s *RecordSet) All() []domain.DurableRecord {
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]domain.DurableRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.records[id])
	}
	return out
}

// Serialize renders the set as line-delimited JSON sorted by entity id, so
// the stored blob diffs stably between commits.
func (s *RecordSet) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	for _, record := range s.All() {
		line, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("marshal record %s: %w", record.EntityID, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// Deserialize parses a serialized set. Blank lines are tolerated.
func Deserialize(data []byte) (*RecordSet, error) {
	set := NewRecordSet()
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var record domain.DurableRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("unmarshal record line: %w", err)
		}
		set.Put(record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	return set, nil
}
