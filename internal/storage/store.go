// Package storage persists segmented-write progress so a failed attempt can
// resume across process restarts. Progress is keyed by the content
// fingerprint; everything else in the system is derived from the ledger and
// needs no storage of its own.
package storage

import (
	"context"
	"errors"
	"sync"

	"kasocial/internal/models"
)

// ErrNoProgress is returned when no record exists for a fingerprint.
var ErrNoProgress = errors.New("storage: no progress record")

// Record is one persisted write attempt: the progress state plus the split
// segment contents needed to continue publishing.
type Record struct {
	Progress *models.WriteProgress `json:"progress"`
	Pieces   []string              `json:"pieces"`
}

// ProgressStore saves and loads write-progress records.
type ProgressStore interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, fingerprint string) (*Record, error)
	Delete(ctx context.Context, fingerprint string) error
	Close()
}

// MemoryStore keeps records in memory. Default when no database is
// configured; resumability is then best-effort within one process lifetime.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Save stores a snapshot of the record.
func (s *MemoryStore) Save(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Progress.Fingerprint] = &Record{
		Progress: rec.Progress.Clone(),
		Pieces:   append([]string(nil), rec.Pieces...),
	}
	return nil
}

// Get returns a snapshot of the record for fingerprint.
func (s *MemoryStore) Get(ctx context.Context, fingerprint string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[fingerprint]
	if !ok {
		return nil, ErrNoProgress
	}
	return &Record{
		Progress: rec.Progress.Clone(),
		Pieces:   append([]string(nil), rec.Pieces...),
	}, nil
}

// Delete removes the record for fingerprint, if any.
func (s *MemoryStore) Delete(ctx context.Context, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, fingerprint)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() {}
