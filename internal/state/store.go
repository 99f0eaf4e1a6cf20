package state

import (
	"context"
	"sync"

	"thermoguard/internal/models"
)

// Store maps an alert key ("metric:direction") to its last dispatch record.
// Get returns (nil, nil) when the key has never been dispatched.
type Store interface {
	Get(ctx context.Context, key string) (*models.Record, error)
	Set(ctx context.Context, key string, rec models.Record) error
	Close() error
}

// MemoryStore keeps records in process memory. Records do not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.Record)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, rec models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = rec
	return nil
}

// Len returns the number of keys held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) Close() error { return nil }
