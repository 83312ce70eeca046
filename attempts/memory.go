package attempts

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory behind a single mutex. It
// suits a single instance; use RedisStore when several instances share
// lockout state.
//
// Expired records are dropped when read, and Fail sweeps the whole map at
// most once per window, so the map only holds identifiers that failed within
// the last window or are locked.
type MemoryStore struct {
	mu        sync.Mutex
	records   map[string]Record
	lastSweep time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Fail(_ context.Context, key string, now time.Time, p Policy) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) >= p.Window {
		s.sweep(now, p)
	}
	rec := s.records[key].fail(now, p)
	s.records[key] = rec
	return rec, nil
}

func (s *MemoryStore) Get(_ context.Context, key string, now time.Time, p Policy) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return Record{}, nil
	}
	if rec.expired(now, p) {
		delete(s.records, key)
		return Record{}, nil
	}
	return rec, nil
}

// sweep must be called with s.mu held.
func (s *MemoryStore) sweep(now time.Time, p Policy) {
	for key, rec := range s.records {
		if rec.expired(now, p) {
			delete(s.records, key)
		}
	}
	s.lastSweep = now
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of tracked identifiers.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
