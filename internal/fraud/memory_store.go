package fraud

import (
	"context"
	"sync"
	"time"
)

// MemoryStore process-local sliding-window store. Timestamps older than the
// retention horizon are pruned on access. State is lost on restart and not
// shared between instances.
type MemoryStore struct {
	mu        sync.Mutex
	events    map[string][]time.Time
	retention time.Duration
	now       func() time.Time
}

// NewMemoryStore creates an in-memory store. retention must be at least the
// longest window the gate queries with.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	return &MemoryStore{
		events:    make(map[string][]time.Time),
		retention: retention,
		now:       time.Now,
	}
}

// Count counts events for key inside the window
func (s *MemoryStore) Count(ctx context.Context, key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(key, now)

	cutoff := now.Add(-window)
	count := 0
	for _, at := range s.events[key] {
		if at.After(cutoff) {
			count++
		}
	}
	return count, nil
}

// Record appends an event for key
func (s *MemoryStore) Record(ctx context.Context, key string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(key, s.now())
	s.events[key] = append(s.events[key], at)
	return nil
}

func (s *MemoryStore) pruneLocked(key string, now time.Time) {
	entries, ok := s.events[key]
	if !ok {
		return
	}

	cutoff := now.Add(-s.retention)
	kept := entries[:0]
	for _, at := range entries {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}

	if len(kept) == 0 {
		delete(s.events, key)
		return
	}
	s.events[key] = kept
}
