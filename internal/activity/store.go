package activity

import (
	"context"
	"sync"
)

// Store is the append-only event log backing the bus.
type Store interface {
	// Append assigns the next sequence id and stores e.
	Append(ctx context.Context, e Event) (Event, error)
	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]Event, error)
}

const defaultRetention = 1000

type memoryStore struct {
	mu        sync.RWMutex
	seq       int64
	retention int
	events    []Event
}

// NewMemoryStore keeps the most recent retention events in memory. A
// non-positive retention uses the default of 1000.
func NewMemoryStore(retention int) Store {
	if retention <= 0 {
		retention = defaultRetention
	}
	return &memoryStore{retention: retention}
}

func (s *memoryStore) Append(_ context.Context, e Event) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	e.ID = s.seq
	s.events = append(s.events, e)
	if over := len(s.events) - s.retention; over > 0 {
		s.events = append([]Event(nil), s.events[over:]...)
	}
	return e, nil
}

func (s *memoryStore) Recent(_ context.Context, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]Event, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}
