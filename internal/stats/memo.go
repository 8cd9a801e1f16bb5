package stats

import (
	"context"
	"sync"
	"time"

	"github.com/lncurl/lncurl/internal/clock"
)

// Memo caches the result of a remote read for a fixed TTL. When a refresh
// fails the last good value is kept and served.
type Memo[T any] struct {
	clock clock.Clock
	ttl   time.Duration
	fetch func(ctx context.Context) (T, error)

	// fetchMu serializes refreshes so concurrent readers share one call.
	fetchMu sync.Mutex

	mu        sync.RWMutex
	value     T
	fetchedAt time.Time
	ok        bool
}

// NewMemo wraps fetch with a TTL cache.
func NewMemo[T any](clk clock.Clock, ttl time.Duration, fetch func(ctx context.Context) (T, error)) *Memo[T] {
	if clk == nil {
		clk = clock.New()
	}
	return &Memo[T]{clock: clk, ttl: ttl, fetch: fetch}
}

// Get returns the cached value while it is fresh and refreshes it otherwise.
// A failed refresh returns the last good value, or the zero value if there
// never was one, together with the error.
func (m *Memo[T]) Get(ctx context.Context) (T, error) {
	if v, ok := m.fresh(); ok {
		return v, nil
	}

	m.fetchMu.Lock()
	defer m.fetchMu.Unlock()
	if v, ok := m.fresh(); ok {
		return v, nil
	}

	v, err := m.fetch(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		return m.value, err
	}
	m.value = v
	m.fetchedAt = m.clock.Now()
	m.ok = true
	return v, nil
}

// Age reports how old the cached value is; false if nothing was fetched yet.
func (m *Memo[T]) Age() (time.Duration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.ok {
		return 0, false
	}
	return m.clock.Now().Sub(m.fetchedAt), true
}

func (m *Memo[T]) fresh() (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ok && m.clock.Now().Sub(m.fetchedAt) < m.ttl {
		return m.value, true
	}
	var zero T
	return zero, false
}
