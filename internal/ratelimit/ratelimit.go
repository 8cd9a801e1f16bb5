// Package ratelimit implements sliding-window admission control keyed by
// client origin.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/lncurl/lncurl/internal/clock"
)

const (
	DefaultLimit  = 10
	DefaultWindow = time.Hour
	// SweepInterval is how often idle keys are evicted from a Window.
	SweepInterval = 10 * time.Minute
)

// Result is the outcome of one admission check.
type Result struct {
	Allowed   bool
	Remaining int
}

// Limiter admits at most a fixed number of attempts per key per rolling
// window. An attempt only counts when it is allowed.
type Limiter interface {
	Check(ctx context.Context, key string) (Result, error)
}

// Window is an in-memory Limiter. State is lost on restart.
type Window struct {
	clock  clock.Clock
	limit  int
	window time.Duration

	mu   sync.Mutex
	hits map[string][]time.Time
}

// NewWindow builds an in-memory limiter. Non-positive values fall back to
// 10 attempts per hour.
func NewWindow(clk clock.Clock, limit int, window time.Duration) *Window {
	if clk == nil {
		clk = clock.New()
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Window{clock: clk, limit: limit, window: window, hits: make(map[string][]time.Time)}
}

// Check records an attempt for key if it is within quota.
func (w *Window) Check(_ context.Context, key string) (Result, error) {
	now := w.clock.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	recent := live(w.hits[key], now.Add(-w.window))
	if len(recent) >= w.limit {
		w.hits[key] = recent
		return Result{Allowed: false, Remaining: 0}, nil
	}
	recent = append(recent, now)
	w.hits[key] = recent
	return Result{Allowed: true, Remaining: w.limit - len(recent)}, nil
}

// Sweep drops keys with no attempt inside the current window and returns how
// many were evicted.
func (w *Window) Sweep() int {
	cutoff := w.clock.Now().Add(-w.window)

	w.mu.Lock()
	defer w.mu.Unlock()

	evicted := 0
	for key, hits := range w.hits {
		recent := live(hits, cutoff)
		if len(recent) == 0 {
			delete(w.hits, key)
			evicted++
			continue
		}
		w.hits[key] = recent
	}
	return evicted
}

// Keys reports how many origins are currently tracked.
func (w *Window) Keys() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.hits)
}

// live returns the suffix of hits newer than cutoff. hits is ordered.
func live(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return hits
	}
	return append([]time.Time(nil), hits[i:]...)
}
