package activity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lncurl/lncurl/internal/clock"
)

// Listener receives published events. Returned errors and panics are logged
// and never reach the publisher. Listeners must not call Publish.
type Listener func(ctx context.Context, e Event) error

type subscription struct {
	id int
	fn Listener
}

// Bus is the process-wide publish point for lifecycle events. Events are
// persisted before listeners see them, so every delivered event carries its
// durable id.
type Bus struct {
	store  Store
	clock  clock.Clock
	logger *slog.Logger

	// publishMu serializes publishes so listeners observe id order.
	publishMu sync.Mutex

	mu     sync.Mutex
	nextID int
	subs   []subscription
}

// NewBus wires a bus over the given store.
func NewBus(store Store, clk clock.Clock, logger *slog.Logger) *Bus {
	if clk == nil {
		clk = clock.New()
	}
	return &Bus{store: store, clock: clk, logger: logger}
}

// Subscribe registers fn and returns a function removing it. Both are safe
// to call from inside a listener; changes apply from the next publish.
func (b *Bus) Subscribe(fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Listeners reports the current subscription count.
func (b *Bus) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish persists e, then notifies the listeners subscribed at this moment
// in subscription order.
func (b *Bus) Publish(ctx context.Context, e Event) (Event, error) {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = b.clock.Now().UTC()
	}
	stored, err := b.store.Append(ctx, e)
	if err != nil {
		return Event{}, fmt.Errorf("persist activity: %w", err)
	}

	b.mu.Lock()
	snapshot := make([]subscription, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.Unlock()

	for _, s := range snapshot {
		b.notify(ctx, s, stored)
	}
	return stored, nil
}

// Recent returns up to limit events, newest first.
func (b *Bus) Recent(ctx context.Context, limit int) ([]Event, error) {
	return b.store.Recent(ctx, limit)
}

func (b *Bus) notify(ctx context.Context, s subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("activity listener panicked", "listener", s.id, "event", e.ID, "panic", r)
		}
	}()
	if err := s.fn(ctx, e); err != nil {
		b.logger.Warn("activity listener failed", "listener", s.id, "event", e.ID, "error", err)
	}
}
