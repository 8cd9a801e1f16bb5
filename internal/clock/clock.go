package clock

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock reads and one-shot timers so schedulers can be
// driven deterministically in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

// Real is the process wall clock.
type Real struct{}

// New returns the wall clock.
func New() Clock {
	return Real{}
}

// Now returns the current local time.
func (Real) Now() time.Time {
	return time.Now()
}

// AfterFunc runs f in its own goroutine once d has elapsed.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Ticker invokes a function repeatedly on a fixed interval. Unlike
// time.Ticker the next tick is armed only after the previous call returns,
// so a slow call never overlaps with the next one.
type Ticker struct {
	clock    Clock
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	timer   Timer
	running bool
}

// NewTicker prepares a ticker; nothing fires until Start is called.
func NewTicker(c Clock, interval time.Duration, fn func()) *Ticker {
	if c == nil {
		c = New()
	}
	return &Ticker{clock: c, interval: interval, fn: fn}
}

// Start arms the first tick. When immediate is true fn runs once
// synchronously before the first interval elapses.
func (t *Ticker) Start(immediate bool) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.mu.Unlock()

	if immediate {
		t.fn()
	}
	t.arm()
}

// Stop cancels the pending tick. A call already in progress completes.
func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Ticker) arm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.timer = t.clock.AfterFunc(t.interval, t.tick)
}

func (t *Ticker) tick() {
	t.mu.Lock()
	running := t.running
	t.mu.Unlock()
	if !running {
		return
	}
	t.fn()
	t.arm()
}
