// Package stats serves the dashboard numbers: throughput over a rolling
// window, memoized node reads and fund balances.
package stats

import (
	"context"
	"sync"
	"time"

	"github.com/lncurl/lncurl/internal/activity"
	"github.com/lncurl/lncurl/internal/clock"
)

// DefaultSpan is the rolling window used for TPS and VPS.
const DefaultSpan = time.Minute

type sample struct {
	at   time.Time
	sats int64
}

// Window keeps activity samples for a fixed span. Samples are pruned lazily
// on read.
type Window struct {
	clock clock.Clock
	span  time.Duration

	mu      sync.Mutex
	samples []sample
}

// NewWindow builds a window over span; a non-positive span means DefaultSpan.
func NewWindow(clk clock.Clock, span time.Duration) *Window {
	if clk == nil {
		clk = clock.New()
	}
	if span <= 0 {
		span = DefaultSpan
	}
	return &Window{clock: clk, span: span}
}

// Record adds one sample at the current time.
func (w *Window) Record(sats int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = append(w.samples, sample{at: w.clock.Now(), sats: sats})
}

// Listener records every published event. An event carrying an amount
// counts that many sats; otherwise creations count 0 and everything else 1.
func (w *Window) Listener() activity.Listener {
	return func(_ context.Context, e activity.Event) error {
		sats := e.AmountSats
		if sats == 0 && e.Type != activity.TypeWalletCreated {
			sats = 1
		}
		w.Record(sats)
		return nil
	}
}

// TPS is the number of events per second over the span.
func (w *Window) TPS() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked()
	return float64(len(w.samples)) / w.span.Seconds()
}

// VPS is the sats volume per second over the span.
func (w *Window) VPS() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked()
	var total int64
	for _, s := range w.samples {
		total += s.sats
	}
	return float64(total) / w.span.Seconds()
}

func (w *Window) pruneLocked() {
	cutoff := w.clock.Now().Add(-w.span)
	i := 0
	for i < len(w.samples) && w.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.samples = append(w.samples[:0], w.samples[i:]...)
	}
}
