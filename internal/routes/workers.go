package routes

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lncurl/lncurl/internal/activity"
	"github.com/lncurl/lncurl/internal/billing"
	"github.com/lncurl/lncurl/internal/clock"
	"github.com/lncurl/lncurl/internal/stats"
)

// Workers are the background loops running next to the HTTP server: the
// billing scheduler, the fund refresher and housekeeping tickers.
type Workers struct {
	scheduler *billing.Scheduler
	funds     *stats.Funds
	tickers   []*clock.Ticker
	logger    *slog.Logger

	mu      sync.Mutex
	stopped bool
}

func (w *Workers) add(t *clock.Ticker) {
	w.tickers = append(w.tickers, t)
}

// Scheduler exposes the billing scheduler.
func (w *Workers) Scheduler() *billing.Scheduler {
	return w.scheduler
}

// Start launches every loop. An overdue billing run executes before Start
// returns, so callers usually run it on its own goroutine.
func (w *Workers) Start(ctx context.Context) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	for _, t := range w.tickers {
		t.Start(false)
	}
	w.mu.Unlock()

	w.funds.Start()
	w.mu.Lock()
	if w.stopped {
		w.funds.Stop()
	}
	w.mu.Unlock()
	w.scheduler.Start(ctx)
}

// Stop halts the tickers and waits for an in-flight billing cycle.
func (w *Workers) Stop(ctx context.Context) error {
	w.mu.Lock()
	w.stopped = true
	for _, t := range w.tickers {
		t.Stop()
	}
	w.mu.Unlock()

	w.funds.Stop()
	return w.scheduler.Stop(ctx)
}

func pruneActivity(store *activity.PostgresStore, keep int, logger *slog.Logger) func() {
	return func() {
		removed, err := store.Prune(context.Background(), keep)
		if err != nil {
			logger.Warn("prune activity log", "error", err)
			return
		}
		if removed > 0 {
			logger.Info("activity log pruned", "removed", removed)
		}
	}
}
