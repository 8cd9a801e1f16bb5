// Package billing runs the recurring charge and reaping cycle over every
// active wallet.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lncurl/lncurl/internal/activity"
	"github.com/lncurl/lncurl/internal/clock"
	"github.com/lncurl/lncurl/internal/epitaph"
	"github.com/lncurl/lncurl/internal/ledger"
	"github.com/lncurl/lncurl/internal/metrics"
	"github.com/lncurl/lncurl/internal/wallet"
)

const (
	// minBalance is the smallest balance a wallet needs to stay alive.
	minBalance = 1
	minDelay   = time.Second
)

// ErrCycleRunning is returned when a cycle is triggered while another one is
// still in progress. The trigger is dropped, not queued.
var ErrCycleRunning = errors.New("billing cycle already running")

// errStopped drops a timer firing that raced with Stop.
var errStopped = errors.New("billing scheduler stopped")

// Config tunes the cycle.
type Config struct {
	ChargeAmount int64
	// Interval between cycles. Intervals of a minute or more are aligned to
	// the top of the next hour.
	Interval    time.Duration
	GracePeriod time.Duration
	// Concurrency bounds how many wallets are processed at once.
	Concurrency int
}

func (c Config) withDefaults() Config {
	if c.ChargeAmount <= 0 {
		c.ChargeAmount = 1
	}
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.GracePeriod < 0 {
		c.GracePeriod = 0
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	return c
}

// Achiever evaluates milestones at the end of each cycle.
type Achiever interface {
	Evaluate(ctx context.Context) ([]wallet.Achievement, error)
}

// Phase is the scheduler's coarse state.
type Phase int

const (
	Idle Phase = iota
	Running
)

func (p Phase) String() string {
	if p == Running {
		return "running"
	}
	return "idle"
}

// Report summarizes one cycle.
type Report struct {
	StartedAt  time.Time
	Visited    int
	Skipped    int
	Charged    int
	// Died includes wallets whose burial was finished by reconciliation.
	Died       int
	Failed     int
	Reconciled int
	Collected  int64
	NextRunAt  time.Time
	Unlocked   []wallet.Achievement
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeCharged
	outcomeDied
	outcomeFailed
)

func (o outcome) String() string {
	switch o {
	case outcomeCharged:
		return "charged"
	case outcomeDied:
		return "died"
	case outcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// Scheduler owns the billing timer. Only one cycle runs at a time.
type Scheduler struct {
	cfg          Config
	repo         wallet.Repository
	ledger       ledger.Ledger
	bus          *activity.Bus
	achievements Achiever
	clock        clock.Clock
	metrics      *metrics.Registry
	logger       *slog.Logger

	mu        sync.Mutex
	phase     Phase
	started   bool
	stopped   bool
	timer     clock.Timer
	nextRunAt time.Time
	base      context.Context
	// done is closed when the running cycle ends.
	done chan struct{}
}

// New builds a scheduler. m may be nil.
func New(cfg Config, repo wallet.Repository, led ledger.Ledger, bus *activity.Bus, ach Achiever, clk clock.Clock, m *metrics.Registry, logger *slog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		cfg:          cfg.withDefaults(),
		repo:         repo,
		ledger:       led,
		bus:          bus,
		achievements: ach,
		clock:        clk,
		metrics:      m,
		logger:       logger,
		base:         context.Background(),
	}
}

// Start resumes the persisted schedule. An overdue run executes immediately
// on the calling goroutine; otherwise the timer is armed for the persisted
// or the next aligned run time. Cycles started by the timer use a context
// that keeps ctx's values but is never cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.base = context.WithoutCancel(ctx)
	s.mu.Unlock()

	now := s.clock.Now()
	stats, err := s.repo.Stats(ctx)
	switch {
	case err != nil:
		s.logger.Error("read billing schedule", "error", err)
		s.arm(s.nextRun(now))
	case stats.NextChargeRunAt != nil && !stats.NextChargeRunAt.After(now):
		s.logger.Info("billing run overdue, catching up", "scheduled_at", *stats.NextChargeRunAt)
		s.trigger()
	case stats.NextChargeRunAt != nil:
		s.arm(*stats.NextChargeRunAt)
	default:
		s.arm(s.nextRun(now))
	}
}

// Stop cancels the pending timer and waits for an in-flight cycle to finish
// or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	done := s.done
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Phase reports whether a cycle is in progress.
func (s *Scheduler) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// NextRunAt is the time the timer is armed for; zero when unarmed.
func (s *Scheduler) NextRunAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRunAt
}

func (s *Scheduler) trigger() {
	s.mu.Lock()
	ctx := s.base
	s.mu.Unlock()
	_, err := s.runCycle(ctx, true)
	switch {
	case errors.Is(err, errStopped):
		s.logger.Info("billing scheduler stopped, trigger dropped")
	case err != nil && !errors.Is(err, ErrCycleRunning):
		s.logger.Error("billing cycle failed", "error", err)
	}
}

// RunCycle visits every active wallet once, then persists the next run time,
// evaluates achievements and re-arms the timer if the scheduler is started.
// Per-wallet failures are logged and counted, never returned.
func (s *Scheduler) RunCycle(ctx context.Context) (Report, error) {
	return s.runCycle(ctx, false)
}

// runCycle checks stopped and claims the Running phase under one lock, so a
// timer firing concurrently with Stop either runs before Stop returns or not
// at all.
func (s *Scheduler) runCycle(ctx context.Context, fromTimer bool) (Report, error) {
	s.mu.Lock()
	if fromTimer && s.stopped {
		s.mu.Unlock()
		return Report{}, errStopped
	}
	if s.phase == Running {
		s.mu.Unlock()
		s.logger.Warn("billing cycle still running, trigger dropped")
		s.observeCycle("skipped")
		return Report{}, ErrCycleRunning
	}
	s.phase = Running
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.phase = Idle
		s.done = nil
		s.mu.Unlock()
		close(done)
	}()

	report := Report{StartedAt: s.clock.Now()}
	s.logger.Info("billing cycle started")

	buried := s.reconcile(ctx, &report)
	s.visitAll(ctx, report.StartedAt, buried, &report)
	s.epilogue(ctx, &report)

	s.observeCycle("completed")
	if s.metrics != nil {
		s.metrics.CycleDuration.Observe(s.clock.Now().Sub(report.StartedAt).Seconds())
	}
	s.logger.Info("billing cycle finished",
		"visited", report.Visited,
		"charged", report.Charged,
		"died", report.Died,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"collected", report.Collected,
		"next_run_at", report.NextRunAt,
	)
	return report, nil
}

// reconcile finishes burials that wrote the grave but left the active row
// behind; the grave is authoritative. Each removed row is announced and its
// account released exactly as a regular reap would. It returns every such
// name so the cycle leaves them alone even when the removal failed.
func (s *Scheduler) reconcile(ctx context.Context, report *Report) map[string]struct{} {
	left, err := s.repo.GravedActive(ctx)
	if err != nil {
		s.logger.Error("reconcile graveyard", "error", err)
		return nil
	}
	buried := make(map[string]struct{}, len(left))
	for _, u := range left {
		name := u.Grave.Name
		buried[name] = struct{}{}
		if err := s.repo.RemoveActive(ctx, name); err != nil {
			s.logger.Error("remove buried wallet from active set", "wallet", name, "error", err)
			continue
		}
		s.logger.Warn("removed buried wallet from active set", "wallet", name)
		s.laidToRest(ctx, name, u.AccountRef, u.Grave.Flavor)
		report.Reconciled++
		report.Died++
		if s.metrics != nil {
			s.metrics.Wallets.WithLabelValues(outcomeDied.String()).Inc()
		}
	}
	return buried
}

func (s *Scheduler) visitAll(ctx context.Context, now time.Time, buried map[string]struct{}, report *Report) {
	wallets, err := s.repo.ListActive(ctx)
	if err != nil {
		s.logger.Error("list active wallets", "error", err)
		return
	}
	wallets = slices.DeleteFunc(wallets, func(w wallet.Wallet) bool {
		_, ok := buried[w.Name]
		return ok
	})

	outcomes := make([]outcome, len(wallets))
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, w := range wallets {
		g.Go(func() error {
			outcomes[i] = s.visit(ctx, w, now)
			return nil
		})
	}
	_ = g.Wait()

	report.Visited = len(wallets)
	for _, o := range outcomes {
		switch o {
		case outcomeSkipped:
			report.Skipped++
		case outcomeCharged:
			report.Charged++
		case outcomeDied:
			report.Died++
		case outcomeFailed:
			report.Failed++
		}
		if s.metrics != nil {
			s.metrics.Wallets.WithLabelValues(o.String()).Inc()
		}
	}
	report.Collected = int64(report.Charged) * s.cfg.ChargeAmount
}

func (s *Scheduler) visit(ctx context.Context, w wallet.Wallet, now time.Time) outcome {
	if now.Sub(w.CreatedAt) < s.cfg.GracePeriod {
		return outcomeSkipped
	}

	balance, err := s.ledger.Balance(ctx, w.AccountRef)
	if err != nil {
		s.logger.Warn("fetch balance", "wallet", w.Name, "error", err)
		return outcomeFailed
	}
	if err := s.repo.UpdateBalance(ctx, w.Name, balance); err != nil {
		s.logger.Warn("cache balance", "wallet", w.Name, "error", err)
	}

	if balance < minBalance {
		return s.reap(ctx, w, now)
	}
	return s.charge(ctx, w, now)
}

func (s *Scheduler) reap(ctx context.Context, w wallet.Wallet, now time.Time) outcome {
	flavor := epitaph.CauseOfDeath(w.CreatedAt, w.TotalCharged, now)
	words := w.Epitaph
	if words == "" {
		words = epitaph.Random()
	}
	deletedAt := now.UTC()
	if deletedAt.Before(w.CreatedAt) {
		deletedAt = w.CreatedAt
	}

	if err := s.repo.Bury(ctx, wallet.Grave{
		Name:         w.Name,
		CreatedAt:    w.CreatedAt,
		DeletedAt:    deletedAt,
		CauseOfDeath: wallet.CauseInsufficientFunds,
		Flavor:       flavor,
		TotalCharged: w.TotalCharged,
		Epitaph:      words,
	}); err != nil {
		s.logger.Error("bury wallet", "wallet", w.Name, "error", err)
		return outcomeFailed
	}

	s.laidToRest(ctx, w.Name, w.AccountRef, flavor)
	s.logger.Info("wallet reaped", "wallet", w.Name, "total_charged", w.TotalCharged)
	return outcomeDied
}

// laidToRest runs once the active row is gone: the account is released on a
// best-effort basis and the death is announced.
func (s *Scheduler) laidToRest(ctx context.Context, name, ref, flavor string) {
	if err := s.ledger.DeleteAccount(ctx, ref); err != nil {
		s.logger.Warn("delete reaped account", "wallet", name, "ref", ref, "error", err)
	}
	if _, err := s.bus.Publish(ctx, activity.Event{
		Type:       activity.TypeWalletDied,
		WalletName: name,
		Message:    fmt.Sprintf("%s was reaped — %s", name, flavor),
	}); err != nil {
		s.logger.Warn("publish wallet died", "wallet", name, "error", err)
	}
}

func (s *Scheduler) charge(ctx context.Context, w wallet.Wallet, now time.Time) outcome {
	if err := s.ledger.Transfer(ctx, w.AccountRef, s.cfg.ChargeAmount); err != nil {
		s.logger.Warn("charge wallet", "wallet", w.Name, "error", err)
		return outcomeFailed
	}
	if err := s.repo.RecordCharge(ctx, w.Name, now.UTC(), s.cfg.ChargeAmount); err != nil {
		s.logger.Error("record charge", "wallet", w.Name, "error", err)
	}
	return outcomeCharged
}

func (s *Scheduler) epilogue(ctx context.Context, report *Report) {
	if report.Charged > 0 {
		if _, err := s.bus.Publish(ctx, activity.Event{
			Type:       activity.TypeChargeCollected,
			AmountSats: report.Collected,
			Message:    fmt.Sprintf("%d sat collected from %d wallets", s.cfg.ChargeAmount, report.Charged),
		}); err != nil {
			s.logger.Warn("publish charge collected", "error", err)
		}
		if err := s.repo.AddCollected(ctx, report.Collected); err != nil {
			s.logger.Error("add collected total", "error", err)
		}
		if s.metrics != nil {
			s.metrics.SatsCollected.Add(float64(report.Collected))
		}
	}

	report.NextRunAt = s.nextRun(s.clock.Now())
	if err := s.repo.SetSchedule(ctx, report.StartedAt.UTC(), report.NextRunAt.UTC()); err != nil {
		s.logger.Error("persist billing schedule", "error", err)
	}

	if s.achievements != nil {
		unlocked, err := s.achievements.Evaluate(ctx)
		if err != nil {
			s.logger.Error("evaluate achievements", "error", err)
		}
		report.Unlocked = unlocked
	}

	s.arm(report.NextRunAt)
}

// nextRun aligns to the top of the next hour for intervals of a minute or
// more; shorter intervals are added as is.
func (s *Scheduler) nextRun(now time.Time) time.Time {
	if s.cfg.Interval < time.Minute {
		return now.Add(s.cfg.Interval)
	}
	top := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	return top.Add(time.Hour)
}

func (s *Scheduler) arm(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	delay := at.Sub(s.clock.Now())
	if delay < minDelay {
		delay = minDelay
	}
	s.nextRunAt = at
	s.timer = s.clock.AfterFunc(delay, s.trigger)
}

func (s *Scheduler) observeCycle(outcome string) {
	if s.metrics != nil {
		s.metrics.Cycles.WithLabelValues(outcome).Inc()
	}
}
