package achievement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lncurl/lncurl/internal/activity"
	"github.com/lncurl/lncurl/internal/clock"
	"github.com/lncurl/lncurl/internal/logging"
	"github.com/lncurl/lncurl/internal/wallet"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	repo   wallet.Repository
	bus    *activity.Bus
	clock  *clock.Fake
	engine *Engine
	events []activity.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{repo: wallet.NewMemoryRepository(), clock: clock.NewFake(epoch)}
	f.bus = activity.NewBus(activity.NewMemoryStore(0), f.clock, logging.Discard())
	f.bus.Subscribe(func(_ context.Context, e activity.Event) error {
		f.events = append(f.events, e)
		return nil
	})
	f.engine = NewEngine(f.repo, f.bus, f.clock, logging.Discard())
	return f
}

func TestEvaluateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wallet.SeedStats(f.repo, wallet.Stats{TotalWalletsCreated: 150, PeakConcurrentWallets: 12})

	first, err := f.engine.Evaluate(ctx)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(first) != 2 || first[0].ID != "wallets_100" || first[1].ID != "peak_10" {
		t.Fatalf("unexpected unlocks %+v", first)
	}

	second, err := f.engine.Evaluate(ctx)
	if err != nil {
		t.Fatalf("evaluate again: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected no new unlocks, got %+v", second)
	}

	stored, _ := f.repo.Achievements(ctx)
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored achievements, got %d", len(stored))
	}
	if len(f.events) != 2 || f.events[0].Message != "Century Club — 100 wallets created" {
		t.Fatalf("unexpected events %+v", f.events)
	}
}

func TestSurvivalCarriesOldestWallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, w := range []wallet.Wallet{
		{Name: "young", CreatedAt: epoch.Add(-2 * 24 * time.Hour), AccountRef: "a"},
		{Name: "elder", CreatedAt: epoch.Add(-40 * 24 * time.Hour), AccountRef: "b"},
		{Name: "middle", CreatedAt: epoch.Add(-10 * 24 * time.Hour), AccountRef: "c"},
	} {
		if err := f.repo.Create(ctx, w); err != nil {
			t.Fatalf("create %s: %v", w.Name, err)
		}
	}

	unlocked, err := f.engine.Evaluate(ctx)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	got := map[string]string{}
	for _, a := range unlocked {
		got[a.ID] = a.WalletName
	}
	if got["survive_7d"] != "elder" || got["survive_30d"] != "elder" {
		t.Fatalf("unexpected survival unlocks %+v", got)
	}
	if _, ok := got["survive_100d"]; ok {
		t.Fatalf("100 day survival should still be locked")
	}
	for _, e := range f.events {
		if e.Type != activity.TypeAchievementUnlocked || e.WalletName != "elder" {
			t.Fatalf("unexpected event %+v", e)
		}
	}
}

func TestFailingRuleDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t)
	rules := []Rule{
		{ID: "broken", Title: "Broken", Check: func(context.Context, Facts) (bool, string, error) {
			return false, "", errors.New("query failed")
		}},
		{ID: "always", Title: "Always", Check: func(context.Context, Facts) (bool, string, error) {
			return true, "", nil
		}},
	}
	engine := NewEngineWithRules(f.repo, f.bus, f.clock, logging.Discard(), rules)

	unlocked, err := engine.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(unlocked) != 1 || unlocked[0].ID != "always" {
		t.Fatalf("unexpected unlocks %+v", unlocked)
	}
}

func TestAlreadyInsertedElsewhereDoesNotPublish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.repo.InsertAchievement(ctx, wallet.Achievement{ID: "peak_10", Title: "x", UnlockedAt: epoch}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	wallet.SeedStats(f.repo, wallet.Stats{PeakConcurrentWallets: 20})

	unlocked, err := f.engine.Evaluate(ctx)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(unlocked) != 0 || len(f.events) != 0 {
		t.Fatalf("expected nothing new, got %+v and %d events", unlocked, len(f.events))
	}
}
