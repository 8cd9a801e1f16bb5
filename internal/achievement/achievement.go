// Package achievement unlocks service-wide milestones after each billing
// cycle.
package achievement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lncurl/lncurl/internal/activity"
	"github.com/lncurl/lncurl/internal/clock"
	"github.com/lncurl/lncurl/internal/wallet"
)

// Store is the part of the wallet repository the engine reads and writes.
type Store interface {
	Stats(ctx context.Context) (wallet.Stats, error)
	OldestCreatedBefore(ctx context.Context, cutoff time.Time) (wallet.Wallet, bool, error)
	AchievementExists(ctx context.Context, id string) (bool, error)
	InsertAchievement(ctx context.Context, a wallet.Achievement) (bool, error)
}

// Facts is what a rule is evaluated against. Stats is read once per
// evaluation; Store serves rules needing more.
type Facts struct {
	Stats wallet.Stats
	Store Store
	Now   time.Time
}

// Rule is one milestone. Check reports whether it is met and, when a single
// wallet earned it, that wallet's name.
type Rule struct {
	ID    string
	Title string
	Check func(ctx context.Context, f Facts) (met bool, walletName string, err error)
}

func atLeast(field func(wallet.Stats) int64, n int64) func(context.Context, Facts) (bool, string, error) {
	return func(_ context.Context, f Facts) (bool, string, error) {
		return field(f.Stats) >= n, "", nil
	}
}

func survived(days int) func(context.Context, Facts) (bool, string, error) {
	return func(ctx context.Context, f Facts) (bool, string, error) {
		w, ok, err := f.Store.OldestCreatedBefore(ctx, f.Now.Add(-time.Duration(days)*24*time.Hour))
		if err != nil || !ok {
			return false, "", err
		}
		return true, w.Name, nil
	}
}

func created(s wallet.Stats) int64 { return s.TotalWalletsCreated }
func peak(s wallet.Stats) int64    { return s.PeakConcurrentWallets }
func died(s wallet.Stats) int64    { return s.TotalWalletsDied }

// DefaultRules is the milestone list in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "wallets_100", Title: "Century Club — 100 wallets created", Check: atLeast(created, 100)},
		{ID: "wallets_1000", Title: "Millennial Madness — 1,000 wallets created", Check: atLeast(created, 1000)},
		{ID: "wallets_10000", Title: "Ten Thousand Souls — 10,000 wallets created", Check: atLeast(created, 10000)},
		{ID: "survive_7d", Title: "First Survivor — a wallet lived 7 days", Check: survived(7)},
		{ID: "survive_30d", Title: "Elder Emerges — a wallet lived 30 days", Check: survived(30)},
		{ID: "survive_100d", Title: "Immortal Rises — a wallet lived 100 days", Check: survived(100)},
		{ID: "survive_365d", Title: "Ascension — a wallet lived 365 days", Check: survived(365)},
		{ID: "peak_10", Title: "Getting Crowded — 10 concurrent wallets", Check: atLeast(peak, 10)},
		{ID: "peak_50", Title: "Bustling — 50 concurrent wallets", Check: atLeast(peak, 50)},
		{ID: "peak_100", Title: "Packed House — 100 concurrent wallets", Check: atLeast(peak, 100)},
		{ID: "deaths_100", Title: "Graveyard Filling — 100 wallets in the graveyard", Check: atLeast(died, 100)},
		{ID: "deaths_1000", Title: "Mass Grave — 1,000 wallets in the graveyard", Check: atLeast(died, 1000)},
	}
}

// Engine evaluates rules and records each unlock at most once.
type Engine struct {
	store  Store
	bus    *activity.Bus
	clock  clock.Clock
	logger *slog.Logger
	rules  []Rule
}

// NewEngine builds an engine over DefaultRules.
func NewEngine(store Store, bus *activity.Bus, clk clock.Clock, logger *slog.Logger) *Engine {
	return NewEngineWithRules(store, bus, clk, logger, DefaultRules())
}

// NewEngineWithRules builds an engine over a custom rule list.
func NewEngineWithRules(store Store, bus *activity.Bus, clk clock.Clock, logger *slog.Logger, rules []Rule) *Engine {
	if clk == nil {
		clk = clock.New()
	}
	return &Engine{store: store, bus: bus, clock: clk, logger: logger, rules: rules}
}

// Evaluate checks every rule not yet unlocked and returns the ones unlocked
// by this call. A failing rule is logged and skipped; the rest still run.
func (e *Engine) Evaluate(ctx context.Context) ([]wallet.Achievement, error) {
	stats, err := e.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("read stats: %w", err)
	}
	facts := Facts{Stats: stats, Store: e.store, Now: e.clock.Now()}

	var unlocked []wallet.Achievement
	for _, rule := range e.rules {
		a, ok, err := e.evaluate(ctx, rule, facts)
		if err != nil {
			e.logger.Warn("achievement check failed", "achievement", rule.ID, "error", err)
			continue
		}
		if ok {
			unlocked = append(unlocked, a)
		}
	}
	return unlocked, nil
}

func (e *Engine) evaluate(ctx context.Context, rule Rule, facts Facts) (wallet.Achievement, bool, error) {
	exists, err := e.store.AchievementExists(ctx, rule.ID)
	if err != nil || exists {
		return wallet.Achievement{}, false, err
	}
	met, walletName, err := rule.Check(ctx, facts)
	if err != nil || !met {
		return wallet.Achievement{}, false, err
	}

	a := wallet.Achievement{ID: rule.ID, Title: rule.Title, UnlockedAt: facts.Now.UTC(), WalletName: walletName}
	inserted, err := e.store.InsertAchievement(ctx, a)
	if err != nil || !inserted {
		return wallet.Achievement{}, false, err
	}

	if _, err := e.bus.Publish(ctx, activity.Event{
		Type:       activity.TypeAchievementUnlocked,
		WalletName: walletName,
		Message:    rule.Title,
	}); err != nil {
		e.logger.Warn("publish achievement", "achievement", rule.ID, "error", err)
	}
	e.logger.Info("achievement unlocked", "achievement", rule.ID, "wallet", walletName)
	return a, true, nil
}
