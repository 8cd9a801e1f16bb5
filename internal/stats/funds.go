package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lncurl/lncurl/internal/clock"
	"github.com/lncurl/lncurl/internal/ledger"
)

const (
	// FundRefreshInterval is how often fund balances are re-read.
	FundRefreshInterval = time.Minute

	GroupCommunity = "community"
	GroupBounty    = "bounty"
)

// Fund is one configured fundraising account.
type Fund struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	Group      string `json:"group"`
	Lud16      string `json:"lud16"`
	Ref        string `json:"ref"`
	TargetSats int64  `json:"targetSats"`
}

// FundEntry is a fund with its last known balance.
type FundEntry struct {
	Key         string  `json:"key"`
	Label       string  `json:"label"`
	Lud16       *string `json:"lud16"`
	BalanceSats int64   `json:"balanceSats"`
	TargetSats  int64   `json:"targetSats"`
}

// FundSnapshot splits the entries the way the dashboard shows them.
type FundSnapshot struct {
	CommunityFunds []FundEntry `json:"communityFunds"`
	Bounties       []FundEntry `json:"bounties"`
}

// ParseFunds decodes the FUNDS setting, a JSON array of funds. An empty
// string means no funds.
func ParseFunds(raw string) ([]Fund, error) {
	if raw == "" {
		return nil, nil
	}
	var funds []Fund
	if err := json.Unmarshal([]byte(raw), &funds); err != nil {
		return nil, fmt.Errorf("decode funds: %w", err)
	}
	seen := make(map[string]struct{}, len(funds))
	for i, f := range funds {
		if f.Key == "" {
			return nil, fmt.Errorf("fund %d: key is required", i)
		}
		if _, dup := seen[f.Key]; dup {
			return nil, fmt.Errorf("fund %q: duplicate key", f.Key)
		}
		seen[f.Key] = struct{}{}
		if f.Group != GroupBounty {
			funds[i].Group = GroupCommunity
		}
	}
	return funds, nil
}

// Funds polls fund balances in the background. Funds without an account ref
// are listed with a zero balance and never read.
type Funds struct {
	ledger ledger.Ledger
	funds  []Fund
	ticker *clock.Ticker
	errs   prometheus.Counter
	logger *slog.Logger

	mu       sync.RWMutex
	balances map[string]int64
}

// NewFunds prepares a refresher; errs may be nil.
func NewFunds(led ledger.Ledger, funds []Fund, clk clock.Clock, errs prometheus.Counter, logger *slog.Logger) *Funds {
	f := &Funds{
		ledger:   led,
		funds:    funds,
		errs:     errs,
		logger:   logger,
		balances: make(map[string]int64, len(funds)),
	}
	f.ticker = clock.NewTicker(clk, FundRefreshInterval, func() {
		f.Refresh(context.Background())
	})
	return f
}

// Start refreshes once, then every FundRefreshInterval.
func (f *Funds) Start() {
	f.ticker.Start(true)
}

// Stop cancels the pending refresh.
func (f *Funds) Stop() {
	f.ticker.Stop()
}

// Refresh reads every fund once. A failed read keeps the previous balance.
func (f *Funds) Refresh(ctx context.Context) {
	for _, fund := range f.funds {
		if fund.Ref == "" {
			continue
		}
		sats, err := f.ledger.Balance(ctx, fund.Ref)
		if err != nil {
			f.logger.Warn("refresh fund balance", "fund", fund.Key, "error", err)
			if f.errs != nil {
				f.errs.Inc()
			}
			continue
		}
		f.mu.Lock()
		f.balances[fund.Key] = sats
		f.mu.Unlock()
	}
}

// Snapshot returns every fund with its last known balance.
func (f *Funds) Snapshot() FundSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	snap := FundSnapshot{CommunityFunds: []FundEntry{}, Bounties: []FundEntry{}}
	for _, fund := range f.funds {
		entry := FundEntry{
			Key:         fund.Key,
			Label:       fund.Label,
			BalanceSats: f.balances[fund.Key],
			TargetSats:  fund.TargetSats,
		}
		if fund.Lud16 != "" {
			lud16 := fund.Lud16
			entry.Lud16 = &lud16
		}
		if fund.Group == GroupBounty {
			snap.Bounties = append(snap.Bounties, entry)
		} else {
			snap.CommunityFunds = append(snap.CommunityFunds, entry)
		}
	}
	return snap
}
