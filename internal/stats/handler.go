package stats

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lncurl/lncurl/internal/clock"
	"github.com/lncurl/lncurl/internal/ledger"
	"github.com/lncurl/lncurl/internal/wallet"
)

const (
	atRiskBalance = 1
	atRiskLimit   = 10
)

// Source is the part of the wallet repository the dashboard reads.
type Source interface {
	Stats(ctx context.Context) (wallet.Stats, error)
	Count(ctx context.Context) (int64, error)
	Achievements(ctx context.Context) ([]wallet.Achievement, error)
	AtRisk(ctx context.Context, maxBalance int64, limit int) ([]wallet.Wallet, error)
}

// Schedule reports the armed billing time; zero when nothing is armed.
type Schedule interface {
	NextRunAt() time.Time
}

// Handler serves /api/stats.
type Handler struct {
	source   Source
	schedule Schedule
	node     *Node
	window   *Window
	funds    *Funds
	clock    clock.Clock
	logger   *slog.Logger
}

// NewHandler wires the dashboard. schedule and funds may be nil.
func NewHandler(source Source, schedule Schedule, node *Node, window *Window, funds *Funds, clk clock.Clock, logger *slog.Logger) *Handler {
	if clk == nil {
		clk = clock.New()
	}
	return &Handler{
		source:   source,
		schedule: schedule,
		node:     node,
		window:   window,
		funds:    funds,
		clock:    clk,
		logger:   logger,
	}
}

type countsResponse struct {
	TotalWalletsCreated   int64 `json:"totalWalletsCreated"`
	TotalWalletsDied      int64 `json:"totalWalletsDied"`
	TotalChargesCollected int64 `json:"totalChargesCollected"`
	PeakConcurrentWallets int64 `json:"peakConcurrentWallets"`
	CurrentAlive          int64 `json:"currentAlive"`
}

type achievementResponse struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	UnlockedAt int64   `json:"unlockedAt"`
	WalletName *string `json:"walletName"`
}

type atRiskResponse struct {
	Name    string `json:"name"`
	Balance int64  `json:"balance"`
	Age     string `json:"age"`
}

type statsResponse struct {
	Stats          countsResponse        `json:"stats"`
	Achievements   []achievementResponse `json:"achievements"`
	NextChargeAt   *int64                `json:"nextChargeAt"`
	WalletsAtRisk  []atRiskResponse      `json:"walletsAtRisk"`
	TPS            float64               `json:"tps"`
	VPS            float64               `json:"vps"`
	Liquidity      ledger.Liquidity      `json:"liquidity"`
	TotalSpendable int64                 `json:"totalSpendable"`
	OnchainBalance int64                 `json:"onchainBalance"`
	NodeAlias      *string               `json:"nodeAlias"`
	NodePubkey     *string               `json:"nodePubkey"`
	CommunityFunds []FundEntry           `json:"communityFunds"`
	Bounties       []FundEntry           `json:"bounties"`
}

// Stats answers the dashboard snapshot. Node reads that fail fall back to
// the last good value or zeros; repository failures are errors.
func (h *Handler) Stats(c *fiber.Ctx) error {
	ctx := c.UserContext()
	now := h.clock.Now()

	stats, err := h.source.Stats(ctx)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	alive, err := h.source.Count(ctx)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	unlocked, err := h.source.Achievements(ctx)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	atRisk, err := h.source.AtRisk(ctx, atRiskBalance, atRiskLimit)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	resp := statsResponse{
		Stats: countsResponse{
			TotalWalletsCreated:   stats.TotalWalletsCreated,
			TotalWalletsDied:      stats.TotalWalletsDied,
			TotalChargesCollected: stats.TotalChargesCollected,
			PeakConcurrentWallets: stats.PeakConcurrentWallets,
			CurrentAlive:          alive,
		},
		Achievements:   make([]achievementResponse, 0, len(unlocked)),
		WalletsAtRisk:  make([]atRiskResponse, 0, len(atRisk)),
		NextChargeAt:   h.nextChargeAt(stats),
		CommunityFunds: []FundEntry{},
		Bounties:       []FundEntry{},
	}
	for _, a := range unlocked {
		entry := achievementResponse{ID: a.ID, Title: a.Title, UnlockedAt: a.UnlockedAt.Unix()}
		if a.WalletName != "" {
			name := a.WalletName
			entry.WalletName = &name
		}
		resp.Achievements = append(resp.Achievements, entry)
	}
	for _, w := range atRisk {
		resp.WalletsAtRisk = append(resp.WalletsAtRisk, atRiskResponse{
			Name:    w.Name,
			Balance: w.LastKnownBalance,
			Age:     wallet.FormatAge(now.Sub(w.CreatedAt)),
		})
	}

	if h.window != nil {
		resp.TPS = h.window.TPS()
		resp.VPS = h.window.VPS()
	}
	if h.node != nil {
		h.fillNode(ctx, &resp)
	}
	if h.funds != nil {
		snap := h.funds.Snapshot()
		resp.CommunityFunds = snap.CommunityFunds
		resp.Bounties = snap.Bounties
	}
	return c.Status(http.StatusOK).JSON(resp)
}

// nextChargeAt prefers the armed timer over the persisted value.
func (h *Handler) nextChargeAt(stats wallet.Stats) *int64 {
	if h.schedule != nil {
		if at := h.schedule.NextRunAt(); !at.IsZero() {
			unix := at.Unix()
			return &unix
		}
	}
	if stats.NextChargeRunAt != nil {
		unix := stats.NextChargeRunAt.Unix()
		return &unix
	}
	return nil
}

func (h *Handler) fillNode(ctx context.Context, resp *statsResponse) {
	liquidity, err := h.node.Liquidity.Get(ctx)
	if err != nil {
		h.logger.Warn("read node liquidity", "error", err)
	}
	resp.Liquidity = liquidity

	balances, err := h.node.Balances.Get(ctx)
	if err != nil {
		h.logger.Warn("read node balances", "error", err)
	}
	resp.TotalSpendable = balances.Spendable
	resp.OnchainBalance = balances.Onchain

	info, err := h.node.Info.Get(ctx)
	if err != nil {
		h.logger.Warn("read node info", "error", err)
	}
	if info.Alias != "" {
		resp.NodeAlias = &info.Alias
	}
	if info.Pubkey != "" {
		resp.NodePubkey = &info.Pubkey
	}
}
