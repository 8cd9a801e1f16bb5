package stats

import (
	"time"

	"github.com/lncurl/lncurl/internal/clock"
	"github.com/lncurl/lncurl/internal/ledger"
)

const (
	LiquidityTTL = 30 * time.Second
	BalancesTTL  = 30 * time.Second
	InfoTTL      = time.Hour
)

// Node memoizes the node-level reads of the ledger.
type Node struct {
	Liquidity *Memo[ledger.Liquidity]
	Balances  *Memo[ledger.NodeBalances]
	Info      *Memo[ledger.NodeInfo]
}

// NewNode wires the memos over led with the default TTLs.
func NewNode(led ledger.Ledger, clk clock.Clock) *Node {
	return &Node{
		Liquidity: NewMemo(clk, LiquidityTTL, led.NodeLiquidity),
		Balances:  NewMemo(clk, BalancesTTL, led.NodeBalances),
		Info:      NewMemo(clk, InfoTTL, led.NodeInfo),
	}
}
