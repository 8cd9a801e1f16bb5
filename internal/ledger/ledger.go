package ledger

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNameConflict is returned by CreateAccount when the custody backend
	// rejects the requested name, typically because the lightning address is
	// already registered. Callers should retry with a different name.
	ErrNameConflict = errors.New("account name already taken")

	// ErrAccountNotFound indicates the referenced external account does not exist.
	ErrAccountNotFound = errors.New("account not found")
)

// RemoteError wraps a non-success response from the custody backend.
type RemoteError struct {
	Op     string
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: remote status %d: %s", e.Op, e.Status, e.Body)
}

// Account describes a freshly provisioned wallet-backed account.
type Account struct {
	Ref        string
	PairingURI string
	Address    string
}

// Liquidity summarises channel capacity on the shared node.
type Liquidity struct {
	Available int64 `json:"available"`
	Used      int64 `json:"used"`
	Channels  int   `json:"channels"`
}

// NodeBalances holds node-level spendable and on-chain totals in sats.
type NodeBalances struct {
	Spendable int64
	Onchain   int64
}

// NodeInfo identifies the shared node.
type NodeInfo struct {
	Alias  string
	Pubkey string
}

// Ledger is the contract of the external custody backend. Every call may
// fail with a remote error; callers treat failures as transient.
type Ledger interface {
	CreateAccount(ctx context.Context, name string) (Account, error)
	Balance(ctx context.Context, ref string) (int64, error)
	Transfer(ctx context.Context, ref string, amount int64) error
	DeleteAccount(ctx context.Context, ref string) error
	NodeLiquidity(ctx context.Context) (Liquidity, error)
	NodeBalances(ctx context.Context) (NodeBalances, error)
	NodeInfo(ctx context.Context) (NodeInfo, error)
}
