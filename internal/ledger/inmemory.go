package ledger

import (
	"context"
	"fmt"
	"sync"
)

type inMemoryLedger struct {
	mu           sync.RWMutex
	nextID       int
	balances     map[string]int64
	addresses    map[string]string
	collected    int64
	balanceErrs  map[string]error
	transferErrs map[string]error
	deleteErr    error
	liquidity    Liquidity
	node         NodeBalances
	info         NodeInfo
	nodeErr      error
}

// NewInMemory creates a concurrency-safe in-memory custody backend useful for
// unit tests and local development.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		balances:     make(map[string]int64),
		addresses:    make(map[string]string),
		balanceErrs:  make(map[string]error),
		transferErrs: make(map[string]error),
		info:         NodeInfo{Alias: "memory", Pubkey: "00"},
	}
}

func (l *inMemoryLedger) CreateAccount(_ context.Context, name string) (Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, taken := range l.addresses {
		if taken == name {
			return Account{}, ErrNameConflict
		}
	}
	l.nextID++
	ref := fmt.Sprintf("app-%d", l.nextID)
	l.balances[ref] = 0
	l.addresses[ref] = name
	return Account{
		Ref:        ref,
		PairingURI: fmt.Sprintf("nostr+walletconnect://memory?app=%s&lud16=%s@memory", ref, name),
		Address:    name + "@memory",
	}, nil
}

func (l *inMemoryLedger) Balance(_ context.Context, ref string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if err := l.balanceErrs[ref]; err != nil {
		return 0, err
	}
	balance, exists := l.balances[ref]
	if !exists {
		return 0, ErrAccountNotFound
	}
	return balance, nil
}

func (l *inMemoryLedger) Transfer(_ context.Context, ref string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.transferErrs[ref]; err != nil {
		return err
	}
	balance, ok := l.balances[ref]
	if !ok {
		return ErrAccountNotFound
	}
	if balance < amount {
		return &RemoteError{Op: "transfer", Status: 400, Body: "insufficient balance"}
	}
	l.balances[ref] = balance - amount
	l.collected += amount
	return nil
}

func (l *inMemoryLedger) DeleteAccount(_ context.Context, ref string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.deleteErr != nil {
		return l.deleteErr
	}
	if _, ok := l.balances[ref]; !ok {
		return ErrAccountNotFound
	}
	delete(l.balances, ref)
	delete(l.addresses, ref)
	return nil
}

func (l *inMemoryLedger) NodeLiquidity(_ context.Context) (Liquidity, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.nodeErr != nil {
		return Liquidity{}, l.nodeErr
	}
	return l.liquidity, nil
}

func (l *inMemoryLedger) NodeBalances(_ context.Context) (NodeBalances, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.nodeErr != nil {
		return NodeBalances{}, l.nodeErr
	}
	return l.node, nil
}

func (l *inMemoryLedger) NodeInfo(_ context.Context) (NodeInfo, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.nodeErr != nil {
		return NodeInfo{}, l.nodeErr
	}
	return l.info, nil
}
