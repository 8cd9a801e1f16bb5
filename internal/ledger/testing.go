package ledger

// The helpers below only affect the in-memory ledger; they are no-ops for
// other implementations.

func asMemory(l Ledger) *inMemoryLedger {
	mem, _ := l.(*inMemoryLedger)
	return mem
}

// SeedBalance sets the balance of an account, creating it if needed.
func SeedBalance(l Ledger, ref string, amount int64) {
	if mem := asMemory(l); mem != nil {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[ref] = amount
	}
}

// FailBalance makes balance queries for ref return err. A nil err clears it.
func FailBalance(l Ledger, ref string, err error) {
	if mem := asMemory(l); mem != nil {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balanceErrs[ref] = err
	}
}

// FailTransfer makes transfers from ref return err. A nil err clears it.
func FailTransfer(l Ledger, ref string, err error) {
	if mem := asMemory(l); mem != nil {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.transferErrs[ref] = err
	}
}

// FailDelete makes every account deletion return err.
func FailDelete(l Ledger, err error) {
	if mem := asMemory(l); mem != nil {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.deleteErr = err
	}
}

// FailNode makes node-level queries return err.
func FailNode(l Ledger, err error) {
	if mem := asMemory(l); mem != nil {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.nodeErr = err
	}
}

// SetNode seeds node-level liquidity and balances.
func SetNode(l Ledger, liq Liquidity, balances NodeBalances) {
	if mem := asMemory(l); mem != nil {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.liquidity = liq
		mem.node = balances
	}
}

// Exists reports whether the in-memory ledger still holds ref.
func Exists(l Ledger, ref string) bool {
	mem := asMemory(l)
	if mem == nil {
		return false
	}
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	_, ok := mem.balances[ref]
	return ok
}

// Collected returns the total amount moved out of accounts by Transfer.
func Collected(l Ledger) int64 {
	mem := asMemory(l)
	if mem == nil {
		return 0
	}
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return mem.collected
}
