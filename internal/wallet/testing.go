package wallet

// The helpers below only affect the in-memory repository; they are no-ops for
// other implementations.

func asMemory(r Repository) *memoryRepository {
	mem, _ := r.(*memoryRepository)
	return mem
}

// FailBury makes grave writes fail with err. A nil err clears it.
func FailBury(r Repository, err error) {
	if mem := asMemory(r); mem != nil {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.buryErr = err
	}
}

// FailRemove makes active-row deletion fail with err, including the one
// inside Bury after the grave has been written. A nil err clears it.
func FailRemove(r Repository, err error) {
	if mem := asMemory(r); mem != nil {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.removeErr = err
	}
}

// SeedGrave stores g without touching the active wallets or the counters.
func SeedGrave(r Repository, g Grave) {
	if mem := asMemory(r); mem != nil {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.graves[g.Name] = g
	}
}

// SeedStats overwrites the aggregate counters.
func SeedStats(r Repository, s Stats) {
	if mem := asMemory(r); mem != nil {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.stats = s
	}
}
