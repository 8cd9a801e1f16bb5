package wallet

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

type memoryRepository struct {
	mu           sync.RWMutex
	wallets      map[string]Wallet
	graves       map[string]Grave
	stats        Stats
	achievements map[string]Achievement

	buryErr   error
	removeErr error
}

// NewMemoryRepository constructs an in-memory repository for tests and
// local development.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		wallets:      make(map[string]Wallet),
		graves:       make(map[string]Grave),
		achievements: make(map[string]Achievement),
	}
}

func (r *memoryRepository) Create(_ context.Context, w Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.takenLocked(w.Name) {
		return ErrNameTaken
	}
	r.wallets[w.Name] = w
	r.stats.TotalWalletsCreated++
	if n := int64(len(r.wallets)); n > r.stats.PeakConcurrentWallets {
		r.stats.PeakConcurrentWallets = n
	}
	return nil
}

func (r *memoryRepository) takenLocked(name string) bool {
	_, active := r.wallets[name]
	_, buried := r.graves[name]
	return active || buried
}

func (r *memoryRepository) Get(_ context.Context, name string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[name]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return w, nil
}

func (r *memoryRepository) ListActive(_ context.Context) ([]Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(func(Wallet) bool { return true }, byAge), nil
}

func byAge(a, b Wallet) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.Name, b.Name)
}

func (r *memoryRepository) sortedLocked(keep func(Wallet) bool, order func(a, b Wallet) int) []Wallet {
	out := make([]Wallet, 0, len(r.wallets))
	for _, w := range r.wallets {
		if keep(w) {
			out = append(out, w)
		}
	}
	slices.SortFunc(out, order)
	return out
}

func (r *memoryRepository) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.wallets)), nil
}

func (r *memoryRepository) NameTaken(_ context.Context, name string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.takenLocked(name), nil
}

func (r *memoryRepository) UpdateBalance(_ context.Context, name string, balance int64) error {
	return r.update(name, func(w *Wallet) { w.LastKnownBalance = balance })
}

func (r *memoryRepository) RecordCharge(_ context.Context, name string, at time.Time, amount int64) error {
	return r.update(name, func(w *Wallet) {
		charged := at
		w.LastChargedAt = &charged
		w.TotalCharged += amount
		w.LastKnownBalance -= amount
	})
}

func (r *memoryRepository) update(name string, fn func(*Wallet)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[name]
	if !ok {
		return ErrNotFound
	}
	fn(&w)
	r.wallets[name] = w
	return nil
}

// Bury writes the grave first; the grave together with the died counter is
// the commit point, the active row is removed afterwards.
func (r *memoryRepository) Bury(_ context.Context, g Grave) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.buryErr != nil {
		return fmt.Errorf("insert grave: %w", r.buryErr)
	}
	if _, exists := r.graves[g.Name]; exists {
		return fmt.Errorf("insert grave: %w", ErrNameTaken)
	}
	r.graves[g.Name] = g
	r.stats.TotalWalletsDied++
	if r.removeErr != nil {
		return fmt.Errorf("delete wallet: %w", r.removeErr)
	}
	delete(r.wallets, g.Name)
	return nil
}

func (r *memoryRepository) GravedActive(_ context.Context) ([]Unburied, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Unburied
	for name, w := range r.wallets {
		if g, buried := r.graves[name]; buried {
			out = append(out, Unburied{Grave: g, AccountRef: w.AccountRef})
		}
	}
	slices.SortFunc(out, func(a, b Unburied) int { return cmp.Compare(a.Grave.Name, b.Grave.Name) })
	return out, nil
}

func (r *memoryRepository) RemoveActive(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.removeErr != nil {
		return r.removeErr
	}
	if _, ok := r.wallets[name]; !ok {
		return ErrNotFound
	}
	delete(r.wallets, name)
	return nil
}

func (r *memoryRepository) ListGraves(_ context.Context, sort GraveSort, offset, limit int) ([]Grave, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	graves := make([]Grave, 0, len(r.graves))
	for _, g := range r.graves {
		graves = append(graves, g)
	}
	slices.SortFunc(graves, func(a, b Grave) int {
		c := a.DeletedAt.Compare(b.DeletedAt)
		if sort != SortOldest {
			c = -c
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	total := int64(len(graves))
	if offset >= len(graves) {
		return []Grave{}, total, nil
	}
	graves = graves[offset:]
	if limit > 0 && limit < len(graves) {
		graves = graves[:limit]
	}
	return graves, total, nil
}

func (r *memoryRepository) AddFlower(_ context.Context, name string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.graves[name]
	if !ok {
		return 0, ErrNotFound
	}
	g.Flowers++
	r.graves[name] = g
	return g.Flowers, nil
}

func (r *memoryRepository) AtRisk(_ context.Context, maxBalance int64, limit int) ([]Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.sortedLocked(func(w Wallet) bool { return w.LastKnownBalance <= maxBalance }, func(a, b Wallet) int {
		if c := cmp.Compare(a.LastKnownBalance, b.LastKnownBalance); c != 0 {
			return c
		}
		return byAge(a, b)
	})
	return truncate(out, limit), nil
}

func (r *memoryRepository) Oldest(_ context.Context, limit int) ([]Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return truncate(r.sortedLocked(func(Wallet) bool { return true }, byAge), limit), nil
}

func (r *memoryRepository) OldestCreatedBefore(_ context.Context, cutoff time.Time) (Wallet, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.sortedLocked(func(w Wallet) bool { return !w.CreatedAt.After(cutoff) }, byAge)
	if len(out) == 0 {
		return Wallet{}, false, nil
	}
	return out[0], true, nil
}

func truncate(ws []Wallet, limit int) []Wallet {
	if limit > 0 && len(ws) > limit {
		return ws[:limit]
	}
	return ws
}

func (r *memoryRepository) Stats(_ context.Context) (Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats, nil
}

func (r *memoryRepository) AddCollected(_ context.Context, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.TotalChargesCollected += amount
	return nil
}

func (r *memoryRepository) SetSchedule(_ context.Context, last, next time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.LastChargeRunAt = &last
	r.stats.NextChargeRunAt = &next
	return nil
}

func (r *memoryRepository) AchievementExists(_ context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.achievements[id]
	return ok, nil
}

func (r *memoryRepository) InsertAchievement(_ context.Context, a Achievement) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.achievements[a.ID]; ok {
		return false, nil
	}
	r.achievements[a.ID] = a
	return true, nil
}

func (r *memoryRepository) Achievements(_ context.Context) ([]Achievement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Achievement, 0, len(r.achievements))
	for _, a := range r.achievements {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b Achievement) int {
		if c := b.UnlockedAt.Compare(a.UnlockedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}
