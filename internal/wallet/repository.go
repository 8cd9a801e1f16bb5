package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no active wallet or grave has the name.
	ErrNotFound = errors.New("wallet not found")
	// ErrNameTaken is returned when a name exists in either store.
	ErrNameTaken = errors.New("wallet name already used")
)

// Repository persists active wallets, the graveyard, the aggregate stats row
// and unlocked achievements.
type Repository interface {
	// Create inserts w, bumps the created counter and the observed peak in
	// one unit.
	Create(ctx context.Context, w Wallet) error
	Get(ctx context.Context, name string) (Wallet, error)
	ListActive(ctx context.Context) ([]Wallet, error)
	Count(ctx context.Context) (int64, error)
	// NameTaken checks both the active wallets and the graveyard.
	NameTaken(ctx context.Context, name string) (bool, error)

	UpdateBalance(ctx context.Context, name string, balance int64) error
	// RecordCharge sets the charge time, adds amount to the running total and
	// subtracts it from the cached balance.
	RecordCharge(ctx context.Context, name string, at time.Time, amount int64) error
	// Bury writes the grave, removes the active row and bumps the died
	// counter. When the grave cannot be written the active row is kept.
	Bury(ctx context.Context, g Grave) error
	// GravedActive lists wallets present in both stores, ordered by name.
	GravedActive(ctx context.Context) ([]Unburied, error)
	RemoveActive(ctx context.Context, name string) error

	ListGraves(ctx context.Context, sort GraveSort, offset, limit int) ([]Grave, int64, error)
	AddFlower(ctx context.Context, name string) (int64, error)

	// AtRisk returns wallets whose cached balance is at most maxBalance,
	// lowest first.
	AtRisk(ctx context.Context, maxBalance int64, limit int) ([]Wallet, error)
	Oldest(ctx context.Context, limit int) ([]Wallet, error)
	// OldestCreatedBefore returns the oldest live wallet created at or
	// before cutoff.
	OldestCreatedBefore(ctx context.Context, cutoff time.Time) (Wallet, bool, error)

	Stats(ctx context.Context) (Stats, error)
	AddCollected(ctx context.Context, amount int64) error
	SetSchedule(ctx context.Context, last, next time.Time) error

	AchievementExists(ctx context.Context, id string) (bool, error)
	// InsertAchievement stores a if no record with its ID exists and reports
	// whether it did.
	InsertAchievement(ctx context.Context, a Achievement) (bool, error)
	Achievements(ctx context.Context) ([]Achievement, error)
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const walletColumns = `name, created_at, last_charged_at, total_charged, last_known_balance,
        COALESCE(epitaph, ''), account_ref, COALESCE(address, ''), COALESCE(creator_origin, '')`

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w           Wallet
		createdAt   time.Time
		lastCharged *time.Time
	)
	if err := row.Scan(&w.Name, &createdAt, &lastCharged, &w.TotalCharged, &w.LastKnownBalance,
		&w.Epitaph, &w.AccountRef, &w.Address, &w.CreatorOrigin); err != nil {
		return Wallet{}, err
	}
	w.CreatedAt = createdAt.UTC()
	if lastCharged != nil {
		t := lastCharged.UTC()
		w.LastChargedAt = &t
	}
	return w, nil
}

func (r *PostgresRepository) queryWallets(ctx context.Context, sql string, args ...any) ([]Wallet, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Wallet, error) {
		return scanWallet(row)
	})
}

// Create inserts a wallet record unless the name is already used anywhere.
func (r *PostgresRepository) Create(ctx context.Context, w Wallet) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	cmd, err := tx.Exec(ctx, `INSERT INTO wallets (name, created_at, total_charged, last_known_balance,
        epitaph, account_ref, address, creator_origin)
        SELECT $1, $2, 0, $3, NULLIF($4::text, ''), $5, NULLIF($6::text, ''), NULLIF($7::text, '')
        WHERE NOT EXISTS (SELECT 1 FROM graves WHERE name = $1)
        ON CONFLICT (name) DO NOTHING`,
		w.Name, w.CreatedAt.UTC(), w.LastKnownBalance, w.Epitaph, w.AccountRef, w.Address, w.CreatorOrigin)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNameTaken
	}

	if _, err := tx.Exec(ctx, `INSERT INTO service_stats (id, total_wallets_created) VALUES (1, 1)
        ON CONFLICT (id) DO UPDATE SET total_wallets_created = service_stats.total_wallets_created + 1`); err != nil {
		return fmt.Errorf("bump created: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE service_stats
        SET peak_concurrent_wallets = GREATEST(peak_concurrent_wallets, (SELECT count(*) FROM wallets))
        WHERE id = 1`); err != nil {
		return fmt.Errorf("update peak: %w", err)
	}

	return tx.Commit(ctx)
}

// Get fetches an active wallet by name.
func (r *PostgresRepository) Get(ctx context.Context, name string) (Wallet, error) {
	w, err := scanWallet(r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, ErrNotFound
	}
	return w, err
}

// ListActive returns every active wallet.
func (r *PostgresRepository) ListActive(ctx context.Context) ([]Wallet, error) {
	return r.queryWallets(ctx, `SELECT `+walletColumns+` FROM wallets ORDER BY created_at`)
}

// Count returns the number of active wallets.
func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM wallets`).Scan(&n)
	return n, err
}

// NameTaken reports whether name is active or buried.
func (r *PostgresRepository) NameTaken(ctx context.Context, name string) (bool, error) {
	var taken bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wallets WHERE name = $1)
        OR EXISTS (SELECT 1 FROM graves WHERE name = $1)`, name).Scan(&taken)
	return taken, err
}

// UpdateBalance stores the last balance read from the ledger.
func (r *PostgresRepository) UpdateBalance(ctx context.Context, name string, balance int64) error {
	return r.execOne(ctx, `UPDATE wallets SET last_known_balance = $2 WHERE name = $1`, name, balance)
}

// RecordCharge applies a successful charge to the wallet's bookkeeping.
func (r *PostgresRepository) RecordCharge(ctx context.Context, name string, at time.Time, amount int64) error {
	return r.execOne(ctx, `UPDATE wallets SET last_charged_at = $2,
        total_charged = total_charged + $3, last_known_balance = last_known_balance - $3
        WHERE name = $1`, name, at.UTC(), amount)
}

func (r *PostgresRepository) execOne(ctx context.Context, sql string, args ...any) error {
	cmd, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Bury moves a wallet into the graveyard in one transaction.
func (r *PostgresRepository) Bury(ctx context.Context, g Grave) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `INSERT INTO graves (name, created_at, deleted_at, cause_of_death,
        cause_of_death_flavor, total_charged, epitaph, flowers)
        VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7::text, ''), 0)`,
		g.Name, g.CreatedAt.UTC(), g.DeletedAt.UTC(), g.CauseOfDeath, g.Flavor, g.TotalCharged, g.Epitaph); err != nil {
		return fmt.Errorf("insert grave: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM wallets WHERE name = $1`, g.Name); err != nil {
		return fmt.Errorf("delete wallet: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO service_stats (id, total_wallets_died) VALUES (1, 1)
        ON CONFLICT (id) DO UPDATE SET total_wallets_died = service_stats.total_wallets_died + 1`); err != nil {
		return fmt.Errorf("bump died: %w", err)
	}
	return tx.Commit(ctx)
}

// GravedActive lists wallets that are both buried and still active.
func (r *PostgresRepository) GravedActive(ctx context.Context) ([]Unburied, error) {
	rows, err := r.db.Query(ctx, `SELECT w.account_ref, g.name, g.created_at, g.deleted_at,
        g.cause_of_death, COALESCE(g.cause_of_death_flavor, ''), g.total_charged,
        COALESCE(g.epitaph, ''), g.flowers
        FROM wallets w JOIN graves g ON g.name = w.name ORDER BY g.name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Unburied, error) {
		var u Unburied
		g := &u.Grave
		if err := row.Scan(&u.AccountRef, &g.Name, &g.CreatedAt, &g.DeletedAt, &g.CauseOfDeath,
			&g.Flavor, &g.TotalCharged, &g.Epitaph, &g.Flowers); err != nil {
			return Unburied{}, err
		}
		g.CreatedAt = g.CreatedAt.UTC()
		g.DeletedAt = g.DeletedAt.UTC()
		return u, nil
	})
}

// RemoveActive deletes the active row for name.
func (r *PostgresRepository) RemoveActive(ctx context.Context, name string) error {
	return r.execOne(ctx, `DELETE FROM wallets WHERE name = $1`, name)
}

// ListGraves pages through the graveyard and returns the total grave count.
func (r *PostgresRepository) ListGraves(ctx context.Context, sort GraveSort, offset, limit int) ([]Grave, int64, error) {
	order := "DESC"
	if sort == SortOldest {
		order = "ASC"
	}
	rows, err := r.db.Query(ctx, `SELECT name, created_at, deleted_at, cause_of_death,
        COALESCE(cause_of_death_flavor, ''), total_charged, COALESCE(epitaph, ''), flowers
        FROM graves ORDER BY deleted_at `+order+`, name OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	graves, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Grave, error) {
		var g Grave
		if err := row.Scan(&g.Name, &g.CreatedAt, &g.DeletedAt, &g.CauseOfDeath, &g.Flavor,
			&g.TotalCharged, &g.Epitaph, &g.Flowers); err != nil {
			return Grave{}, err
		}
		g.CreatedAt = g.CreatedAt.UTC()
		g.DeletedAt = g.DeletedAt.UTC()
		return g, nil
	})
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM graves`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return graves, total, nil
}

// AddFlower increments a grave's tribute counter and returns the new count.
func (r *PostgresRepository) AddFlower(ctx context.Context, name string) (int64, error) {
	var flowers int64
	err := r.db.QueryRow(ctx, `UPDATE graves SET flowers = flowers + 1 WHERE name = $1 RETURNING flowers`, name).Scan(&flowers)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return flowers, err
}

// AtRisk returns the poorest wallets by cached balance.
func (r *PostgresRepository) AtRisk(ctx context.Context, maxBalance int64, limit int) ([]Wallet, error) {
	return r.queryWallets(ctx, `SELECT `+walletColumns+` FROM wallets
        WHERE last_known_balance <= $1 ORDER BY last_known_balance, created_at LIMIT $2`, maxBalance, limit)
}

// Oldest returns the longest-lived active wallets.
func (r *PostgresRepository) Oldest(ctx context.Context, limit int) ([]Wallet, error) {
	return r.queryWallets(ctx, `SELECT `+walletColumns+` FROM wallets ORDER BY created_at, name LIMIT $1`, limit)
}

// OldestCreatedBefore finds the oldest active wallet created at or before cutoff.
func (r *PostgresRepository) OldestCreatedBefore(ctx context.Context, cutoff time.Time) (Wallet, bool, error) {
	w, err := scanWallet(r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets
        WHERE created_at <= $1 ORDER BY created_at, name LIMIT 1`, cutoff.UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, false, nil
	}
	if err != nil {
		return Wallet{}, false, err
	}
	return w, true, nil
}

// Stats reads the aggregate row; a missing row reads as zeros.
func (r *PostgresRepository) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := r.db.QueryRow(ctx, `SELECT total_wallets_created, total_wallets_died, total_charges_collected,
        peak_concurrent_wallets, last_charge_run_at, next_charge_run_at FROM service_stats WHERE id = 1`).
		Scan(&s.TotalWalletsCreated, &s.TotalWalletsDied, &s.TotalChargesCollected,
			&s.PeakConcurrentWallets, &s.LastChargeRunAt, &s.NextChargeRunAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Stats{}, nil
	}
	return s, err
}

// AddCollected adds amount to the collected total.
func (r *PostgresRepository) AddCollected(ctx context.Context, amount int64) error {
	_, err := r.db.Exec(ctx, `INSERT INTO service_stats (id, total_charges_collected) VALUES (1, $1)
        ON CONFLICT (id) DO UPDATE SET total_charges_collected = service_stats.total_charges_collected + $1`, amount)
	return err
}

// SetSchedule records the last and next billing run times.
func (r *PostgresRepository) SetSchedule(ctx context.Context, last, next time.Time) error {
	_, err := r.db.Exec(ctx, `INSERT INTO service_stats (id, last_charge_run_at, next_charge_run_at) VALUES (1, $1, $2)
        ON CONFLICT (id) DO UPDATE SET last_charge_run_at = $1, next_charge_run_at = $2`, last.UTC(), next.UTC())
	return err
}

// AchievementExists reports whether the rule has been unlocked.
func (r *PostgresRepository) AchievementExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM achievements WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// InsertAchievement records a once; later inserts for the same id are no-ops.
func (r *PostgresRepository) InsertAchievement(ctx context.Context, a Achievement) (bool, error) {
	cmd, err := r.db.Exec(ctx, `INSERT INTO achievements (id, title, unlocked_at, wallet_name)
        VALUES ($1, $2, $3, NULLIF($4::text, '')) ON CONFLICT (id) DO NOTHING`,
		a.ID, a.Title, a.UnlockedAt.UTC(), a.WalletName)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// Achievements lists unlocked achievements, most recent first.
func (r *PostgresRepository) Achievements(ctx context.Context) ([]Achievement, error) {
	rows, err := r.db.Query(ctx, `SELECT id, title, unlocked_at, COALESCE(wallet_name, '')
        FROM achievements ORDER BY unlocked_at DESC, id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Achievement, error) {
		var a Achievement
		if err := row.Scan(&a.ID, &a.Title, &a.UnlockedAt, &a.WalletName); err != nil {
			return Achievement{}, err
		}
		a.UnlockedAt = a.UnlockedAt.UTC()
		return a, nil
	})
}
