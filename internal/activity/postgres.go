package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the activity log in the activities table.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a Postgres-backed activity store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append inserts the event and returns it with its serial id.
func (s *PostgresStore) Append(ctx context.Context, e Event) (Event, error) {
	row := s.db.QueryRow(ctx, `INSERT INTO activities (type, wallet_name, amount_sats, message, created_at)
        VALUES ($1, NULLIF($2::text, ''), NULLIF($3::bigint, 0), NULLIF($4::text, ''), $5)
        RETURNING id`, string(e.Type), e.WalletName, e.AmountSats, e.Message, e.CreatedAt.UTC())
	if err := row.Scan(&e.ID); err != nil {
		return Event{}, fmt.Errorf("insert activity: %w", err)
	}
	return e, nil
}

// Recent returns the newest events first.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `SELECT id, type, COALESCE(wallet_name, ''), COALESCE(amount_sats, 0),
        COALESCE(message, ''), created_at
        FROM activities ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Event, error) {
		var (
			e         Event
			kind      string
			createdAt time.Time
		)
		if err := row.Scan(&e.ID, &kind, &e.WalletName, &e.AmountSats, &e.Message, &createdAt); err != nil {
			return Event{}, err
		}
		e.Type = Type(kind)
		e.CreatedAt = createdAt.UTC()
		return e, nil
	})
}

// Prune deletes all but the newest keep events.
func (s *PostgresStore) Prune(ctx context.Context, keep int) (int64, error) {
	cmd, err := s.db.Exec(ctx, `DELETE FROM activities WHERE id <= (
        SELECT id FROM activities ORDER BY id DESC OFFSET $1 LIMIT 1)`, keep)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
