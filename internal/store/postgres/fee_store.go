package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/giratech/dmtrader/internal/domain"
)

// FeeStore implements domain.FeeStore using PostgreSQL.
type FeeStore struct {
	pool *pgxpool.Pool
}

var _ domain.FeeStore = (*FeeStore)(nil)

// NewFeeStore creates a FeeStore backed by the given connection pool.
func NewFeeStore(pool *pgxpool.Pool) *FeeStore {
	return &FeeStore{pool: pool}
}

// ReplaceAll swaps the stored schedule for the given snapshot inside one
// transaction: titles absent from the snapshot are deleted, the rest
// upserted. An empty snapshot clears the table.
func (s *FeeStore) ReplaceAll(ctx context.Context, entries []domain.FeeEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin fee replace: %w", err)
	}
	defer tx.Rollback(ctx)

	titles := make([]string, len(entries))
	for i, e := range entries {
		titles[i] = e.Title
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM reduced_fees WHERE NOT (title = ANY($1))`, titles,
	); err != nil {
		return fmt.Errorf("postgres: delete stale fees: %w", err)
	}

	const query = `
		INSERT INTO reduced_fees (title, fraction, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (title) DO UPDATE SET
			fraction = EXCLUDED.fraction,
			expires_at = EXCLUDED.expires_at`
	for _, e := range entries {
		if _, err := tx.Exec(ctx, query, e.Title, e.Fraction, e.ExpiresAt); err != nil {
			return fmt.Errorf("postgres: upsert fee %q: %w", e.Title, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit fee replace: %w", err)
	}
	return nil
}

// Fraction returns the fee fraction for a title, falling back to the venue's
// standard fee when no reduced entry exists.
func (s *FeeStore) Fraction(ctx context.Context, title string) (float64, error) {
	var fraction float64
	err := s.pool.QueryRow(ctx,
		`SELECT fraction FROM reduced_fees WHERE title = $1`, title,
	).Scan(&fraction)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DefaultFeeFraction, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: get fee %q: %w", title, err)
	}
	return fraction, nil
}
