package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/giratech/dmtrader/internal/domain"
)

// StatsStore implements domain.StatsStore using PostgreSQL.
type StatsStore struct {
	pool *pgxpool.Pool
}

var _ domain.StatsStore = (*StatsStore)(nil)

// NewStatsStore creates a StatsStore backed by the given connection pool.
func NewStatsStore(pool *pgxpool.Pool) *StatsStore {
	return &StatsStore{pool: pool}
}

// Upsert inserts or fully replaces the aggregates for stats.Title.
func (s *StatsStore) Upsert(ctx context.Context, stats domain.TitleStats) error {
	const query = `
		INSERT INTO sales (
			title, last_update, avg_min, avg_week, avg_month,
			avg_all_time, sales_month, avg_last_20_sales, offer_prices
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (title) DO UPDATE SET
			last_update = EXCLUDED.last_update,
			avg_min = EXCLUDED.avg_min,
			avg_week = EXCLUDED.avg_week,
			avg_month = EXCLUDED.avg_month,
			avg_all_time = EXCLUDED.avg_all_time,
			sales_month = EXCLUDED.sales_month,
			avg_last_20_sales = EXCLUDED.avg_last_20_sales,
			offer_prices = EXCLUDED.offer_prices`

	_, err := s.pool.Exec(ctx, query,
		stats.Title, stats.LastUpdate, stats.AvgMin, stats.AvgWeek,
		stats.AvgMonth, stats.AvgAllTime, stats.SalesMonth, stats.AvgLast20,
		domain.EncodeOfferPrices(stats.OfferPrices),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert stats %q: %w", stats.Title, err)
	}
	return nil
}

// Get returns the aggregates for a title, or domain.ErrNotFound.
func (s *StatsStore) Get(ctx context.Context, title string) (domain.TitleStats, error) {
	const query = `
		SELECT title, last_update, avg_min, avg_week, avg_month,
			avg_all_time, sales_month, avg_last_20_sales, offer_prices
		FROM sales WHERE title = $1`

	var (
		st     domain.TitleStats
		prices string
	)
	err := s.pool.QueryRow(ctx, query, title).Scan(
		&st.Title, &st.LastUpdate, &st.AvgMin, &st.AvgWeek, &st.AvgMonth,
		&st.AvgAllTime, &st.SalesMonth, &st.AvgLast20, &prices,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TitleStats{}, fmt.Errorf("postgres: stats %q: %w", title, domain.ErrNotFound)
	}
	if err != nil {
		return domain.TitleStats{}, fmt.Errorf("postgres: get stats %q: %w", title, err)
	}
	st.OfferPrices = domain.DecodeOfferPrices(prices)
	return st, nil
}

// ListStale returns titles whose last_update is before cutoff, oldest first.
func (s *StatsStore) ListStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT title FROM sales WHERE last_update < $1 ORDER BY last_update ASC`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stale stats: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("postgres: scan stale title: %w", err)
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// SeedTitles inserts zero-valued rows for titles not yet tracked. The epoch
// last_update makes them maximally stale so the next cycle refreshes them
// first. Returns the number of rows created.
func (s *StatsStore) SeedTitles(ctx context.Context, titles []string) (int, error) {
	if len(titles) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO sales (title, last_update)
		VALUES ($1, to_timestamp(0))
		ON CONFLICT (title) DO NOTHING`
	for _, t := range titles {
		batch.Queue(query, t)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for i := range titles {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("postgres: seed title %d: %w", i, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}
