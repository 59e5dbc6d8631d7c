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

// InventoryStore implements domain.InventoryStore using PostgreSQL.
type InventoryStore struct {
	pool *pgxpool.Pool
}

var _ domain.InventoryStore = (*InventoryStore)(nil)

// NewInventoryStore creates an InventoryStore backed by the given pool.
func NewInventoryStore(pool *pgxpool.Pool) *InventoryStore {
	return &InventoryStore{pool: pool}
}

// InsertBought records a confirmed purchase.
func (s *InventoryStore) InsertBought(ctx context.Context, item domain.BoughtItem) error {
	const query = `
		INSERT INTO bought_items (
			timed_class_id, title, purchased_at, buy_price,
			prob_sell_price, prob_profit, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		item.Key, item.Title, item.PurchasedAt, item.BuyPrice,
		item.ProbSellPrice, item.ProbProfit, string(item.Status),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert bought item %q: %w", item.Key, err)
	}
	return nil
}

// GetBought returns a purchase by key, or domain.ErrNotFound.
func (s *InventoryStore) GetBought(ctx context.Context, key string) (domain.BoughtItem, error) {
	const query = `
		SELECT timed_class_id, title, purchased_at, buy_price,
			prob_sell_price, prob_profit, status
		FROM bought_items WHERE timed_class_id = $1`

	var item domain.BoughtItem
	err := s.pool.QueryRow(ctx, query, key).Scan(
		&item.Key, &item.Title, &item.PurchasedAt, &item.BuyPrice,
		&item.ProbSellPrice, &item.ProbProfit, &item.Status,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BoughtItem{}, fmt.Errorf("postgres: bought item %q: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return domain.BoughtItem{}, fmt.Errorf("postgres: get bought item %q: %w", key, err)
	}
	return item, nil
}

// ListBoughtBefore returns purchases made before cutoff, oldest first.
func (s *InventoryStore) ListBoughtBefore(ctx context.Context, cutoff time.Time) ([]domain.BoughtItem, error) {
	const query = `
		SELECT timed_class_id, title, purchased_at, buy_price,
			prob_sell_price, prob_profit, status
		FROM bought_items WHERE purchased_at < $1 ORDER BY purchased_at ASC`

	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bought before: %w", err)
	}
	defer rows.Close()

	var items []domain.BoughtItem
	for rows.Next() {
		var item domain.BoughtItem
		if err := rows.Scan(
			&item.Key, &item.Title, &item.PurchasedAt, &item.BuyPrice,
			&item.ProbSellPrice, &item.ProbProfit, &item.Status,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan bought item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateBoughtStatus moves a purchase to a new lifecycle state.
func (s *InventoryStore) UpdateBoughtStatus(ctx context.Context, key string, status domain.BoughtStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bought_items SET status = $1 WHERE timed_class_id = $2`,
		string(status), key,
	)
	if err != nil {
		return fmt.Errorf("postgres: update bought status %q: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: bought item %q: %w", key, domain.ErrNotFound)
	}
	return nil
}

// UpdateBoughtPricing rewrites the projected sell price and profit and resets
// the purchase timestamp so the markdown pass ages from the reprice.
func (s *InventoryStore) UpdateBoughtPricing(ctx context.Context, key string, sellPrice, profit float64, ts time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bought_items
		SET prob_sell_price = $1, prob_profit = $2, purchased_at = $3
		WHERE timed_class_id = $4`,
		sellPrice, profit, ts, key,
	)
	if err != nil {
		return fmt.Errorf("postgres: update bought pricing %q: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: bought item %q: %w", key, domain.ErrNotFound)
	}
	return nil
}

// CreateListingIfAbsent inserts a listing row unless the key already exists.
// Returns true when a row was created.
func (s *InventoryStore) CreateListingIfAbsent(ctx context.Context, l domain.Listing) (bool, error) {
	const query = `
		INSERT INTO listings (timed_class_id, title, status, buy_price, sell_price, asset_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (timed_class_id) DO NOTHING`

	status := l.Status
	if status == "" {
		status = domain.ListingStatusInInventory
	}

	tag, err := s.pool.Exec(ctx, query,
		l.Key, l.Title, string(status), l.BuyPrice, l.SellPrice, l.AssetID,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: create listing %q: %w", l.Key, err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetListing returns a listing by key, or domain.ErrNotFound.
func (s *InventoryStore) GetListing(ctx context.Context, key string) (domain.Listing, error) {
	const query = `
		SELECT timed_class_id, title, status, buy_price, sell_price, asset_id
		FROM listings WHERE timed_class_id = $1`

	var l domain.Listing
	err := s.pool.QueryRow(ctx, query, key).Scan(
		&l.Key, &l.Title, &l.Status, &l.BuyPrice, &l.SellPrice, &l.AssetID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Listing{}, fmt.Errorf("postgres: listing %q: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Listing{}, fmt.Errorf("postgres: get listing %q: %w", key, err)
	}
	return l, nil
}

// ListListingsByStatus returns every listing in the given state.
func (s *InventoryStore) ListListingsByStatus(ctx context.Context, status domain.ListingStatus) ([]domain.Listing, error) {
	const query = `
		SELECT timed_class_id, title, status, buy_price, sell_price, asset_id
		FROM listings WHERE status = $1 ORDER BY timed_class_id`

	rows, err := s.pool.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings by status: %w", err)
	}
	defer rows.Close()

	var listings []domain.Listing
	for rows.Next() {
		var l domain.Listing
		if err := rows.Scan(
			&l.Key, &l.Title, &l.Status, &l.BuyPrice, &l.SellPrice, &l.AssetID,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// UpdateListingPrices joins the purchase economics onto a listing row.
func (s *InventoryStore) UpdateListingPrices(ctx context.Context, key string, buyPrice, sellPrice int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET buy_price = $1, sell_price = $2 WHERE timed_class_id = $3`,
		buyPrice, sellPrice, key,
	)
	if err != nil {
		return fmt.Errorf("postgres: update listing prices %q: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: listing %q: %w", key, domain.ErrNotFound)
	}
	return nil
}

// UpdateListingSellPrice rewrites only the asking price.
func (s *InventoryStore) UpdateListingSellPrice(ctx context.Context, key string, sellPrice int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET sell_price = $1 WHERE timed_class_id = $2`,
		sellPrice, key,
	)
	if err != nil {
		return fmt.Errorf("postgres: update listing sell price %q: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: listing %q: %w", key, domain.ErrNotFound)
	}
	return nil
}

// UpdateListingStatus moves a listing to a new lifecycle state.
func (s *InventoryStore) UpdateListingStatus(ctx context.Context, key string, status domain.ListingStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET status = $1 WHERE timed_class_id = $2`,
		string(status), key,
	)
	if err != nil {
		return fmt.Errorf("postgres: update listing status %q: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: listing %q: %w", key, domain.ErrNotFound)
	}
	return nil
}
