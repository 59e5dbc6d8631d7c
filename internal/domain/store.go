package domain

import (
	"context"
	"time"
)

// StatsStore persists per-title rolling aggregates.
type StatsStore interface {
	// Upsert inserts or fully replaces the aggregates for stats.Title.
	Upsert(ctx context.Context, stats TitleStats) error
	// Get returns the aggregates for a title, or ErrNotFound.
	Get(ctx context.Context, title string) (TitleStats, error)
	// ListStale returns titles whose last_update is before cutoff.
	ListStale(ctx context.Context, cutoff time.Time) ([]string, error)
	// SeedTitles inserts zero-valued rows for titles not yet tracked so the
	// next refresh cycle backfills them. Returns the number inserted.
	SeedTitles(ctx context.Context, titles []string) (int, error)
}

// InventoryStore persists purchases and venue-side listings.
type InventoryStore interface {
	InsertBought(ctx context.Context, item BoughtItem) error
	GetBought(ctx context.Context, key string) (BoughtItem, error)
	// ListBoughtBefore returns purchases made before cutoff, oldest first.
	ListBoughtBefore(ctx context.Context, cutoff time.Time) ([]BoughtItem, error)
	UpdateBoughtStatus(ctx context.Context, key string, status BoughtStatus) error
	// UpdateBoughtPricing rewrites the projected sell price and profit and
	// resets the purchase timestamp so the markdown ages from the reprice.
	UpdateBoughtPricing(ctx context.Context, key string, sellPrice, profit float64, ts time.Time) error

	// CreateListingIfAbsent inserts a listing row unless the key already
	// exists. Returns true when a row was created.
	CreateListingIfAbsent(ctx context.Context, l Listing) (bool, error)
	GetListing(ctx context.Context, key string) (Listing, error)
	ListListingsByStatus(ctx context.Context, status ListingStatus) ([]Listing, error)
	UpdateListingPrices(ctx context.Context, key string, buyPrice, sellPrice int64) error
	UpdateListingSellPrice(ctx context.Context, key string, sellPrice int64) error
	UpdateListingStatus(ctx context.Context, key string, status ListingStatus) error
}

// FeeStore persists the venue's reduced-fee schedule.
type FeeStore interface {
	// ReplaceAll swaps the stored schedule for the given snapshot; entries
	// absent from the snapshot are deleted.
	ReplaceAll(ctx context.Context, entries []FeeEntry) error
	// Fraction returns the fee fraction for a title, or DefaultFeeFraction
	// when the title has no reduced fee.
	Fraction(ctx context.Context, title string) (float64, error)
}

// SeenOffers deduplicates live offers by identifier. Implementations are
// bounded (TTL or capacity) so an unattended run cannot grow without limit.
type SeenOffers interface {
	// Seen reports whether the offer id was already marked, marking it as a
	// side effect when it was not.
	Seen(ctx context.Context, offerID string) (bool, error)
}
