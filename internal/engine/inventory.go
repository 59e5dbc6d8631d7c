package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/giratech/dmtrader/internal/domain"
)

// InventoryAPI is the slice of the venue client the inventory flows need.
type InventoryAPI interface {
	UserInventory(ctx context.Context, gameID, currency string) ([]domain.InventoryItem, error)
	CreateOffer(ctx context.Context, assetID string, priceCents int64, currency string) (bool, error)
}

// InventorySync mirrors the venue-side inventory into the listings table and
// drives the listing flow for items waiting to go on sale.
type InventorySync struct {
	api      InventoryAPI
	store    domain.InventoryStore
	gameID   string
	currency string
	log      *slog.Logger
}

// NewInventorySync creates an InventorySync.
func NewInventorySync(api InventoryAPI, store domain.InventoryStore, gameID, currency string, log *slog.Logger) *InventorySync {
	return &InventorySync{
		api:      api,
		store:    store,
		gameID:   gameID,
		currency: currency,
		log:      log.With("component", "inventory"),
	}
}

// Resync pulls the venue inventory and upserts a listing row per item, keyed
// by the acquisition timestamp. Items with a matching purchase get the buy
// economics joined onto their listing so the listing flow knows the asking
// price.
func (s *InventorySync) Resync(ctx context.Context, acquiredAt time.Time) error {
	items, err := s.api.UserInventory(ctx, s.gameID, s.currency)
	if err != nil {
		return fmt.Errorf("engine: fetch inventory: %w", err)
	}

	for _, it := range items {
		key := domain.ItemKey(acquiredAt, it.ClassID)

		created, err := s.store.CreateListingIfAbsent(ctx, domain.Listing{
			Key:     key,
			Title:   it.Title,
			Status:  domain.ListingStatusInInventory,
			AssetID: it.AssetID,
		})
		if err != nil {
			s.log.Error("listing upsert failed", "key", key, "error", err)
			continue
		}
		if created {
			s.log.Info("listing tracked", "key", key, "title", it.Title)
		}

		bought, err := s.store.GetBought(ctx, key)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			s.log.Error("purchase lookup failed", "key", key, "error", err)
			continue
		}

		sell := int64(math.Round(bought.ProbSellPrice))
		if err := s.store.UpdateListingPrices(ctx, key, bought.BuyPrice, sell); err != nil {
			s.log.Error("listing price join failed", "key", key, "error", err)
		}
	}
	return nil
}

// ListPending puts every in-inventory listing with a known asking price up
// for sale. Listings without a price, and listings the venue refuses, are
// parked in the listing_error state; both tables track the transition.
func (s *InventorySync) ListPending(ctx context.Context) error {
	listings, err := s.store.ListListingsByStatus(ctx, domain.ListingStatusInInventory)
	if err != nil {
		return fmt.Errorf("engine: list pending: %w", err)
	}

	for _, l := range listings {
		if l.SellPrice == nil {
			s.log.Warn("listing has no asking price", "key", l.Key, "title", l.Title)
			s.setListingOutcome(ctx, l.Key, domain.ListingStatusListingError, domain.BoughtStatusListingError)
			continue
		}

		ok, err := s.api.CreateOffer(ctx, l.AssetID, *l.SellPrice, s.currency)
		if err != nil {
			s.log.Error("create offer failed", "key", l.Key, "error", err)
			continue
		}
		if ok {
			s.log.Info("listed", "key", l.Key, "title", l.Title, "price", *l.SellPrice)
			s.setListingOutcome(ctx, l.Key, domain.ListingStatusListed, domain.BoughtStatusListed)
		} else {
			s.log.Warn("venue refused listing", "key", l.Key, "title", l.Title)
			s.setListingOutcome(ctx, l.Key, domain.ListingStatusListingError, domain.BoughtStatusListingError)
		}
	}
	return nil
}

// setListingOutcome moves both tables to their post-listing states. A missing
// bought_items row is fine: the asset may predate the trader.
func (s *InventorySync) setListingOutcome(ctx context.Context, key string, ls domain.ListingStatus, bs domain.BoughtStatus) {
	if err := s.store.UpdateListingStatus(ctx, key, ls); err != nil {
		s.log.Error("listing status update failed", "key", key, "error", err)
	}
	if err := s.store.UpdateBoughtStatus(ctx, key, bs); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.log.Error("bought status update failed", "key", key, "error", err)
	}
}
