package domain

import (
	"fmt"
	"time"
)

// BoughtStatus is the lifecycle state of a purchased item.
type BoughtStatus string

const (
	BoughtStatusBought       BoughtStatus = "bought"
	BoughtStatusListed       BoughtStatus = "listed"
	BoughtStatusListingError BoughtStatus = "listing_error"
)

// ListingStatus is the lifecycle state of an inventory listing.
type ListingStatus string

const (
	ListingStatusInInventory  ListingStatus = "in_inventory"
	ListingStatusListed       ListingStatus = "listed"
	ListingStatusListingError ListingStatus = "listing_error"
)

// ItemKey builds the composite acquisition key shared by bought_items and
// listings rows: purchase timestamp joined with the item class identifier.
func ItemKey(ts time.Time, classID string) string {
	return fmt.Sprintf("%s_%s", ts.UTC().Format("2006-01-02 15:04:05"), classID)
}

// BoughtItem is a successful purchase awaiting resale. Rows are created by
// the decision engine on a confirmed purchase and mutated by the listing and
// markdown flows; they are never deleted automatically.
type BoughtItem struct {
	Key           string // ItemKey(PurchasedAt, ClassID)
	Title         string
	PurchasedAt   time.Time
	BuyPrice      int64   // cents
	ProbSellPrice float64 // cents
	ProbProfit    float64 // cents
	Status        BoughtStatus
}

// Listing is an inventory asset observed venue-side. BuyPrice and SellPrice
// are nil until the matching BoughtItem row has been found.
type Listing struct {
	Key       string
	Title     string
	Status    ListingStatus
	BuyPrice  *int64 // cents
	SellPrice *int64 // cents
	AssetID   string
}

// FeeEntry is one row of the venue's reduced-fee schedule. The schedule is
// fully replaced on each refresh; titles absent from the schedule pay
// DefaultFeeFraction.
type FeeEntry struct {
	Title     string
	Fraction  float64
	ExpiresAt int64 // unix seconds
}

// DefaultFeeFraction is the venue's standard sale fee.
const DefaultFeeFraction = 0.10
