package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giratech/dmtrader/internal/domain"
)

func markdownConfig() MarkdownConfig {
	return MarkdownConfig{
		MinAge:             7 * 24 * time.Hour,
		MinCompetingOffers: 4,
		StepFactor:         0.95,
		MinMarkup:          1.15,
		FloorMarginPercent: 15,
	}
}

func seedAgedListing(t *testing.T, inv *fakeInventory, key string, buy, sell int64, age time.Duration, now time.Time) {
	t.Helper()
	require.NoError(t, inv.InsertBought(context.Background(), domain.BoughtItem{
		Key:           key,
		Title:         "AK-47 | Redline",
		PurchasedAt:   now.Add(-age),
		BuyPrice:      buy,
		ProbSellPrice: float64(sell),
		Status:        domain.BoughtStatusListed,
	}))
	_, err := inv.CreateListingIfAbsent(context.Background(), domain.Listing{
		Key:    key,
		Title:  "AK-47 | Redline",
		Status: domain.ListingStatusListed,
	})
	require.NoError(t, err)
	require.NoError(t, inv.UpdateListingPrices(context.Background(), key, buy, sell))
}

func TestMarkdownRepricesAgedListing(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	inv := newFakeInventory()
	seedAgedListing(t, inv, "k1", 8000, 10000, 8*24*time.Hour, now)

	stats := &fakeStats{stats: map[string]domain.TitleStats{
		// Four live offers undercut the current ask.
		"AK-47 | Redline": {OfferPrices: []int64{9500, 9600, 9700, 9800, 10500}},
	}}

	m := NewMarkdowner(inv, stats, &fakeFees{}, nil, markdownConfig(), testLog())
	m.now = func() time.Time { return now }

	marked, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	// One step down lands at 9500 but yields only a 6.9% margin over the
	// 8000 buy price, so the ask is clamped to the 15% markup floor.
	l, err := inv.GetListing(context.Background(), "k1")
	require.NoError(t, err)
	require.NotNil(t, l.SellPrice)
	assert.EqualValues(t, 9200, *l.SellPrice)

	item, err := inv.GetBought(context.Background(), "k1")
	require.NoError(t, err)
	assert.InDelta(t, 9200, item.ProbSellPrice, 1e-9)
	assert.InDelta(t, 9200*0.9-8000, item.ProbProfit, 1e-9)
	assert.Equal(t, now, item.PurchasedAt, "the reprice restarts the aging clock")
}

func TestMarkdownKeepsStepWhenMarginHolds(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	inv := newFakeInventory()
	seedAgedListing(t, inv, "k1", 7000, 10000, 8*24*time.Hour, now)

	stats := &fakeStats{stats: map[string]domain.TitleStats{
		"AK-47 | Redline": {OfferPrices: []int64{9500, 9600, 9700, 9800}},
	}}

	m := NewMarkdowner(inv, stats, &fakeFees{}, nil, markdownConfig(), testLog())
	m.now = func() time.Time { return now }

	marked, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	// 9500 * 0.9 - 7000 = 1550, a 22% margin, so the step price sticks.
	l, err := inv.GetListing(context.Background(), "k1")
	require.NoError(t, err)
	require.NotNil(t, l.SellPrice)
	assert.EqualValues(t, 9500, *l.SellPrice)
}

func TestMarkdownSkipsWithFewCompetingOffers(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	inv := newFakeInventory()
	seedAgedListing(t, inv, "k1", 8000, 10000, 8*24*time.Hour, now)

	stats := &fakeStats{stats: map[string]domain.TitleStats{
		"AK-47 | Redline": {OfferPrices: []int64{9500, 9600, 9700, 10500}},
	}}

	m := NewMarkdowner(inv, stats, &fakeFees{}, nil, markdownConfig(), testLog())
	m.now = func() time.Time { return now }

	marked, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, marked)

	l, err := inv.GetListing(context.Background(), "k1")
	require.NoError(t, err)
	require.NotNil(t, l.SellPrice)
	assert.EqualValues(t, 10000, *l.SellPrice)
}

func TestMarkdownIgnoresFreshListings(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	inv := newFakeInventory()
	seedAgedListing(t, inv, "k1", 8000, 10000, 2*24*time.Hour, now)

	stats := &fakeStats{stats: map[string]domain.TitleStats{
		"AK-47 | Redline": {OfferPrices: []int64{9500, 9600, 9700, 9800}},
	}}

	m := NewMarkdowner(inv, stats, &fakeFees{}, nil, markdownConfig(), testLog())
	m.now = func() time.Time { return now }

	marked, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, marked)
}
