package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/giratech/dmtrader/internal/domain"
	"github.com/giratech/dmtrader/internal/notify"
)

// MarkdownConfig tunes the aging-inventory reprice pass.
type MarkdownConfig struct {
	MinAge             time.Duration // purchase age before an item qualifies
	MinCompetingOffers int           // cheaper live offers needed to trigger
	StepFactor         float64       // e.g. 0.95 cuts the ask by 5%
	MinMarkup          float64       // e.g. 1.15 floors the ask at cost +15%
	FloorMarginPercent float64       // margin below which the ask is clamped
}

// Markdowner walks aged, still-unsold purchases and steps their asking price
// down toward the profit floor when the market has undercut them.
type Markdowner struct {
	inv      domain.InventoryStore
	stats    domain.StatsStore
	fees     domain.FeeStore
	notifier Notifier
	cfg      MarkdownConfig
	log      *slog.Logger
	now      func() time.Time
}

// NewMarkdowner creates a Markdowner. notifier may be nil.
func NewMarkdowner(inv domain.InventoryStore, stats domain.StatsStore, fees domain.FeeStore,
	notifier Notifier, cfg MarkdownConfig, log *slog.Logger) *Markdowner {
	return &Markdowner{
		inv:      inv,
		stats:    stats,
		fees:     fees,
		notifier: notifier,
		cfg:      cfg,
		log:      log.With("component", "markdown"),
		now:      time.Now,
	}
}

// Run reprices every qualifying item once and returns the number of items
// marked down. Items lacking a listing, asking price, or stored aggregates
// are skipped silently: they cannot be compared against the market.
func (m *Markdowner) Run(ctx context.Context) (int, error) {
	cutoff := m.now().Add(-m.cfg.MinAge)
	items, err := m.inv.ListBoughtBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("engine: list aged purchases: %w", err)
	}

	marked := 0
	for _, item := range items {
		did, err := m.markdownItem(ctx, item)
		if err != nil {
			m.log.Error("markdown failed", "key", item.Key, "error", err)
			continue
		}
		if did {
			marked++
		}
	}

	m.log.Info("markdown pass complete", "aged", len(items), "marked_down", marked)
	return marked, nil
}

func (m *Markdowner) markdownItem(ctx context.Context, item domain.BoughtItem) (bool, error) {
	listing, err := m.inv.GetListing(ctx, item.Key)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if listing.SellPrice == nil {
		return false, nil
	}

	stats, err := m.stats.Get(ctx, item.Title)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	sell := float64(*listing.SellPrice)
	if stats.OffersBelow(*listing.SellPrice) < m.cfg.MinCompetingOffers {
		return false, nil
	}

	buy := float64(item.BuyPrice)
	newSell := math.Max(sell*m.cfg.StepFactor, buy*m.cfg.MinMarkup)

	fee, err := m.fees.Fraction(ctx, item.Title)
	if err != nil {
		fee = domain.DefaultFeeFraction
	}

	probProfit := newSell*(1-fee) - buy
	margin := probProfit * 100 / buy

	// Below the floor the ask is clamped to cost plus the minimum markup and
	// the profit recomputed at the clamped price.
	if margin < m.cfg.FloorMarginPercent {
		newSell = buy * m.cfg.MinMarkup
		probProfit = newSell*(1-fee) - buy
	}

	rounded := int64(math.Round(newSell))
	if err := m.inv.UpdateListingSellPrice(ctx, item.Key, rounded); err != nil {
		return false, err
	}
	if err := m.inv.UpdateBoughtPricing(ctx, item.Key, newSell, probProfit, m.now()); err != nil {
		return false, err
	}

	m.log.Info("marked down",
		"key", item.Key, "title", item.Title,
		"old_sell", *listing.SellPrice, "new_sell", rounded,
		"prob_profit", round2(probProfit))
	if m.notifier != nil {
		_ = m.notifier.Notify(ctx, notify.EventMarkdown, "Marked down",
			fmt.Sprintf("%s: %d -> %d cents", item.Title, *listing.SellPrice, rounded))
	}
	return true, nil
}

// RunEvery executes markdown passes on the given interval until the context
// is cancelled.
func (m *Markdowner) RunEvery(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := m.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.log.Error("markdown pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
