// Package refresher keeps the per-title sale aggregates fresh. An Aggregator
// pulls sale history and live offers for one title and folds them into
// TitleStats; the Refresher schedules aggregation across a worker pool.
package refresher

import (
	"context"
	"fmt"
	"time"

	"github.com/giratech/dmtrader/internal/domain"
)

// MarketAPI is the slice of the venue client the aggregator needs.
type MarketAPI interface {
	LastSales(ctx context.Context, gameID, title string, limit, offset int) ([]domain.SalesRecord, error)
	OffersByTitle(ctx context.Context, title string, limit, pageCap int) ([]int64, string, error)
}

// salesOffsets are the fixed page starts fetched per title. Two pages of the
// venue's 500-record maximum cover the whole month window for all but the
// most liquid titles.
var salesOffsets = [...]int{0, 500}

// AggregatorConfig tunes one aggregation pass.
type AggregatorConfig struct {
	GameID         string
	SalesPageLimit int
	OfferPageLimit int
	OfferPageCap   int
}

// Aggregator fetches and folds market data for single titles.
type Aggregator struct {
	api MarketAPI
	cfg AggregatorConfig
	now func() time.Time
}

// NewAggregator creates an Aggregator over the given venue API slice.
func NewAggregator(api MarketAPI, cfg AggregatorConfig) *Aggregator {
	return &Aggregator{api: api, cfg: cfg, now: time.Now}
}

// CombinedSales fetches the fixed sale pages for a title and concatenates
// them. An optional inclusive date range trims the result.
func (a *Aggregator) CombinedSales(ctx context.Context, title string, start, end *time.Time) ([]domain.SalesRecord, error) {
	var combined []domain.SalesRecord
	for _, offset := range salesOffsets {
		page, err := a.api.LastSales(ctx, a.cfg.GameID, title, a.cfg.SalesPageLimit, offset)
		if err != nil {
			return nil, fmt.Errorf("refresher: sales page at offset %d: %w", offset, err)
		}
		combined = append(combined, page...)
	}
	return filterByDate(combined, start, end), nil
}

// filterByDate keeps records inside the inclusive [start, end] range. A nil
// bound is open.
func filterByDate(sales []domain.SalesRecord, start, end *time.Time) []domain.SalesRecord {
	if start == nil && end == nil {
		return sales
	}
	kept := make([]domain.SalesRecord, 0, len(sales))
	for _, s := range sales {
		if start != nil && s.Date.Before(*start) {
			continue
		}
		if end != nil && s.Date.After(*end) {
			continue
		}
		kept = append(kept, s)
	}
	return kept
}

// Refresh fetches sales and live offers for a title and computes its
// aggregates. A title with neither sales nor offers yields ErrNoData so the
// caller can record it for later seeding instead of storing a zero row.
func (a *Aggregator) Refresh(ctx context.Context, title string) (domain.TitleStats, error) {
	sales, err := a.CombinedSales(ctx, title, nil, nil)
	if err != nil {
		return domain.TitleStats{}, err
	}

	offers, _, err := a.api.OffersByTitle(ctx, title, a.cfg.OfferPageLimit, a.cfg.OfferPageCap)
	if err != nil {
		return domain.TitleStats{}, fmt.Errorf("refresher: offers for %q: %w", title, err)
	}

	if len(sales) == 0 && len(offers) == 0 {
		return domain.TitleStats{}, fmt.Errorf("refresher: %q: %w", title, domain.ErrNoData)
	}

	return domain.ComputeTitleStats(title, sales, offers, a.now()), nil
}
