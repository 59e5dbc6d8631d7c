package dmarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/giratech/dmtrader/internal/domain"
)

// MarketItems returns the freshest open offers in the given price range,
// ordered most recently updated first. Prices are filtered server side in
// integer cents.
func (c *Client) MarketItems(ctx context.Context, gameID, currency string, priceFrom, priceTo int64, limit int) ([]domain.Offer, error) {
	params := Params{
		{"gameId", gameID},
		{"limit", strconv.Itoa(limit)},
		{"offset", "0"},
		{"orderBy", "updated"},
		{"orderDir", "desc"},
		{"treeFilters", ""},
		{"currency", currency},
		{"priceFrom", strconv.FormatInt(priceFrom, 10)},
		{"priceTo", strconv.FormatInt(priceTo, 10)},
		{"cursor", ""},
	}

	body, err := c.call(ctx, http.MethodGet, "/exchange/v1/market/items", params, nil)
	if err != nil {
		return nil, fmt.Errorf("dmarket: market items: %w", err)
	}
	if body == nil {
		return nil, nil
	}

	var resp marketItemsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("dmarket: decode market items: %w", err)
	}

	offers := make([]domain.Offer, 0, len(resp.Objects))
	for _, obj := range resp.Objects {
		offers = append(offers, domain.Offer{
			ID:        obj.Extra.OfferID,
			ClassID:   obj.ClassID,
			Title:     obj.Title,
			Price:     obj.priceCents(currency),
			CreatedAt: time.Unix(obj.CreatedAt, 0).UTC(),
			Category:  obj.Extra.CategoryPath,
			GameID:    obj.GameID,
		})
	}
	return offers, nil
}

// LastSales returns one page of recent sales for a title. offset selects the
// page start; the venue caps each page at 500 records. Sale prices arrive as
// decimal dollars and are converted to integer cents.
func (c *Client) LastSales(ctx context.Context, gameID, title string, limit, offset int) ([]domain.SalesRecord, error) {
	params := Params{
		{"gameId", gameID},
		{"title", title},
		{"limit", strconv.Itoa(limit)},
		{"offset", strconv.Itoa(offset)},
	}

	body, err := c.call(ctx, http.MethodGet, "/trade-aggregator/v1/last-sales", params, nil)
	if err != nil {
		return nil, fmt.Errorf("dmarket: last sales %q: %w", title, err)
	}
	if body == nil {
		return nil, nil
	}

	var resp lastSalesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("dmarket: decode last sales: %w", err)
	}

	sales := make([]domain.SalesRecord, 0, len(resp.Sales))
	for _, s := range resp.Sales {
		sales = append(sales, domain.SalesRecord{
			Title: title,
			Price: s.priceCents(),
			Date:  s.date(),
		})
	}
	return sales, nil
}

// OffersByTitle returns the live offer prices for a single title in cents,
// following the response cursor until it runs dry or pageCap offers have been
// collected. The trailing cursor is returned so callers can resume a
// truncated walk.
func (c *Client) OffersByTitle(ctx context.Context, title string, limit, pageCap int) ([]int64, string, error) {
	var (
		prices []int64
		cursor string
	)

	for {
		params := Params{
			{"title", title},
			{"limit", strconv.Itoa(limit)},
			{"Cursor", cursor},
		}

		body, err := c.call(ctx, http.MethodGet, "/exchange/v1/offers-by-title", params, nil)
		if err != nil {
			return nil, "", fmt.Errorf("dmarket: offers by title %q: %w", title, err)
		}
		if body == nil {
			break
		}

		var resp marketItemsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, "", fmt.Errorf("dmarket: decode offers by title: %w", err)
		}

		for _, obj := range resp.Objects {
			prices = append(prices, obj.priceCents("USD"))
		}

		cursor = resp.Cursor
		if cursor == "" || len(prices) >= pageCap {
			break
		}
	}

	return prices, cursor, nil
}
