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

// Buy submits an offers-buy order for a single offer at the given price in
// cents. The returned status is the venue's transaction status string;
// "TxSuccess" means the purchase settled.
func (c *Client) Buy(ctx context.Context, offerID string, price int64, currency string) (orderID, status string, err error) {
	req := buyRequest{
		Offers: []buyOffer{{
			OfferID: offerID,
			Price:   money{Amount: strconv.FormatInt(price, 10), Currency: currency},
			Type:    "dmarket",
		}},
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", "", fmt.Errorf("dmarket: marshal buy request: %w", err)
	}

	body, err := c.call(ctx, http.MethodPatch, "/exchange/v1/offers-buy", nil, payload)
	if err != nil {
		return "", "", fmt.Errorf("dmarket: buy offer %s: %w", offerID, err)
	}
	if body == nil {
		return "", "", fmt.Errorf("dmarket: buy offer %s: empty response", offerID)
	}

	var resp buyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", "", fmt.Errorf("dmarket: decode buy response: %w", err)
	}
	return resp.OrderID, resp.Status, nil
}

// Balance returns the account's USD balance in cents.
func (c *Client) Balance(ctx context.Context) (int64, error) {
	body, err := c.call(ctx, http.MethodGet, "/account/v1/balance", nil, nil)
	if err != nil {
		return 0, fmt.Errorf("dmarket: balance: %w", err)
	}
	if body == nil {
		return 0, fmt.Errorf("dmarket: balance: empty response")
	}

	var resp balanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("dmarket: decode balance: %w", err)
	}
	return int64(resp.USD), nil
}

const (
	inventoryPageSize   = 50
	inventoryRetries    = 6
	inventoryRetryDelay = 2 * time.Second
)

// UserInventory returns every tradable item currently held in the account's
// on-market inventory, walking offset pages until the reported total is
// covered. Each page gets a small bounded retry on top of the transport's
// own, mirroring how flaky this endpoint is in practice.
func (c *Client) UserInventory(ctx context.Context, gameID, currency string) ([]domain.InventoryItem, error) {
	var items []domain.InventoryItem
	offset := 0

	for {
		params := Params{
			{"gameId", gameID},
			{"currency", currency},
			{"BasicFilters.InMarket", "true"},
			{"offset", strconv.Itoa(offset)},
			{"Limit", strconv.Itoa(inventoryPageSize)},
		}

		var (
			body []byte
			err  error
		)
		for attempt := 1; attempt <= inventoryRetries; attempt++ {
			body, err = c.call(ctx, http.MethodGet, "/marketplace-api/v1/user-inventory", params, nil)
			if err == nil {
				break
			}
			if attempt < inventoryRetries {
				if serr := c.sleepFn(ctx, inventoryRetryDelay); serr != nil {
					return nil, serr
				}
			}
		}
		if err != nil {
			return items, fmt.Errorf("dmarket: user inventory: %w", err)
		}
		if body == nil {
			break
		}

		var resp inventoryResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("dmarket: decode user inventory: %w", err)
		}

		for _, it := range resp.Items {
			items = append(items, domain.InventoryItem{
				ClassID: it.ClassID,
				AssetID: it.AssetID,
				Title:   it.Title,
			})
		}

		offset += inventoryPageSize
		if int64(offset) >= int64(resp.Total) || len(resp.Items) == 0 {
			break
		}
	}

	return items, nil
}

// CustomizedFees returns the venue's current reduced-fee schedule for the
// game. Fractions are the seller fee as a ratio (e.g. 0.05 for 5%).
func (c *Client) CustomizedFees(ctx context.Context, gameID string) ([]domain.FeeEntry, error) {
	params := Params{
		{"gameId", gameID},
		{"offerType", "dmarket"},
		{"limit", "15000"},
	}

	body, err := c.call(ctx, http.MethodGet, "/exchange/v1/customized-fees", params, nil)
	if err != nil {
		return nil, fmt.Errorf("dmarket: customized fees: %w", err)
	}
	if body == nil {
		return nil, nil
	}

	var resp feesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("dmarket: decode customized fees: %w", err)
	}

	fees := make([]domain.FeeEntry, 0, len(resp.ReducedFees))
	for _, f := range resp.ReducedFees {
		fees = append(fees, domain.FeeEntry{
			Title:     f.Title,
			Fraction:  float64(f.Fraction),
			ExpiresAt: f.ExpiresAt,
		})
	}
	return fees, nil
}

// CreateOffer lists one inventory asset for sale at the given price. The
// marketplace API takes decimal dollars here, unlike the exchange endpoints.
// It returns whether the venue accepted the listing.
func (c *Client) CreateOffer(ctx context.Context, assetID string, priceCents int64, currency string) (bool, error) {
	req := createOffersRequest{
		Offers: []createOffer{{
			AssetID: assetID,
			Price: createPrice{
				Currency: currency,
				Amount:   float64(priceCents) / 100,
			},
		}},
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return false, fmt.Errorf("dmarket: marshal create offer: %w", err)
	}

	body, err := c.call(ctx, http.MethodPost, "/marketplace-api/v1/user-offers/create", nil, payload)
	if err != nil {
		return false, fmt.Errorf("dmarket: create offer for asset %s: %w", assetID, err)
	}
	if body == nil {
		return false, fmt.Errorf("dmarket: create offer for asset %s: empty response", assetID)
	}

	var resp createOffersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("dmarket: decode create offer response: %w", err)
	}
	if len(resp.Result) == 0 {
		return false, fmt.Errorf("dmarket: create offer for asset %s: empty result", assetID)
	}
	return resp.Result[0].Successful, nil
}
