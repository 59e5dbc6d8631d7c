package dmarket

import (
	"strconv"
	"time"
)

// marketItemsResponse is the wire shape of GET /exchange/v1/market/items and
// GET /exchange/v1/offers-by-title. Prices are integer cents encoded as
// strings, keyed by currency code.
type marketItemsResponse struct {
	Objects []marketItem `json:"objects"`
	Cursor  string       `json:"cursor"`
	Total   jsonInt      `json:"total"`
}

type marketItem struct {
	Title     string            `json:"title"`
	ClassID   string            `json:"classId"`
	GameID    string            `json:"gameId"`
	CreatedAt int64             `json:"createdAt"`
	Price     map[string]string `json:"price"`
	Extra     marketItemExtra   `json:"extra"`
}

type marketItemExtra struct {
	OfferID      string `json:"offerId"`
	CategoryPath string `json:"categoryPath"`
	Tradable     bool   `json:"tradable"`
}

// priceCents returns the item price in integer cents for the given currency,
// or 0 when the currency is absent or malformed.
func (m marketItem) priceCents(currency string) int64 {
	raw, ok := m.Price[currency]
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// lastSalesResponse is the wire shape of GET /trade-aggregator/v1/last-sales.
// Unlike the exchange endpoints, sale prices here are decimal dollar strings.
type lastSalesResponse struct {
	Sales []lastSale `json:"sales"`
}

type lastSale struct {
	Price string  `json:"price"`
	Date  jsonInt `json:"date"`
}

// priceCents converts the decimal dollar string to integer cents.
func (s lastSale) priceCents() int64 {
	f, err := strconv.ParseFloat(s.Price, 64)
	if err != nil {
		return 0
	}
	return int64(f*100 + 0.5)
}

func (s lastSale) date() time.Time {
	return time.Unix(int64(s.Date), 0).UTC()
}

// balanceResponse is the wire shape of GET /account/v1/balance. The usd field
// is integer cents encoded as a string.
type balanceResponse struct {
	USD jsonInt `json:"usd"`
}

// buyResponse is the wire shape of PATCH /exchange/v1/offers-buy.
type buyResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

// inventoryResponse is the wire shape of GET /marketplace-api/v1/user-inventory.
type inventoryResponse struct {
	Items []inventoryItem `json:"Items"`
	Total jsonInt         `json:"Total"`
}

type inventoryItem struct {
	ClassID string `json:"ClassID"`
	AssetID string `json:"AssetID"`
	Title   string `json:"Title"`
}

// feesResponse is the wire shape of GET /exchange/v1/customized-fees.
type feesResponse struct {
	ReducedFees []reducedFee `json:"reducedFees"`
}

type reducedFee struct {
	Title     string    `json:"title"`
	Fraction  jsonFloat `json:"fraction"`
	ExpiresAt int64     `json:"expiresAt"`
}

// createOffersResponse is the wire shape of POST /marketplace-api/v1/user-offers/create.
type createOffersResponse struct {
	Result []createOfferResult `json:"Result"`
}

type createOfferResult struct {
	Successful bool `json:"Successful"`
	CreateOffer struct {
		AssetID string `json:"AssetID"`
	} `json:"CreateOffer"`
	Error string `json:"Error"`
}

// buyRequest is the wire shape of the offers-buy body. Amounts are integer
// cents encoded as strings.
type buyRequest struct {
	Offers []buyOffer `json:"offers"`
}

type buyOffer struct {
	OfferID string `json:"offerId"`
	Price   money  `json:"price"`
	Type    string `json:"type"`
}

type money struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// createOffersRequest is the wire shape of the user-offers/create body. Note
// the marketplace-api uses PascalCase keys and decimal dollar amounts.
type createOffersRequest struct {
	Offers []createOffer `json:"Offers"`
}

type createOffer struct {
	AssetID string      `json:"AssetID"`
	Price   createPrice `json:"Price"`
}

type createPrice struct {
	Currency string  `json:"Currency"`
	Amount   float64 `json:"Amount"`
}

// jsonInt decodes a JSON value that the venue emits inconsistently as either
// a number or a numeric string.
type jsonInt int64

func (n *jsonInt) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return err
		}
		v = int64(f)
	}
	*n = jsonInt(v)
	return nil
}

// jsonFloat is the float twin of jsonInt.
type jsonFloat float64

func (f *jsonFloat) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = jsonFloat(v)
	return nil
}
