package dmarket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giratech/dmtrader/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	signer, _ := newTestSigner(t)
	c := NewClient(srv.URL, signer, slog.New(slog.NewTextHandler(testWriter{t}, nil)))

	var sleeps []time.Duration
	c.sleepFn = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return c, &sleeps
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestCallRetriesTransientStatus(t *testing.T) {
	var hits atomic.Int32
	c, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))

	body, err := c.call(context.Background(), http.MethodGet, "/x", nil, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.EqualValues(t, 3, hits.Load())

	// Failed attempts back off linearly: 1s then 2s.
	require.Len(t, *sleeps, 2)
	assert.Equal(t, time.Second, (*sleeps)[0])
	assert.Equal(t, 2*time.Second, (*sleeps)[1])
}

func TestCallRejectsClientError(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.call(context.Background(), http.MethodGet, "/x", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrClientRejected)
	assert.EqualValues(t, 1, hits.Load(), "4xx outside the allow-list must not be retried")
}

func TestCallRetries403(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(`{}`))
	}))

	_, err := c.call(context.Background(), http.MethodGet, "/x", nil, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
}

func TestCallExhaustsRetries(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := c.call(context.Background(), http.MethodGet, "/x", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.EqualValues(t, maxAttempts, hits.Load())
}

func TestCallBacksOffExponentiallyOnTransportError(t *testing.T) {
	// Close the server up front so every attempt fails with a connection
	// error rather than a retryable status.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	signer, _ := newTestSigner(t)
	c := NewClient(srv.URL, signer, slog.New(slog.NewTextHandler(testWriter{t}, nil)))

	var sleeps []time.Duration
	c.sleepFn = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}

	_, err := c.call(context.Background(), http.MethodGet, "/x", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRetriesExhausted)

	// The last attempt fails without sleeping again. Delays double from
	// 5s and clamp at 5m for the remainder of the run.
	require.Len(t, sleeps, maxAttempts-1)
	head := []time.Duration{
		5 * time.Second, 10 * time.Second, 20 * time.Second,
		40 * time.Second, 80 * time.Second, 160 * time.Second,
	}
	for i, want := range head {
		assert.Equal(t, want, sleeps[i], "sleep %d", i)
	}
	for i := len(head); i < len(sleeps); i++ {
		assert.Equal(t, 5*time.Minute, sleeps[i], "sleep %d", i)
	}
}

func TestCallEmptyBodyIsAbsence(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	body, err := c.call(context.Background(), http.MethodGet, "/x", nil, nil)
	require.NoError(t, err)
	assert.Nil(t, body)
}

func TestCallHonorsRateLimitHeaders(t *testing.T) {
	c, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("RateLimit-Remaining", "0")
		w.Header().Set("RateLimit-Reset", "3")
		w.Write([]byte(`{}`))
	}))

	_, err := c.call(context.Background(), http.MethodGet, "/x", nil, nil)
	require.NoError(t, err)
	require.Len(t, *sleeps, 1)
	assert.Equal(t, 3*time.Second, (*sleeps)[0])
}

func TestCallNoSleepWithoutRateLimitHeaders(t *testing.T) {
	c, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))

	_, err := c.call(context.Background(), http.MethodGet, "/x", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, *sleeps)
}

func TestCallSendsAuthHeaders(t *testing.T) {
	var got http.Header
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`{}`))
	}))

	_, err := c.call(context.Background(), http.MethodGet, "/x", Params{{"a", "1"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "test-public-key", got.Get("X-Api-Key"))
	assert.NotEmpty(t, got.Get("X-Sign-Date"))
	assert.Contains(t, got.Get("X-Request-Sign"), "dmar ed25519 ")
}

func TestCallStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var hits atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		cancel()
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.call(ctx, http.MethodGet, "/x", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 1, hits.Load())
}

func TestMarketItemsDecoding(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/exchange/v1/market/items", r.URL.Path)
		assert.Equal(t, "a8db", r.URL.Query().Get("gameId"))
		w.Write([]byte(`{"objects":[
			{"title":"AK-47 | Redline","classId":"1234","gameId":"a8db",
			 "createdAt":1700000000,"price":{"USD":"1550"},
			 "extra":{"offerId":"off-1","categoryPath":"Rifle"}}
		],"cursor":""}`))
	}))

	offers, err := c.MarketItems(context.Background(), "a8db", "USD", 100, 5000, 5)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, "off-1", offers[0].ID)
	assert.Equal(t, "AK-47 | Redline", offers[0].Title)
	assert.EqualValues(t, 1550, offers[0].Price)
	assert.Equal(t, "Rifle", offers[0].Category)
}

func TestLastSalesConvertsDollarsToCents(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sales":[{"price":"15.50","date":1700000000},{"price":"9.99","date":"1700000100"}]}`))
	}))

	sales, err := c.LastSales(context.Background(), "a8db", "AK-47 | Redline", 500, 0)
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.EqualValues(t, 1550, sales[0].Price)
	assert.EqualValues(t, 999, sales[1].Price)
	assert.Equal(t, time.Unix(1700000100, 0).UTC(), sales[1].Date)
}

func TestOffersByTitleFollowsCursor(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch hits.Add(1) {
		case 1:
			assert.Equal(t, "", r.URL.Query().Get("Cursor"))
			w.Write([]byte(`{"objects":[{"price":{"USD":"100"}},{"price":{"USD":"200"}}],"cursor":"page2"}`))
		default:
			assert.Equal(t, "page2", r.URL.Query().Get("Cursor"))
			w.Write([]byte(`{"objects":[{"price":{"USD":"300"}}],"cursor":""}`))
		}
	}))

	prices, cursor, err := c.OffersByTitle(context.Background(), "AK-47 | Redline", 100, 100)
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 200, 300}, prices)
	assert.Equal(t, "", cursor)
	assert.EqualValues(t, 2, hits.Load())
}

func TestOffersByTitleStopsAtCap(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"objects":[{"price":{"USD":"100"}},{"price":{"USD":"200"}}],"cursor":"more"}`))
	}))

	prices, cursor, err := c.OffersByTitle(context.Background(), "x", 2, 2)
	require.NoError(t, err)
	assert.Len(t, prices, 2)
	assert.Equal(t, "more", cursor, "truncated walks report the resume cursor")
	assert.EqualValues(t, 1, hits.Load())
}

func TestBuyDecodesOrder(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/exchange/v1/offers-buy", r.URL.Path)
		w.Write([]byte(`{"orderId":"ord-9","status":"TxSuccess"}`))
	}))

	orderID, status, err := c.Buy(context.Background(), "off-1", 1550, "USD")
	require.NoError(t, err)
	assert.Equal(t, "ord-9", orderID)
	assert.Equal(t, "TxSuccess", status)
}

func TestBalanceParsesCents(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"usd":"12345"}`))
	}))

	bal, err := c.Balance(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 12345, bal)
}

func TestUserInventoryPaginates(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch hits.Add(1) {
		case 1:
			assert.Equal(t, "0", r.URL.Query().Get("offset"))
			w.Write([]byte(`{"Items":[` + repeatItems(50) + `],"Total":"51"}`))
		default:
			assert.Equal(t, "50", r.URL.Query().Get("offset"))
			w.Write([]byte(`{"Items":[{"ClassID":"last","AssetID":"a-last","Title":"Last"}],"Total":"51"}`))
		}
	}))

	items, err := c.UserInventory(context.Background(), "a8db", "USD")
	require.NoError(t, err)
	assert.Len(t, items, 51)
	assert.Equal(t, "last", items[50].ClassID)
}

func repeatItems(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ","
		}
		out += `{"ClassID":"c","AssetID":"a","Title":"T"}`
	}
	return out
}

func TestCustomizedFeesDecoding(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"reducedFees":[{"title":"AK-47 | Redline","fraction":"0.05","expiresAt":1800000000}]}`))
	}))

	fees, err := c.CustomizedFees(context.Background(), "a8db")
	require.NoError(t, err)
	require.Len(t, fees, 1)
	assert.InDelta(t, 0.05, fees[0].Fraction, 1e-9)
}

func TestCreateOfferReportsResult(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Result":[{"Successful":false,"Error":"asset locked"}]}`))
	}))

	ok, err := c.CreateOffer(context.Background(), "a-1", 1500, "USD")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateOfferEmptyResult(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Result":[]}`))
	}))

	_, err := c.CreateOffer(context.Background(), "a-1", 1500, "USD")
	assert.Error(t, err)
}

func TestIsStatusOrTimeout(t *testing.T) {
	assert.True(t, isStatusOrTimeout(&statusError{code: 502}))
	assert.False(t, isStatusOrTimeout(errors.New("dns failure")))
}
