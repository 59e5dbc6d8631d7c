// Package engine turns live market scans into buy decisions. It evaluates
// each fresh offer against the stored per-title aggregates and fee schedule,
// executes purchases that clear the discount and liquidity bars, and records
// every accepted offer in the run report.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/giratech/dmtrader/internal/domain"
	"github.com/giratech/dmtrader/internal/notify"
)

// statusTxSuccess is the venue's settled-transaction status.
const statusTxSuccess = "TxSuccess"

// Pricing constants for the projected resale. Deep discounts get the larger
// markup because the entry price leaves more room under the recent average.
const (
	lowDiscountMarkup  = 1.06
	highDiscountMarkup = 1.10
	markupThreshold    = 12 // discount percent separating the two markups
)

// VenueAPI is the slice of the venue client the engine needs.
type VenueAPI interface {
	MarketItems(ctx context.Context, gameID, currency string, priceFrom, priceTo int64, limit int) ([]domain.Offer, error)
	Buy(ctx context.Context, offerID string, price int64, currency string) (orderID, status string, err error)
	Balance(ctx context.Context) (int64, error)
}

// Notifier is the alert hook; *notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config tunes the decision engine.
type Config struct {
	GameID           string
	Currency         string
	DiscountGoal     float64
	MinItemPrice     int64
	MaxItemPrice     int64
	MinSalesPerMonth int
	MaxOffersBelow   int
	ScanLimit        int
	PollRatePerSec   float64
	PollInterval     time.Duration
	RunFor           time.Duration
	BalanceRetries   int
	Denylist         []string
}

// Engine scans the market and executes the arbitrage strategy.
type Engine struct {
	api      VenueAPI
	stats    domain.StatsStore
	fees     domain.FeeStore
	inv      domain.InventoryStore
	sync     *InventorySync
	seen     domain.SeenOffers
	reporter *Reporter
	notifier Notifier
	cfg      Config
	log      *slog.Logger

	now     func() time.Time
	sleepFn func(ctx context.Context, d time.Duration) error
}

// New creates an Engine. sync and notifier may be nil; purchases then skip
// the post-buy inventory resync and alerts.
func New(api VenueAPI, stats domain.StatsStore, fees domain.FeeStore, inv domain.InventoryStore,
	sync *InventorySync, seen domain.SeenOffers, reporter *Reporter, notifier Notifier,
	cfg Config, log *slog.Logger) *Engine {
	return &Engine{
		api:      api,
		stats:    stats,
		fees:     fees,
		inv:      inv,
		sync:     sync,
		seen:     seen,
		reporter: reporter,
		notifier: notifier,
		cfg:      cfg,
		log:      log.With("component", "engine"),
		now:      time.Now,
		sleepFn:  sleepCtx,
	}
}

// EvalParams are the acceptance thresholds for Evaluate.
type EvalParams struct {
	DiscountGoal     float64
	MinSalesPerMonth int
	MaxOffersBelow   int
}

// Evaluate scores one live offer against a title's aggregates.
//
// The discount base is the smaller of the last-20 and week averages. Reduced
// seller fees below the standard 10% are credited onto the discount rate, so
// a 5%-fee title needs 5 points less raw discount. Acceptance additionally
// requires monthly liquidity and at most MaxOffersBelow live offers already
// undercutting the entry price. The discount goal boundary is inclusive.
func Evaluate(price int64, stats domain.TitleStats, fee float64, p EvalParams) domain.Decision {
	d := domain.Decision{OffersBelow: stats.OffersBelow(price)}

	minAvg := math.Min(stats.AvgLast20, stats.AvgWeek)
	if minAvg != 0 {
		discount := round2((minAvg - float64(price)) / minAvg * 100)
		if fee < domain.DefaultFeeFraction {
			discount += round2(domain.DefaultFeeFraction*100 - fee*100)
		}
		d.DiscountRate = discount
		if discount < p.DiscountGoal {
			d.Reason = "discount below goal"
			return d
		}
	}

	if minAvg == 0 {
		d.Reason = "no recent average"
		return d
	}
	if stats.SalesMonth < p.MinSalesPerMonth {
		d.Reason = "too few monthly sales"
		return d
	}
	if d.OffersBelow > p.MaxOffersBelow {
		d.Reason = "undercut by cheaper offers"
		return d
	}

	if d.DiscountRate < markupThreshold {
		d.ProbSellPrice = minAvg * lowDiscountMarkup
	} else {
		d.ProbSellPrice = minAvg * highDiscountMarkup
	}
	d.ProbProfit = d.ProbSellPrice*(1-fee) - float64(price)
	d.Accept = true
	return d
}

// Run polls the market until the context is cancelled or the configured run
// duration elapses. Scan pacing comes from a token-bucket limiter; scan
// failures wait out a poll interval before the next try.
func (e *Engine) Run(ctx context.Context) error {
	if e.cfg.RunFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.RunFor)
		defer cancel()
	}

	limiter := rate.NewLimiter(rate.Limit(e.cfg.PollRatePerSec), 1)
	e.log.Info("engine started",
		"discount_goal", e.cfg.DiscountGoal,
		"price_range", fmt.Sprintf("[%d, %d]", e.cfg.MinItemPrice, e.cfg.MaxItemPrice),
		"run_for", e.cfg.RunFor)

	for {
		if err := limiter.Wait(ctx); err != nil {
			e.log.Info("engine stopped", "reason", context.Cause(ctx))
			return nil
		}

		offers, err := e.api.MarketItems(ctx, e.cfg.GameID, e.cfg.Currency,
			e.cfg.MinItemPrice, e.cfg.MaxItemPrice, e.cfg.ScanLimit)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.log.Error("market scan failed", "error", err)
			if serr := e.sleepFn(ctx, e.cfg.PollInterval); serr != nil {
				return nil
			}
			continue
		}

		for _, offer := range offers {
			if ctx.Err() != nil {
				return nil
			}
			e.processOffer(ctx, offer)
		}
	}
}

// processOffer runs one offer through dedupe, denylist, evaluation and the
// buy path. Failures are logged; nothing here aborts the scan loop.
func (e *Engine) processOffer(ctx context.Context, offer domain.Offer) {
	seen, err := e.seen.Seen(ctx, offer.ID)
	if err != nil {
		e.log.Warn("seen check failed", "offer_id", offer.ID, "error", err)
	}
	if seen {
		return
	}

	if domain.DeniedTitle(offer.Title, e.cfg.Denylist) {
		return
	}

	stats, err := e.stats.Get(ctx, offer.Title)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			e.reporter.AddNoData(offer.Title)
		} else {
			e.log.Error("stats lookup failed", "title", offer.Title, "error", err)
		}
		return
	}

	fee, err := e.fees.Fraction(ctx, offer.Title)
	if err != nil {
		e.log.Warn("fee lookup failed, using default", "title", offer.Title, "error", err)
		fee = domain.DefaultFeeFraction
	}

	d := Evaluate(offer.Price, stats, fee, EvalParams{
		DiscountGoal:     e.cfg.DiscountGoal,
		MinSalesPerMonth: e.cfg.MinSalesPerMonth,
		MaxOffersBelow:   e.cfg.MaxOffersBelow,
	})
	if !d.Accept {
		e.log.Debug("offer rejected",
			"title", offer.Title, "price", offer.Price,
			"reason", d.Reason, "discount", d.DiscountRate)
		return
	}

	e.log.Info("offer accepted",
		"title", offer.Title, "price", offer.Price,
		"discount", d.DiscountRate, "prob_profit", d.ProbProfit,
		"offers_below", d.OffersBelow)

	status := e.executeBuy(ctx, offer, d)

	e.reporter.Add(Entry{
		CreatedAt:     offer.CreatedAt,
		Title:         offer.Title,
		Price:         offer.Price,
		AvgLast20:     stats.AvgLast20,
		AvgWeek:       stats.AvgWeek,
		DiscountRate:  d.DiscountRate,
		ProbProfit:    round2(d.ProbProfit),
		ProbSellPrice: round2(d.ProbSellPrice),
		OfferID:       offer.ID,
		BuyResponse:   status,
	})
}

// executeBuy checks the balance, buys, and on settlement records the
// purchase and resyncs the venue inventory. It returns the status string for
// the run report.
func (e *Engine) executeBuy(ctx context.Context, offer domain.Offer, d domain.Decision) string {
	bal, err := e.balanceWithRetry(ctx)
	if err != nil {
		e.log.Error("balance unavailable", "error", err)
		return "not successful"
	}
	if bal < offer.Price {
		e.log.Warn("insufficient balance",
			"balance", bal, "price", offer.Price, "title", offer.Title)
		e.notify(ctx, notify.EventBuyFailed, "Buy skipped",
			fmt.Sprintf("%s at %d: %v", offer.Title, offer.Price, domain.ErrInsufficientFunds))
		return "not successful"
	}

	orderID, status, err := e.api.Buy(ctx, offer.ID, offer.Price, e.cfg.Currency)
	if err != nil {
		e.log.Error("buy failed", "title", offer.Title, "error", err)
		e.notify(ctx, notify.EventBuyFailed, "Buy failed",
			fmt.Sprintf("%s at %d: %v", offer.Title, offer.Price, err))
		return "error"
	}
	if status != statusTxSuccess {
		e.log.Warn("buy not settled", "title", offer.Title, "status", status)
		e.notify(ctx, notify.EventBuyFailed, "Buy not settled",
			fmt.Sprintf("%s at %d: status %s", offer.Title, offer.Price, status))
		return status
	}

	ts := e.now()
	item := domain.BoughtItem{
		Key:           domain.ItemKey(ts, offer.ClassID),
		Title:         offer.Title,
		PurchasedAt:   ts,
		BuyPrice:      offer.Price,
		ProbSellPrice: d.ProbSellPrice,
		ProbProfit:    d.ProbProfit,
		Status:        domain.BoughtStatusBought,
	}
	if err := e.inv.InsertBought(ctx, item); err != nil {
		e.log.Error("record purchase failed", "key", item.Key, "error", err)
	}

	if e.sync != nil {
		if err := e.sync.Resync(ctx, ts); err != nil {
			e.log.Error("inventory resync failed", "error", err)
		}
	}

	e.log.Info("bought", "title", offer.Title, "price", offer.Price,
		"order_id", orderID, "key", item.Key)
	e.notify(ctx, notify.EventBuySuccess, "Bought",
		fmt.Sprintf("%s at %d cents (projected profit %.0f)", offer.Title, offer.Price, d.ProbProfit))
	return status
}

// balanceWithRetry polls the balance endpoint up to BalanceRetries times
// with a one second pause between attempts.
func (e *Engine) balanceWithRetry(ctx context.Context) (int64, error) {
	var lastErr error
	for attempt := 0; attempt < e.cfg.BalanceRetries; attempt++ {
		bal, err := e.api.Balance(ctx)
		if err == nil {
			return bal, nil
		}
		lastErr = err
		if attempt+1 < e.cfg.BalanceRetries {
			if serr := e.sleepFn(ctx, time.Second); serr != nil {
				return 0, serr
			}
		}
	}
	return 0, fmt.Errorf("engine: balance after %d attempts: %w", e.cfg.BalanceRetries, lastErr)
}

func (e *Engine) notify(ctx context.Context, event, title, message string) {
	if e.notifier == nil {
		return
	}
	_ = e.notifier.Notify(ctx, event, title, message)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
