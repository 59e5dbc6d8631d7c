package app

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/giratech/dmtrader/internal/domain"
	"github.com/giratech/dmtrader/internal/engine"
	"github.com/giratech/dmtrader/internal/refresher"
)

// listPendingInterval paces the listing flow in full mode. New purchases are
// resynced immediately after the buy; this sweep only catches retries.
const listPendingInterval = 10 * time.Minute

func (a *App) buildRefresher(deps *Dependencies) *refresher.Refresher {
	agg := refresher.NewAggregator(deps.Venue, refresher.AggregatorConfig{
		GameID:         a.cfg.Venue.GameID,
		SalesPageLimit: a.cfg.Refresh.SalesPageLimit,
		OfferPageLimit: a.cfg.Refresh.OfferPageLimit,
		OfferPageCap:   a.cfg.Refresh.OfferPageCap,
	})
	return refresher.New(agg, deps.Stats, deps.Fees, deps.Venue, refresher.Config{
		GameID:      a.cfg.Venue.GameID,
		MaxAge:      a.cfg.Refresh.MaxAge.Duration,
		Interval:    a.cfg.Refresh.Interval.Duration,
		Workers:     a.cfg.Refresh.Workers,
		Denylist:    a.cfg.Refresh.TitleDenylist,
		RefreshFees: a.cfg.Refresh.RefreshFees,
	}, a.log)
}

func (a *App) buildEngine(deps *Dependencies) (*engine.Engine, *engine.Reporter, *engine.InventorySync) {
	reporter := engine.NewReporter(
		a.cfg.Report.Dir, a.cfg.Report.NoDataTitles, deps.Uploader, a.log,
	)
	sync := engine.NewInventorySync(
		deps.Venue, deps.Inv, a.cfg.Venue.GameID, a.cfg.Venue.Currency, a.log,
	)
	eng := engine.New(deps.Venue, deps.Stats, deps.Fees, deps.Inv, sync,
		deps.Seen, reporter, deps.Notifier, engine.Config{
			GameID:           a.cfg.Venue.GameID,
			Currency:         a.cfg.Venue.Currency,
			DiscountGoal:     a.cfg.Trade.DiscountGoal,
			MinItemPrice:     a.cfg.Trade.MinItemPrice,
			MaxItemPrice:     a.cfg.Trade.MaxItemPrice,
			MinSalesPerMonth: a.cfg.Trade.MinSalesPerMonth,
			MaxOffersBelow:   a.cfg.Trade.MaxOffersBelowBuyPrice,
			ScanLimit:        a.cfg.Trade.ScanLimit,
			PollRatePerSec:   a.cfg.Trade.PollRatePerSec,
			PollInterval:     a.cfg.Trade.PollInterval.Duration,
			RunFor:           a.cfg.Trade.RunFor.Duration,
			BalanceRetries:   a.cfg.Trade.BalanceRetries,
			Denylist:         a.cfg.Refresh.TitleDenylist,
		}, a.log)
	return eng, reporter, sync
}

func (a *App) buildMarkdowner(deps *Dependencies) *engine.Markdowner {
	return engine.NewMarkdowner(deps.Inv, deps.Stats, deps.Fees, deps.Notifier,
		engine.MarkdownConfig{
			MinAge:             a.cfg.Markdown.MinAge.Duration,
			MinCompetingOffers: a.cfg.Markdown.MinCompetingOffers,
			StepFactor:         a.cfg.Markdown.StepFactor,
			MinMarkup:          a.cfg.Markdown.MinMarkup,
			FloorMarginPercent: a.cfg.Markdown.FloorMarginPercent,
		}, a.log)
}

func (a *App) logRefreshReport(report domain.RefreshReport) {
	a.log.Info("refresh pass finished",
		"visited", report.Visited,
		"updated", report.Updated,
		"skipped", report.Skipped,
		"no_data", len(report.NoData),
		"elapsed", report.Elapsed,
	)
}

// RefreshMode runs the stats refresh scheduler until cancelled.
func (a *App) RefreshMode(ctx context.Context, deps *Dependencies) error {
	err := a.buildRefresher(deps).Run(ctx, a.logRefreshReport)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// TradeMode runs one trading session. Titles from the previous session's
// no-data sidecar are seeded first so the refresher backfills them, and the
// run report is flushed when the session ends.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	eng, reporter, _ := a.buildEngine(deps)

	r := a.buildRefresher(deps)
	if seeded, err := r.SeedFromFile(ctx, a.cfg.Report.NoDataTitles); err != nil {
		a.log.Warn("no-data seed failed", "error", err)
	} else if seeded > 0 {
		a.log.Info("seeded titles from previous run", "count", seeded)
	}

	runErr := eng.Run(ctx)

	// Flush on a fresh context; the session one is likely already cancelled.
	flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := reporter.Flush(flushCtx); err != nil {
		a.log.Error("report flush failed", "error", err)
	}
	return runErr
}

// MarkdownMode reprices aged inventory once and exits.
func (a *App) MarkdownMode(ctx context.Context, deps *Dependencies) error {
	marked, err := a.buildMarkdowner(deps).Run(ctx)
	if err != nil {
		return err
	}
	a.log.Info("markdown pass finished", "marked", marked)
	return nil
}

// FullMode runs every subsystem together: the refresher, the trading engine,
// the periodic markdown pass, and the listing sweep. The engine's session
// window bounds the whole run; when it closes everything else is stopped.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eng, reporter, sync := a.buildEngine(deps)
	r := a.buildRefresher(deps)
	md := a.buildMarkdowner(deps)

	if seeded, err := r.SeedFromFile(ctx, a.cfg.Report.NoDataTitles); err != nil {
		a.log.Warn("no-data seed failed", "error", err)
	} else if seeded > 0 {
		a.log.Info("seeded titles from previous run", "count", seeded)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return r.Run(gctx, a.logRefreshReport)
	})

	g.Go(func() error {
		err := eng.Run(gctx)
		cancel()
		return err
	})

	g.Go(func() error {
		return md.RunEvery(gctx, a.cfg.Markdown.Interval.Duration)
	})

	g.Go(func() error {
		ticker := time.NewTicker(listPendingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				if err := sync.ListPending(gctx); err != nil {
					a.log.Error("listing sweep failed", "error", err)
				}
			}
		}
	})

	err := g.Wait()

	flushCtx, cancelFlush := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelFlush()
	if ferr := reporter.Flush(flushCtx); ferr != nil {
		a.log.Error("report flush failed", "error", ferr)
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
