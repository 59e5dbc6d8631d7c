package refresher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/giratech/dmtrader/internal/domain"
)

// FeeAPI is the slice of the venue client the fee refresh needs.
type FeeAPI interface {
	CustomizedFees(ctx context.Context, gameID string) ([]domain.FeeEntry, error)
}

// Config tunes the refresh scheduler.
type Config struct {
	GameID      string
	MaxAge      time.Duration
	Interval    time.Duration
	Workers     int
	Denylist    []string
	RefreshFees bool
}

// Refresher drives periodic aggregation of stale titles across a worker
// pool. Failures on individual titles are logged and skipped; only store and
// scheduling errors abort a pass.
type Refresher struct {
	agg      *Aggregator
	stats    domain.StatsStore
	fees     domain.FeeStore
	feeAPI   FeeAPI
	cfg      Config
	denylist []string
	log      *slog.Logger
	now      func() time.Time
}

// New creates a Refresher. feeAPI and fees may be nil when fee refresh is
// disabled.
func New(agg *Aggregator, stats domain.StatsStore, fees domain.FeeStore, feeAPI FeeAPI, cfg Config, log *slog.Logger) *Refresher {
	denylist := make([]string, 0, len(cfg.Denylist))
	for _, w := range cfg.Denylist {
		denylist = append(denylist, strings.ToLower(w))
	}
	return &Refresher{
		agg:      agg,
		stats:    stats,
		fees:     fees,
		feeAPI:   feeAPI,
		cfg:      cfg,
		denylist: denylist,
		log:      log.With("component", "refresher"),
		now:      time.Now,
	}
}

// Denylisted reports whether a title contains any excluded keyword.
func (r *Refresher) Denylisted(title string) bool {
	return domain.DeniedTitle(title, r.denylist)
}

// RefreshStale aggregates every title whose stored stats are older than
// MaxAge, fanning the work across the configured number of workers.
func (r *Refresher) RefreshStale(ctx context.Context) (domain.RefreshReport, error) {
	started := r.now()
	cutoff := started.Add(-r.cfg.MaxAge)

	titles, err := r.stats.ListStale(ctx, cutoff)
	if err != nil {
		return domain.RefreshReport{}, fmt.Errorf("refresher: list stale: %w", err)
	}
	if len(titles) == 0 {
		return domain.RefreshReport{Elapsed: r.now().Sub(started)}, nil
	}

	var (
		visited atomic.Int64
		updated atomic.Int64
		skipped atomic.Int64

		noDataMu sync.Mutex
		noData   []string
	)

	jobs := make(chan string)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < r.cfg.Workers; i++ {
		g.Go(func() error {
			for title := range jobs {
				visited.Add(1)

				if r.Denylisted(title) {
					skipped.Add(1)
					continue
				}

				stats, err := r.agg.Refresh(gctx, title)
				if err != nil {
					if errors.Is(err, domain.ErrNoData) {
						noDataMu.Lock()
						noData = append(noData, title)
						noDataMu.Unlock()
					}
					r.log.Warn("title refresh failed", "title", title, "error", err)
					continue
				}

				if err := r.stats.Upsert(gctx, stats); err != nil {
					r.log.Error("stats upsert failed", "title", title, "error", err)
					continue
				}
				updated.Add(1)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		for _, title := range titles {
			select {
			case jobs <- title:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return domain.RefreshReport{}, fmt.Errorf("refresher: refresh stale: %w", err)
	}

	report := domain.RefreshReport{
		Visited: int(visited.Load()),
		Updated: int(updated.Load()),
		Skipped: int(skipped.Load()),
		NoData:  noData,
		Elapsed: r.now().Sub(started),
	}
	r.log.Info("refresh pass complete",
		"visited", report.Visited, "updated", report.Updated,
		"skipped", report.Skipped, "no_data", len(report.NoData),
		"elapsed", report.Elapsed)
	return report, nil
}

// RefreshFees replaces the stored fee schedule with the venue's current one.
func (r *Refresher) RefreshFees(ctx context.Context) error {
	if r.feeAPI == nil || r.fees == nil {
		return nil
	}
	entries, err := r.feeAPI.CustomizedFees(ctx, r.cfg.GameID)
	if err != nil {
		return fmt.Errorf("refresher: fetch fees: %w", err)
	}
	if err := r.fees.ReplaceAll(ctx, entries); err != nil {
		return fmt.Errorf("refresher: store fees: %w", err)
	}
	r.log.Info("fee schedule replaced", "entries", len(entries))
	return nil
}

// Run executes refresh passes on the configured interval until the context
// is cancelled. Each pass refreshes stale titles and, when enabled, the fee
// schedule; pass failures are logged and the loop keeps going.
func (r *Refresher) Run(ctx context.Context, onReport func(domain.RefreshReport)) error {
	r.log.Info("refresher started",
		"interval", r.cfg.Interval, "max_age", r.cfg.MaxAge,
		"workers", r.cfg.Workers)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		if r.cfg.RefreshFees {
			if err := r.RefreshFees(ctx); err != nil {
				r.log.Error("fee refresh failed", "error", err)
			}
		}

		report, err := r.RefreshStale(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.log.Error("refresh pass failed", "error", err)
		} else if onReport != nil {
			onReport(report)
		}

		select {
		case <-ctx.Done():
			r.log.Info("refresher stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SeedFromFile reads titles from a sidecar file (comma- or newline-joined)
// and seeds zero-valued stats rows for them so the next pass backfills their
// aggregates. Returns the number of rows created.
func (r *Refresher) SeedFromFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("refresher: read seed file: %w", err)
	}

	fields := strings.FieldsFunc(string(data), func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	titles := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || r.Denylisted(f) {
			continue
		}
		titles = append(titles, f)
	}

	n, err := r.stats.SeedTitles(ctx, titles)
	if err != nil {
		return 0, fmt.Errorf("refresher: seed titles: %w", err)
	}
	if n > 0 {
		r.log.Info("seeded titles from file", "path", path, "seeded", n)
	}
	return n, nil
}
