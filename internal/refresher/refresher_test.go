package refresher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giratech/dmtrader/internal/domain"
)

type fakeMarketAPI struct {
	mu         sync.Mutex
	salesCalls map[string][]int // title -> offsets requested
	sales      map[string][]domain.SalesRecord
	offers     map[string][]int64
	failTitles map[string]error
}

func newFakeMarketAPI() *fakeMarketAPI {
	return &fakeMarketAPI{
		salesCalls: make(map[string][]int),
		sales:      make(map[string][]domain.SalesRecord),
		offers:     make(map[string][]int64),
		failTitles: make(map[string]error),
	}
}

func (f *fakeMarketAPI) LastSales(_ context.Context, _, title string, _, offset int) ([]domain.SalesRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failTitles[title]; ok {
		return nil, err
	}
	f.salesCalls[title] = append(f.salesCalls[title], offset)
	if offset > 0 {
		return nil, nil
	}
	return f.sales[title], nil
}

func (f *fakeMarketAPI) OffersByTitle(_ context.Context, title string, _, _ int) ([]int64, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offers[title], "", nil
}

type fakeStatsStore struct {
	mu     sync.Mutex
	stale  []string
	stored map[string]domain.TitleStats
	seeded []string
}

func newFakeStatsStore(stale ...string) *fakeStatsStore {
	return &fakeStatsStore{stale: stale, stored: make(map[string]domain.TitleStats)}
}

func (s *fakeStatsStore) Upsert(_ context.Context, stats domain.TitleStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored[stats.Title] = stats
	return nil
}

func (s *fakeStatsStore) Get(_ context.Context, title string) (domain.TitleStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stored[title]
	if !ok {
		return domain.TitleStats{}, domain.ErrNotFound
	}
	return st, nil
}

func (s *fakeStatsStore) ListStale(_ context.Context, _ time.Time) ([]string, error) {
	return s.stale, nil
}

func (s *fakeStatsStore) SeedTitles(_ context.Context, titles []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeded = append(s.seeded, titles...)
	return len(titles), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestRefresher(api *fakeMarketAPI, store *fakeStatsStore, workers int) *Refresher {
	agg := NewAggregator(api, AggregatorConfig{
		GameID:         "a8db",
		SalesPageLimit: 500,
		OfferPageLimit: 100,
		OfferPageCap:   100,
	})
	return New(agg, store, nil, nil, Config{
		GameID:   "a8db",
		MaxAge:   30 * time.Minute,
		Workers:  workers,
		Denylist: []string{"key", "sticker", "case"},
	}, testLogger())
}

func TestCombinedSalesFetchesBothPages(t *testing.T) {
	api := newFakeMarketAPI()
	api.sales["AK-47 | Redline"] = []domain.SalesRecord{
		{Title: "AK-47 | Redline", Price: 1000, Date: time.Now()},
	}
	agg := NewAggregator(api, AggregatorConfig{GameID: "a8db", SalesPageLimit: 500})

	sales, err := agg.CombinedSales(context.Background(), "AK-47 | Redline", nil, nil)
	require.NoError(t, err)
	assert.Len(t, sales, 1)
	assert.Equal(t, []int{0, 500}, api.salesCalls["AK-47 | Redline"])
}

func TestFilterByDateInclusive(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	sales := []domain.SalesRecord{
		{Price: 1, Date: base.Add(-time.Hour)},
		{Price: 2, Date: base},
		{Price: 3, Date: base.Add(time.Hour)},
	}

	got := filterByDate(sales, &base, nil)
	require.Len(t, got, 2)
	assert.EqualValues(t, 2, got[0].Price, "the start bound itself is kept")

	end := base
	got = filterByDate(sales, nil, &end)
	require.Len(t, got, 2)
	assert.EqualValues(t, 2, got[1].Price)
}

func TestAggregatorNoData(t *testing.T) {
	api := newFakeMarketAPI()
	agg := NewAggregator(api, AggregatorConfig{GameID: "a8db", SalesPageLimit: 500})

	_, err := agg.Refresh(context.Background(), "Ghost Title")
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestRefreshStaleWorkerPool(t *testing.T) {
	api := newFakeMarketAPI()
	var titles []string
	now := time.Now()
	for i := 0; i < 50; i++ {
		title := fmt.Sprintf("Item %02d", i)
		titles = append(titles, title)
		if i < 5 {
			api.failTitles[title] = errors.New("venue hiccup")
			continue
		}
		api.sales[title] = []domain.SalesRecord{
			{Title: title, Price: 1000, Date: now.Add(-time.Hour)},
			{Title: title, Price: 1000, Date: now.Add(-2 * time.Hour)},
		}
		api.offers[title] = []int64{990, 1010}
	}
	store := newFakeStatsStore(titles...)

	r := newTestRefresher(api, store, 10)
	report, err := r.RefreshStale(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 50, report.Visited)
	assert.Equal(t, 45, report.Updated)
	assert.Equal(t, 0, report.Skipped)
	assert.Len(t, store.stored, 45)

	// Each healthy title was aggregated exactly once.
	for i := 5; i < 50; i++ {
		title := fmt.Sprintf("Item %02d", i)
		assert.Equal(t, []int{0, 500}, api.salesCalls[title], title)
	}
}

func TestRefreshStaleSkipsDenylistedTitles(t *testing.T) {
	api := newFakeMarketAPI()
	api.sales["AWP | Asiimov"] = []domain.SalesRecord{{Price: 5000, Date: time.Now()}}
	store := newFakeStatsStore("Operation Case Key", "STICKER | Crown", "  ", "AWP | Asiimov")

	r := newTestRefresher(api, store, 2)
	report, err := r.RefreshStale(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, report.Visited)
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, 1, report.Updated)
	assert.Empty(t, api.salesCalls["Operation Case Key"], "denylisted titles never reach the venue")
}

func TestRefreshStaleCollectsNoDataTitles(t *testing.T) {
	api := newFakeMarketAPI()
	store := newFakeStatsStore("Ghost Title")

	r := newTestRefresher(api, store, 1)
	report, err := r.RefreshStale(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Ghost Title"}, report.NoData)
	assert.Zero(t, report.Updated)
}

func TestRefreshStaleEmpty(t *testing.T) {
	r := newTestRefresher(newFakeMarketAPI(), newFakeStatsStore(), 4)
	report, err := r.RefreshStale(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Visited)
}

func TestSeedFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "no_data_titles.txt")
	require.NoError(t, os.WriteFile(path,
		[]byte("AK-47 | Redline, Glock-18 | Fade\nOperation Case Key,  , M4A4 | Howl"), 0o644))

	store := newFakeStatsStore()
	r := newTestRefresher(newFakeMarketAPI(), store, 1)

	n, err := r.SeedFromFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"AK-47 | Redline", "Glock-18 | Fade", "M4A4 | Howl"}, store.seeded)
}

func TestSeedFromFileMissingIsNoop(t *testing.T) {
	store := newFakeStatsStore()
	r := newTestRefresher(newFakeMarketAPI(), store, 1)

	n, err := r.SeedFromFile(context.Background(), filepath.Join(t.TempDir(), "absent.txt"))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.seeded)
}
