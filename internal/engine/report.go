package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one accepted offer in the run report, including the buy outcome.
// Monetary fields are cents.
type Entry struct {
	CreatedAt     time.Time `json:"createdAt"`
	Title         string    `json:"title"`
	Price         int64     `json:"price"`
	AvgLast20     float64   `json:"avg_last_20_sales"`
	AvgWeek       float64   `json:"avg_week"`
	DiscountRate  float64   `json:"discount_rate"`
	ProbProfit    float64   `json:"prob_profit"`
	ProbSellPrice float64   `json:"prob_sell_price"`
	OfferID       string    `json:"offerId"`
	BuyResponse   string    `json:"buy_response"`
}

// Uploader archives finished run artifacts to object storage.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte) error
}

// Reporter accumulates run artifacts: the accepted-offer log and the set of
// titles the evaluator had no aggregates for. Flush writes both to disk and
// optionally mirrors them to object storage.
type Reporter struct {
	mu      sync.Mutex
	entries []Entry
	noData  map[string]struct{}

	runID      string
	dir        string
	noDataPath string
	uploader   Uploader
	log        *slog.Logger
}

// NewReporter creates a Reporter for a fresh run. uploader may be nil.
func NewReporter(dir, noDataPath string, uploader Uploader, log *slog.Logger) *Reporter {
	return &Reporter{
		noData:     make(map[string]struct{}),
		runID:      uuid.NewString(),
		dir:        dir,
		noDataPath: noDataPath,
		uploader:   uploader,
		log:        log.With("component", "reporter"),
	}
}

// RunID returns the unique identifier of this run.
func (r *Reporter) RunID() string {
	return r.runID
}

// Add records one accepted offer.
func (r *Reporter) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// AddNoData records a title the evaluator could not score.
func (r *Reporter) AddNoData(title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.noData[title] = struct{}{}
}

// Flush writes the offer log (NDJSON, newest first) and the no-data sidecar,
// then mirrors the offer log to object storage when an uploader is set. The
// sidecar is always written so the refresh seeding has a stable input; the
// offer log is skipped when the run accepted nothing.
func (r *Reporter) Flush(ctx context.Context) error {
	r.mu.Lock()
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	titles := make([]string, 0, len(r.noData))
	for t := range r.noData {
		titles = append(titles, t)
	}
	r.mu.Unlock()

	sort.Strings(titles)
	if err := r.writeNoData(titles); err != nil {
		return err
	}

	if len(entries) == 0 {
		r.log.Info("no accepted offers this run", "run_id", r.runID)
		return nil
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	var b strings.Builder
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("engine: marshal report entry: %w", err)
		}
		b.Write(line)
		b.WriteByte('\n')
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("engine: create report dir: %w", err)
	}
	name := fmt.Sprintf("sorted_offers_%s.ndjson", r.runID)
	path := filepath.Join(r.dir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("engine: write report: %w", err)
	}
	r.log.Info("run report written", "path", path, "offers", len(entries))

	if r.uploader != nil {
		if err := r.uploader.Upload(ctx, name, []byte(b.String())); err != nil {
			r.log.Error("report upload failed", "error", err)
		}
	}
	return nil
}

// writeNoData persists the comma-joined sidecar of unscored titles.
func (r *Reporter) writeNoData(titles []string) error {
	if r.noDataPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.noDataPath), 0o755); err != nil {
		return fmt.Errorf("engine: create sidecar dir: %w", err)
	}
	if err := os.WriteFile(r.noDataPath, []byte(strings.Join(titles, ", ")), 0o644); err != nil {
		return fmt.Errorf("engine: write no-data sidecar: %w", err)
	}
	if len(titles) > 0 {
		r.log.Info("no-data titles saved", "path", r.noDataPath, "titles", len(titles))
	}
	return nil
}
