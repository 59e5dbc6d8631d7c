// Package config defines the top-level configuration for the trader and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by DMTRADER_* environment
// variables.
type Config struct {
	Venue    VenueConfig    `toml:"venue"`
	Trade    TradeConfig    `toml:"trade"`
	Refresh  RefreshConfig  `toml:"refresh"`
	Markdown MarkdownConfig `toml:"markdown"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Report   ReportConfig   `toml:"report"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// VenueConfig holds DMarket API endpoints and credentials.
type VenueConfig struct {
	BaseURL   string `toml:"base_url"`
	PublicKey string `toml:"public_key"` // hex, doubles as the X-Api-Key value
	SecretKey string `toml:"secret_key"` // hex ed25519 private key
	GameID    string `toml:"game_id"`
	Currency  string `toml:"currency"`
}

// TradeConfig holds the live-offer evaluation parameters.
type TradeConfig struct {
	DiscountGoal           float64  `toml:"discount_goal"`              // percent
	MinItemPrice           int64    `toml:"min_item_price"`             // cents
	MaxItemPrice           int64    `toml:"max_item_price"`             // cents
	MinSalesPerMonth       int      `toml:"min_sales_per_month"`
	MaxOffersBelowBuyPrice int      `toml:"max_offers_below_buy_price"`
	PollInterval           duration `toml:"poll_interval"`
	PollRatePerSec         float64  `toml:"poll_rate_per_sec"`
	RunFor                 duration `toml:"run_for"`                    // 0 = run until cancelled
	BalanceRetries         int      `toml:"balance_retries"`
	ScanLimit              int      `toml:"scan_limit"`
}

// RefreshConfig holds the stats refresh scheduler parameters.
type RefreshConfig struct {
	MaxAge          duration `toml:"max_age"`
	Interval        duration `toml:"interval"`
	Workers         int      `toml:"workers"`
	SalesPageLimit  int      `toml:"sales_page_limit"`
	OfferPageLimit  int      `toml:"offer_page_limit"`
	OfferPageCap    int      `toml:"offer_page_cap"`
	TitleDenylist   []string `toml:"title_denylist"`
	RefreshFees     bool     `toml:"refresh_fees"`
}

// MarkdownConfig holds the aging-inventory repricing parameters.
type MarkdownConfig struct {
	MinAge             duration `toml:"min_age"`
	MinCompetingOffers int      `toml:"min_competing_offers"`
	StepFactor         float64  `toml:"step_factor"`
	MinMarkup          float64  `toml:"min_markup"`
	FloorMarginPercent float64  `toml:"floor_margin_percent"`
	Interval           duration `toml:"interval"` // full mode only
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the seen-offer cache.
// When disabled the trader falls back to a bounded in-process cache.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	SeenTTL    duration `toml:"seen_ttl"`
}

// S3Config holds S3-compatible object storage parameters for run-artifact
// archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ReportConfig holds run-artifact output locations.
type ReportConfig struct {
	Dir          string `toml:"dir"`
	NoDataTitles string `toml:"no_data_titles"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "30m", "500ms").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// defaultDenylist excludes non-tradable or ultra-high-volume SKU categories
// from the pricing pipeline.
var defaultDenylist = []string{
	"key", "pin", "sticker", "case", "operation", "pass", "capsule",
	"package", "challengers", "patch", "music", "kit", "graffiti",
	"contenders",
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Venue: VenueConfig{
			BaseURL:  "https://api.dmarket.com",
			GameID:   "a8db",
			Currency: "USD",
		},
		Trade: TradeConfig{
			DiscountGoal:           14,
			MinItemPrice:           100,
			MaxItemPrice:           5000,
			MinSalesPerMonth:       20,
			MaxOffersBelowBuyPrice: 2,
			PollInterval:           duration{500 * time.Millisecond},
			PollRatePerSec:         2,
			RunFor:                 duration{5 * time.Hour},
			BalanceRetries:         10,
			ScanLimit:              5,
		},
		Refresh: RefreshConfig{
			MaxAge:         duration{30 * time.Minute},
			Interval:       duration{10 * time.Minute},
			Workers:        10,
			SalesPageLimit: 500,
			OfferPageLimit: 100,
			OfferPageCap:   100,
			TitleDenylist:  defaultDenylist,
			RefreshFees:    true,
		},
		Markdown: MarkdownConfig{
			MinAge:             duration{7 * 24 * time.Hour},
			MinCompetingOffers: 4,
			StepFactor:         0.95,
			MinMarkup:          1.15,
			FloorMarginPercent: 15,
			Interval:           duration{12 * time.Hour},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "dmtrader",
			User:          "dmtrader",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			SeenTTL:    duration{6 * time.Hour},
		},
		S3: S3Config{
			Enabled:        false,
			Region:         "us-east-1",
			Bucket:         "dmtrader-runs",
			ForcePathStyle: true,
		},
		Report: ReportConfig{
			Dir:          "runs",
			NoDataTitles: "runs/no_data_titles.txt",
		},
		Notify: NotifyConfig{
			Events: []string{"buy_success", "buy_failed", "markdown"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":    true,
	"refresh":  true,
	"markdown": true,
	"full":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, refresh, markdown, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Venue credentials are required for every mode that talks to the API;
	// markdown works purely off the store.
	needsVenue := c.Mode != "markdown"
	if needsVenue {
		if c.Venue.PublicKey == "" || c.Venue.SecretKey == "" {
			errs = append(errs, "venue: public_key and secret_key must be set for mode "+c.Mode)
		}
	}
	if c.Venue.BaseURL == "" {
		errs = append(errs, "venue: base_url must not be empty")
	}
	if c.Venue.GameID == "" {
		errs = append(errs, "venue: game_id must not be empty")
	}

	if c.Trade.MinItemPrice < 0 || c.Trade.MaxItemPrice <= c.Trade.MinItemPrice {
		errs = append(errs, fmt.Sprintf("trade: invalid price range [%d, %d]", c.Trade.MinItemPrice, c.Trade.MaxItemPrice))
	}
	if c.Trade.BalanceRetries < 1 {
		errs = append(errs, "trade: balance_retries must be >= 1")
	}
	if c.Trade.ScanLimit < 1 {
		errs = append(errs, "trade: scan_limit must be >= 1")
	}

	if c.Refresh.Workers < 1 {
		errs = append(errs, "refresh: workers must be >= 1")
	}
	if c.Refresh.MaxAge.Duration <= 0 {
		errs = append(errs, "refresh: max_age must be positive")
	}
	if c.Refresh.OfferPageCap < 1 {
		errs = append(errs, "refresh: offer_page_cap must be >= 1")
	}

	if c.Markdown.StepFactor <= 0 || c.Markdown.StepFactor >= 1 {
		errs = append(errs, fmt.Sprintf("markdown: step_factor must be in (0, 1), got %v", c.Markdown.StepFactor))
	}
	if c.Markdown.MinMarkup <= 1 {
		errs = append(errs, fmt.Sprintf("markdown: min_markup must be > 1, got %v", c.Markdown.MinMarkup))
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.SeenTTL.Duration <= 0 {
			errs = append(errs, "redis: seen_ttl must be positive")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	if c.Report.Dir == "" {
		errs = append(errs, "report: dir must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
