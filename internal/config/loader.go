package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DMTRADER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DMTRADER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Venue ──
	setStr(&cfg.Venue.BaseURL, "DMTRADER_VENUE_BASE_URL")
	setStr(&cfg.Venue.PublicKey, "DMTRADER_VENUE_PUBLIC_KEY")
	setStr(&cfg.Venue.SecretKey, "DMTRADER_VENUE_SECRET_KEY")
	setStr(&cfg.Venue.GameID, "DMTRADER_VENUE_GAME_ID")
	setStr(&cfg.Venue.Currency, "DMTRADER_VENUE_CURRENCY")

	// ── Trade ──
	setFloat64(&cfg.Trade.DiscountGoal, "DMTRADER_TRADE_DISCOUNT_GOAL")
	setInt64(&cfg.Trade.MinItemPrice, "DMTRADER_TRADE_MIN_ITEM_PRICE")
	setInt64(&cfg.Trade.MaxItemPrice, "DMTRADER_TRADE_MAX_ITEM_PRICE")
	setInt(&cfg.Trade.MinSalesPerMonth, "DMTRADER_TRADE_MIN_SALES_PER_MONTH")
	setInt(&cfg.Trade.MaxOffersBelowBuyPrice, "DMTRADER_TRADE_MAX_OFFERS_BELOW_BUY_PRICE")
	setDuration(&cfg.Trade.PollInterval, "DMTRADER_TRADE_POLL_INTERVAL")
	setFloat64(&cfg.Trade.PollRatePerSec, "DMTRADER_TRADE_POLL_RATE_PER_SEC")
	setDuration(&cfg.Trade.RunFor, "DMTRADER_TRADE_RUN_FOR")
	setInt(&cfg.Trade.BalanceRetries, "DMTRADER_TRADE_BALANCE_RETRIES")
	setInt(&cfg.Trade.ScanLimit, "DMTRADER_TRADE_SCAN_LIMIT")

	// ── Refresh ──
	setDuration(&cfg.Refresh.MaxAge, "DMTRADER_REFRESH_MAX_AGE")
	setDuration(&cfg.Refresh.Interval, "DMTRADER_REFRESH_INTERVAL")
	setInt(&cfg.Refresh.Workers, "DMTRADER_REFRESH_WORKERS")
	setInt(&cfg.Refresh.SalesPageLimit, "DMTRADER_REFRESH_SALES_PAGE_LIMIT")
	setInt(&cfg.Refresh.OfferPageLimit, "DMTRADER_REFRESH_OFFER_PAGE_LIMIT")
	setInt(&cfg.Refresh.OfferPageCap, "DMTRADER_REFRESH_OFFER_PAGE_CAP")
	setStringSlice(&cfg.Refresh.TitleDenylist, "DMTRADER_REFRESH_TITLE_DENYLIST")
	setBool(&cfg.Refresh.RefreshFees, "DMTRADER_REFRESH_FEES")

	// ── Markdown ──
	setDuration(&cfg.Markdown.MinAge, "DMTRADER_MARKDOWN_MIN_AGE")
	setInt(&cfg.Markdown.MinCompetingOffers, "DMTRADER_MARKDOWN_MIN_COMPETING_OFFERS")
	setFloat64(&cfg.Markdown.StepFactor, "DMTRADER_MARKDOWN_STEP_FACTOR")
	setFloat64(&cfg.Markdown.MinMarkup, "DMTRADER_MARKDOWN_MIN_MARKUP")
	setFloat64(&cfg.Markdown.FloorMarginPercent, "DMTRADER_MARKDOWN_FLOOR_MARGIN_PERCENT")
	setDuration(&cfg.Markdown.Interval, "DMTRADER_MARKDOWN_INTERVAL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DMTRADER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "DMTRADER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DMTRADER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DMTRADER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DMTRADER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DMTRADER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DMTRADER_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DMTRADER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DMTRADER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DMTRADER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "DMTRADER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "DMTRADER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DMTRADER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DMTRADER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DMTRADER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DMTRADER_REDIS_MAX_RETRIES")
	setDuration(&cfg.Redis.SeenTTL, "DMTRADER_REDIS_SEEN_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "DMTRADER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "DMTRADER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DMTRADER_S3_REGION")
	setStr(&cfg.S3.Bucket, "DMTRADER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DMTRADER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DMTRADER_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "DMTRADER_S3_FORCE_PATH_STYLE")

	// ── Report ──
	setStr(&cfg.Report.Dir, "DMTRADER_REPORT_DIR")
	setStr(&cfg.Report.NoDataTitles, "DMTRADER_REPORT_NO_DATA_TITLES")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DMTRADER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DMTRADER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DMTRADER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DMTRADER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "DMTRADER_MODE")
	setStr(&cfg.LogLevel, "DMTRADER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
