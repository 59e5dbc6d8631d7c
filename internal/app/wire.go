package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/giratech/dmtrader/internal/blob/s3"
	"github.com/giratech/dmtrader/internal/cache/memory"
	"github.com/giratech/dmtrader/internal/cache/redis"
	"github.com/giratech/dmtrader/internal/config"
	"github.com/giratech/dmtrader/internal/domain"
	"github.com/giratech/dmtrader/internal/engine"
	"github.com/giratech/dmtrader/internal/notify"
	"github.com/giratech/dmtrader/internal/platform/dmarket"
	"github.com/giratech/dmtrader/internal/store/postgres"
)

// Dependencies bundles the concrete implementations the operating modes run
// on. Venue is nil in markdown mode, which works purely off the store.
type Dependencies struct {
	Stats domain.StatsStore
	Inv   domain.InventoryStore
	Fees  domain.FeeStore
	Seen  domain.SeenOffers

	Venue    *dmarket.Client
	Uploader engine.Uploader
	Notifier *notify.Notifier
}

// needsVenue reports whether the mode talks to the venue API.
func needsVenue(mode string) bool {
	return strings.ToLower(mode) != "markdown"
}

// Wire constructs all dependencies from the configuration and returns them
// with a cleanup function to be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Stats = postgres.NewStatsStore(pool)
	deps.Inv = postgres.NewInventoryStore(pool)
	deps.Fees = postgres.NewFeeStore(pool)

	// Offer dedupe: Redis when configured, otherwise a bounded in-process
	// cache that resets with the process.
	seenTTL := cfg.Redis.SeenTTL.Duration
	if seenTTL <= 0 {
		seenTTL = 6 * time.Hour
	}
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Seen = redis.NewSeenCache(redisClient, seenTTL)
	} else {
		deps.Seen = memory.NewSeenCache(seenTTL)
	}

	if needsVenue(cfg.Mode) {
		signer, err := dmarket.NewSigner(cfg.Venue.PublicKey, cfg.Venue.SecretKey)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: venue signer: %w", err)
		}
		deps.Venue = dmarket.NewClient(cfg.Venue.BaseURL, signer, log)
	}

	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Uploader = s3blob.NewArchiver(s3Client, "reports")
	}

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.New(senders, cfg.Notify.Events, log)

	return deps, cleanup, nil
}
