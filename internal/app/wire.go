package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/analysis"
	s3blob "github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/blob/s3"
	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/cache/memory"
	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/cache/redis"
	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/config"
	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/notify"
	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/server/handler"
	memstore "github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/store/memory"
	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/store/postgres"
)

// PredictionStore is a prediction store that can also feed snapshot exports.
type PredictionStore interface {
	domain.PredictionStore
	s3blob.PredictionSource
}

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	Location *time.Location

	// Stores
	IndustryStore   domain.IndustryStore
	PredictionStore PredictionStore
	AuditStore      domain.AuditStore

	// Caches. RateLimiter and LockManager are nil in ephemeral mode.
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Exporter and Exports are nil unless S3 is enabled.
	Exporter domain.Exporter
	Exports  domain.BlobReader

	Analyzer *analysis.Client
	Notifier *notify.Notifier

	// Pingers are the backing services reported by the health endpoint.
	Pingers map[string]handler.Pinger
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, fmt.Errorf("wire: %w", err)
	}

	deps := &Dependencies{
		Location: loc,
		Pingers:  map[string]handler.Pinger{},
	}

	// upstream is the cross-replica analysis budget; nil in ephemeral mode.
	var upstream domain.RateLimiter

	if cfg.Ephemeral {
		logger.WarnContext(ctx, "ephemeral mode: data lives in memory and is lost on exit")
		store := memstore.New(loc)
		deps.IndustryStore = store.Industries()
		deps.PredictionStore = store.Predictions()
		deps.AuditStore = store.Audit()
		deps.SignalBus = memory.NewBus(int(cfg.Redis.StreamLen))
	} else {
		// --- PostgreSQL ---
		pgClient, err := postgres.New(ctx, postgresConfig(cfg))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			applied, err := pgClient.RunMigrations(ctx)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
			if len(applied) > 0 {
				logger.InfoContext(ctx, "applied migrations", slog.Any("files", applied))
			}
		}

		pool := pgClient.Pool()
		deps.IndustryStore = postgres.NewIndustryStore(pool)
		deps.PredictionStore = postgres.NewPredictionStore(pool, loc)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Pingers["postgres"] = pgClient

		// --- Redis ---
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		if cfg.Analysis.RequestsPerMinute > 0 {
			upstream = redis.NewRateLimiter(redisClient).WithWaitLimit(cfg.Analysis.RequestsPerMinute, time.Minute)
		}
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBusWithMaxLen(redisClient, cfg.Redis.StreamLen)
		deps.Pingers["redis"] = redisClient
	}

	// --- S3 export bucket ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Exporter = s3blob.NewExporter(
			s3blob.NewWriter(s3Client),
			deps.PredictionStore,
			deps.IndustryStore,
			deps.AuditStore,
		)
		deps.Exports = s3blob.NewReader(s3Client)
		deps.Pingers["s3"] = s3Client
	}

	// --- Upstream analysis server ---
	deps.Analyzer = analysis.NewClient(analysis.ClientConfig{
		BaseURL:           cfg.Analysis.BaseURL,
		ConnectTimeout:    cfg.Analysis.ConnectTimeout.Duration,
		ReadTimeout:       cfg.Analysis.ReadTimeout.Duration,
		WriteTimeout:      cfg.Analysis.WriteTimeout.Duration,
		CacheTTL:          cfg.Analysis.CacheTTL.Duration,
		RequestsPerMinute: cfg.Analysis.RequestsPerMinute,
	}, logger)
	if upstream != nil {
		deps.Analyzer.WithSharedLimiter(upstream)
	}

	// --- Notifications ---
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
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.Cooldown.Duration, logger)

	return deps, cleanup, nil
}

// Migrate connects to Postgres and applies pending migrations without wiring
// anything else.
func Migrate(ctx context.Context, cfg *config.Config) ([]string, error) {
	pgClient, err := postgres.New(ctx, postgresConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	defer pgClient.Close()
	return pgClient.RunMigrations(ctx)
}

func postgresConfig(cfg *config.Config) postgres.ClientConfig {
	return postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	}
}
