package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/curvebot/internal/blob/s3"
	"github.com/alanyoungcy/curvebot/internal/cache/redis"
	"github.com/alanyoungcy/curvebot/internal/chain"
	"github.com/alanyoungcy/curvebot/internal/config"
	"github.com/alanyoungcy/curvebot/internal/domain"
	"github.com/alanyoungcy/curvebot/internal/notify"
	"github.com/alanyoungcy/curvebot/internal/server/handler"
	"github.com/alanyoungcy/curvebot/internal/service"
	"github.com/alanyoungcy/curvebot/internal/store/postgres"
	"github.com/alanyoungcy/curvebot/internal/wallet"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
// Optional infrastructure is left nil when disabled in config.
type Dependencies struct {
	Gateway *chain.Gateway

	// Stores (supabase.enabled)
	TokenStore domain.TokenStore
	AuditStore domain.AuditStore

	// Redis (redis.enabled)
	RateLimiter domain.RateLimiter
	SignalBus   domain.SignalBus

	// Blob storage (s3.enabled)
	Exporter *s3blob.HistoryExporter

	// Services
	Executor *service.TradeExecutor
	Market   *service.MarketService
	History  *service.HistoryAggregator
	Registry *service.RegistryService

	Notifier *notify.Notifier

	// HealthChecks probes every wired backend for GET /api/health.
	HealthChecks map[string]handler.Check
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
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{HealthChecks: make(map[string]handler.Check)}

	// --- Chain ---
	gw, err := chain.Dial(ctx, chain.Config{
		RPCURL:              cfg.Chain.RPCURL,
		ChainID:             cfg.Chain.ChainID,
		GasMultiplierPct:    cfg.Chain.GasMultiplierPct,
		ReceiptPollInterval: cfg.Chain.ReceiptPollInterval.Duration,
	}, logger.With(slog.String("component", "chain")))
	if err != nil {
		return fail("chain", err)
	}
	closers = append(closers, gw.Close)
	deps.Gateway = gw
	deps.HealthChecks["chain"] = func(ctx context.Context) error {
		_, err := gw.BlockNumber(ctx)
		return err
	}

	// --- PostgreSQL ---
	if cfg.Supabase.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			applied, err := pgClient.RunMigrations(ctx)
			if err != nil {
				return fail("postgres migrations", err)
			}
			if len(applied) > 0 {
				logger.InfoContext(ctx, "wire: migrations applied", slog.Any("versions", applied))
			}
		}

		pool := pgClient.Pool()
		deps.TokenStore = postgres.NewTokenStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.HealthChecks["postgres"] = pgClient.Ping
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			URL:        cfg.Redis.URL,
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.HealthChecks["redis"] = redisClient.Ping
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
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Services ---
	svcLogger := logger.With(slog.String("component", "service"))
	resolver := wallet.NewResolver(gw.ChainID())

	deps.Market = service.NewMarketService(gw, svcLogger)
	deps.History = service.NewHistoryAggregator(gw, cfg.Trading.HistoryWindow, svcLogger)

	exec := service.NewTradeExecutor(gw, resolver, svcLogger).
		WithEvents(deps.SignalBus, deps.AuditStore)
	if deps.RateLimiter != nil && cfg.Trading.RateLimit > 0 {
		exec = exec.WithRateLimit(deps.RateLimiter, cfg.Trading.RateLimit, cfg.Trading.RateWindow.Duration)
	}
	if deps.Notifier.Enabled() {
		exec = exec.WithNotifier(deps.Notifier)
	}
	deps.Executor = exec

	if deps.TokenStore != nil {
		deps.Registry = service.NewRegistryService(deps.TokenStore, gw, deps.AuditStore, svcLogger)
	}

	// --- S3 history export ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.Exporter = s3blob.NewHistoryExporter(
			deps.History,
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.AuditStore,
			logger.With(slog.String("component", "exporter")),
		)
		deps.HealthChecks["s3"] = s3Client.Health
	}

	return deps, cleanup, nil
}

// operatorSecret reads the configured operator key on every call so the
// decrypted secret is never held between requests.
func operatorSecret(cfg *config.Config) handler.SecretLoader {
	kc := cfg.KeyConfig()
	return func() (string, error) {
		return wallet.LoadSecret(kc)
	}
}
