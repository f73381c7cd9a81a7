package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/signalhub/internal/blob/s3"
	"github.com/alanyoungcy/signalhub/internal/cache/redis"
	"github.com/alanyoungcy/signalhub/internal/config"
	"github.com/alanyoungcy/signalhub/internal/domain"
	"github.com/alanyoungcy/signalhub/internal/events"
	"github.com/alanyoungcy/signalhub/internal/notify"
	"github.com/alanyoungcy/signalhub/internal/price"
	"github.com/alanyoungcy/signalhub/internal/producer"
	"github.com/alanyoungcy/signalhub/internal/server/handler"
	"github.com/alanyoungcy/signalhub/internal/service"
	"github.com/alanyoungcy/signalhub/internal/store/memory"
	"github.com/alanyoungcy/signalhub/internal/store/postgres"
)

// Dependencies bundles every store, cache and service the modes run. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	PositionStore     domain.PositionStore
	SignalStore       domain.SignalStore
	TransmissionStore domain.TransmissionStore
	ConnectionStore   domain.ConnectionStore
	AuditStore        domain.AuditStore

	// Shared state. In-process implementations when Redis is disabled.
	PriceCache   domain.PriceCache
	SignalBus    domain.SignalBus
	PendingQueue domain.PendingQueue
	RateLimiter  domain.RateLimiter // nil without Redis
	LockManager  domain.LockManager // nil without Redis

	Dispatcher *notify.Dispatcher
	Registry   *service.ClientRegistry
	Positions  *service.PositionService
	Signals    *service.SignalService
	Monitor    *service.ThresholdMonitor
	Producers  *service.ProducerRunner // nil when no producer is enabled
	Archiver   *s3blob.Archiver        // nil when archiving is disabled

	// HealthChecks backs GET /api/health.
	HealthChecks map[string]handler.Check
}

// Wire constructs every concrete dependency from cfg and returns them with a
// cleanup function that releases connections in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	deps := &Dependencies{HealthChecks: map[string]handler.Check{}}

	// ---- Stores ----
	switch cfg.Storage.Driver {
	case "postgres":
		pg, err := postgres.New(ctx, postgres.ClientConfig{
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
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			applied, err := pg.RunMigrations(ctx)
			if err != nil {
				return fail(fmt.Errorf("wire: migrations: %w", err))
			}
			logger.InfoContext(ctx, "postgres migrations applied", slog.Int("count", len(applied)))
		}

		stores := pg.Stores()
		deps.PositionStore = stores.Positions
		deps.SignalStore = stores.Signals
		deps.TransmissionStore = stores.Transmissions
		deps.ConnectionStore = stores.Connections
		deps.AuditStore = stores.Audit
		deps.HealthChecks["postgres"] = func(ctx context.Context) error {
			return pg.Pool().Ping(ctx)
		}
		logger.InfoContext(ctx, "postgres stores wired")
	default:
		deps.PositionStore = memory.NewPositionStore()
		deps.SignalStore = memory.NewSignalStore()
		deps.TransmissionStore = memory.NewTransmissionStore()
		deps.ConnectionStore = memory.NewConnectionStore()
		deps.AuditStore = memory.NewAuditStore()
		logger.InfoContext(ctx, "in-memory stores wired")
	}

	// ---- Shared state ----
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			MaxRetries:  cfg.Redis.MaxRetries,
			TLSEnabled:  cfg.Redis.TLSEnabled,
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.PriceCache = redis.NewPriceCache(rc)
		deps.SignalBus = redis.NewSignalBus(rc)
		deps.PendingQueue = redis.NewPendingQueue(rc, cfg.Signals.Expiry.Duration)
		deps.RateLimiter = redis.NewRateLimiter(rc)
		deps.LockManager = redis.NewLockManager(rc)
		deps.HealthChecks["redis"] = rc.Ping
		logger.InfoContext(ctx, "redis shared state wired", slog.String("addr", cfg.Redis.Addr))
	} else {
		deps.PriceCache = memory.NewPriceCache()
		deps.SignalBus = memory.NewSignalBus()
		deps.PendingQueue = memory.NewPendingQueue()
	}

	broadcaster := events.NewBroadcaster(deps.SignalBus, logger)

	// ---- Delivery ----
	deps.Registry = service.NewClientRegistry(
		deps.ConnectionStore, deps.PendingQueue, deps.SignalStore,
		cfg.Clients.HeartbeatTimeout.Duration, logger,
	)
	deps.Dispatcher = notify.NewDispatcher(deps.TransmissionStore, cfg.Dispatch.Timeout.Duration, logger)
	registerChannels(deps.Dispatcher, cfg, broadcaster, deps.Registry, logger)

	// ---- Services ----
	deps.Positions = service.NewPositionService(deps.PositionStore, broadcaster, deps.AuditStore, logger)
	deps.Signals = service.NewSignalService(deps.SignalStore, broadcaster, deps.Dispatcher, deps.Registry, logger)

	prices, err := priceProvider(cfg, deps.PriceCache, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: price provider: %w", err))
	}
	deps.Monitor = service.NewThresholdMonitor(deps.Positions, deps.Signals, prices, deps.Dispatcher, logger)

	if cfg.Producer.Enabled {
		deps.Producers = service.NewProducerRunner(deps.Signals, logger,
			producer.NewHTTP(cfg.Producer.URL, cfg.Producer.APIKey, cfg.Dispatch.Timeout.Duration),
		)
	}

	// ---- Archive ----
	if cfg.Archive.Enabled {
		blob, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(blob, 0),
			deps.TransmissionStore,
			deps.PositionStore,
			deps.AuditStore,
		)
		deps.HealthChecks["s3"] = blob.Health
		logger.InfoContext(ctx, "s3 archive wired", slog.String("bucket", blob.Bucket()))
	}

	return deps, cleanup, nil
}

// registerChannels registers the delivery channels named in cfg. Chat
// channels without credentials get a recording stand-in so the transmission
// log still shows the attempt.
func registerChannels(
	d *notify.Dispatcher,
	cfg *config.Config,
	publisher events.Publisher,
	registry *service.ClientRegistry,
	logger *slog.Logger,
) {
	retry := notify.WithRetry(cfg.Dispatch.RetryAttempts, cfg.Dispatch.RetryBackoff.Duration)

	for _, name := range cfg.Dispatch.Channels {
		switch strings.ToLower(name) {
		case "live":
			d.Register(notify.NewLiveAdapter(publisher))
		case "polling":
			d.Register(notify.NewPollingAdapter(registry))
		case "telegram", "discord":
			sender := chatSender(cfg, strings.ToLower(name))
			if _, standIn := sender.(*notify.FixedSender); standIn {
				logger.Warn("chat credentials missing, using stand-in sender", slog.String("channel", name))
			}
			d.Register(notify.NewChatAdapter(sender), retry)
		}
	}
	logger.Info("delivery channels registered", slog.Any("channels", d.Channels()))

	if alert := strings.ToLower(cfg.Notify.AlertChannel); alert != "" {
		d.SetObserver(notify.NewFailureAlerter(chatSender(cfg, alert), cfg.Notify.AlertAfter, logger))
		logger.Info("failure alerts enabled",
			slog.String("alert_channel", alert),
			slog.Int("alert_after", cfg.Notify.AlertAfter),
		)
	}
}

// chatSender builds the sender for a chat platform, or a recording stand-in
// when its credentials are missing.
func chatSender(cfg *config.Config, platform string) notify.ChatSender {
	switch platform {
	case "telegram":
		if cfg.Notify.TelegramToken != "" {
			return notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, cfg.Notify.TelegramBaseURL)
		}
	case "discord":
		if cfg.Notify.DiscordWebhookURL != "" {
			return notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL, cfg.Notify.DiscordUsername)
		}
	}
	return notify.NewFixedSender(platform, nil)
}

// priceProvider builds the monitor's price source.
func priceProvider(cfg *config.Config, cache domain.PriceCache, logger *slog.Logger) (domain.PriceProvider, error) {
	switch cfg.Monitor.PriceSource {
	case "static":
		static, err := price.NewStatic(cfg.Monitor.StaticPrices)
		if err != nil {
			return nil, err
		}
		return static, nil
	case "cache":
		// Quotes older than a few monitor intervals are treated as missing.
		return price.NewCache(cache, 3*cfg.Monitor.Interval.Duration), nil
	default:
		return price.NewYahoo(cache, logger), nil
	}
}
