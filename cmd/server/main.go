// Package main is the GradeHub service entry point.
//
// The server accepts signed push deliveries, grades them, runs the
// progression saga and relays the resulting events to observers connected
// over SSE. PostgreSQL and Redis are optional in development: without a
// database URL an in-process store is used, and with Redis disabled the
// ranking cache and event bus stay local.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/gamifyx/gradehub/config"
	"github.com/gamifyx/gradehub/internal/application/command"
	"github.com/gamifyx/gradehub/internal/application/eventhandler"
	"github.com/gamifyx/gradehub/internal/application/query"
	"github.com/gamifyx/gradehub/internal/application/saga"
	"github.com/gamifyx/gradehub/internal/domain/leaderboard"
	"github.com/gamifyx/gradehub/internal/domain/progression"
	"github.com/gamifyx/gradehub/internal/domain/shared"
	"github.com/gamifyx/gradehub/internal/domain/submission"
	"github.com/gamifyx/gradehub/internal/infrastructure/catalog"
	"github.com/gamifyx/gradehub/internal/infrastructure/messaging"
	"github.com/gamifyx/gradehub/internal/infrastructure/persistence/memory"
	"github.com/gamifyx/gradehub/internal/infrastructure/persistence/postgres"
	"github.com/gamifyx/gradehub/internal/infrastructure/persistence/redis"
	"github.com/gamifyx/gradehub/internal/infrastructure/realtime"
	"github.com/gamifyx/gradehub/internal/infrastructure/scheduler"
	"github.com/gamifyx/gradehub/internal/infrastructure/scheduler/jobs"
	"github.com/gamifyx/gradehub/internal/infrastructure/telemetry"
	httpserver "github.com/gamifyx/gradehub/internal/interface/http"
	"github.com/gamifyx/gradehub/internal/interface/http/handlers"
	"github.com/gamifyx/gradehub/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION & LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Info("starting GradeHub",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. TRACING
	// ─────────────────────────────────────────────────────────────────────────
	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: string(cfg.App.Environment),
		Version:     cfg.App.Version,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		SampleRatio: cfg.Telemetry.SampleRatio,
		Stdout:      cfg.Telemetry.StdoutTraces,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracer shutdown failed", logger.Err(err))
		}
	}()

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close()
	health.AddCheck("database", handlers.NewDatabaseCheck(store.pinger))

	if err := catalog.Seed(ctx, store.badges, cfg.Catalog.BadgeCatalogPath, log); err != nil {
		return fmt.Errorf("failed to seed badge catalog: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. CACHE & EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	var (
		rankingCache leaderboard.Cache
		bus          eventBus
	)
	if cfg.Redis.Disabled {
		log.Info("redis disabled, using in-process cache and event bus")
		rankingCache = memory.NewRankingCache(cfg.Ranking.CacheTTL)
		bus = messaging.NewInMemoryEventBus(localBusConfig(log))
	} else {
		cache, err := redis.NewCache(ctx, redisConfig(cfg.Redis))
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer func() { _ = cache.Close() }()
		health.AddCheck("cache", handlers.NewCacheCheck(cache))

		rankingCache = redis.NewRankingCache(cache, cfg.Ranking.CacheTTL)
		redisBus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         redis.NewPubSubClient(cache),
			LocalBusConfig: localBusConfig(log),
			Logger:         log,
		})
		if err != nil {
			return fmt.Errorf("failed to start event bus: %w", err)
		}
		log.Info("redis event bus started", logger.String("instance_id", redisBus.InstanceID()))
		bus = redisBus
	}
	defer func() { _ = bus.Close() }()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. APPLICATION
	// ─────────────────────────────────────────────────────────────────────────
	flags := cfg.Features
	log.Info("feature flags", logger.Any("enabled", flags.EnabledNames()))
	rankings := query.NewRankingService(store.standings, rankingCache, flags, log)

	flow := saga.NewProgressionFlowSaga(
		store.progress, store.badges, store.submissions,
		rankings, bus, flags, log,
		saga.ProgressionFlowConfig{
			MaxAttempts: cfg.Progression.MaxAttempts,
			StepTimeout: cfg.Progression.StepTimeout,
		},
	)

	push := command.NewProcessPushHandler(
		store.submissions, store.assignments, store.audits,
		flow, bus, flags, log,
		command.ProcessPushHandlerConfig{WebhookSecret: cfg.Webhook.Secret},
	)

	if cfg.Ranking.WarmInterval > 0 {
		sched := scheduler.New(scheduler.Config{Logger: log})
		warm := jobs.NewWarmRankingsJob(rankings, cfg.Ranking.WarmInterval, log)
		if err := sched.Register(warm, scheduler.Every(cfg.Ranking.WarmInterval)); err != nil {
			return err
		}
		if err := sched.StartWithInitialRun(ctx); err != nil {
			return err
		}
		defer func() { _ = sched.Stop() }()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. REALTIME
	// ─────────────────────────────────────────────────────────────────────────
	registry := realtime.NewMemoryRegistry()
	relay := eventhandler.NewRealtimeRelay(realtime.NewBroadcaster(registry, log), flags, log)
	if err := relay.Register(bus); err != nil {
		return fmt.Errorf("failed to register realtime relay: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	serverCfg := httpserver.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.AllowedOrigins = cfg.HTTP.CORSAllowedOrigins
	serverCfg.WebhookMaxBodyBytes = cfg.Webhook.MaxBodyBytes
	serverCfg.Heartbeat = cfg.Realtime.HeartbeatInterval
	serverCfg.ChannelBuffer = cfg.Realtime.ChannelBuffer
	serverCfg.ServiceName = cfg.Telemetry.ServiceName
	serverCfg.Version = cfg.App.Version

	server := httpserver.NewServer(serverCfg, httpserver.Dependencies{
		PushHandler:           push,
		GetLeaderboardHandler: query.NewGetLeaderboardHandler(rankings, cfg.Ranking.DefaultLimit),
		Registry:              registry,
		TokenVerifier:         realtime.NewTokenVerifier(cfg.Realtime.JWTSecret),
		HealthChecker:         health,
		Logger:                log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 8. RUN UNTIL SIGNALLED
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown", logger.Duration("timeout", cfg.App.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shutdown completed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRING HELPERS
// ══════════════════════════════════════════════════════════════════════════════

type eventBus interface {
	shared.EventPublisher
	shared.EventSubscriber
	Close() error
}

func localBusConfig(log *logger.Logger) messaging.InMemoryEventBusConfig {
	cfg := messaging.DefaultInMemoryEventBusConfig()
	cfg.Logger = log
	return cfg
}

// storage groups the repositories behind one backend.
type storage struct {
	submissions submission.Repository
	assignments submission.AssignmentRepository
	audits      submission.AuditRepository
	progress    progression.Repository
	badges      progression.BadgeRepository
	standings   leaderboard.Repository
	pinger      handlers.Pinger
	close       func()
}

func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (*storage, error) {
	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store")
		s := memory.NewStore()
		return &storage{
			submissions: s,
			assignments: s.Assignments(),
			audits:      s,
			progress:    s,
			badges:      s,
			standings:   s,
			pinger:      s,
			close:       func() {},
		}, nil
	}

	conn, err := postgres.NewConnection(ctx, cfg.Database.URL, postgres.Options{
		MaxConns:          int32(cfg.Database.MaxOpenConns),
		MinConns:          int32(cfg.Database.MaxIdleConns),
		MaxConnLifetime:   cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime:   cfg.Database.ConnMaxIdleTime,
		HealthCheckPeriod: time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("database connection established")

	if cfg.Database.AutoMigrate {
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	return &storage{
		submissions: postgres.NewSubmissionRepository(conn),
		assignments: postgres.NewAssignmentRepository(conn),
		audits:      postgres.NewAuditRepository(conn),
		progress:    postgres.NewProgressionRepository(conn),
		badges:      postgres.NewBadgeRepository(conn),
		standings:   postgres.NewLeaderboardRepository(conn),
		pinger:      conn,
		close:       conn.Close,
	}, nil
}

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.URL = c.URL
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	rc.PoolSize = c.PoolSize
	rc.MinIdleConns = c.MinIdleConns
	rc.DialTimeout = c.DialTimeout
	rc.ReadTimeout = c.ReadTimeout
	rc.WriteTimeout = c.WriteTimeout
	return rc
}

// setupLogger picks console output for development and JSON elsewhere.
func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	opts.Format = logger.Format(cfg.Observability.LogFormat)
	if cfg.IsDevelopment() && cfg.Observability.LogFormat == "" {
		opts.Format = logger.FormatConsole
	}
	return logger.New(opts).With(logger.String("service", cfg.App.Name))
}
