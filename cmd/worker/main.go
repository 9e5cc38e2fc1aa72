// Package main - entry point for the MedCircle matching engine worker.
//
// The worker owns the full run lifecycle:
// - Weekly batch run every Monday morning (cron)
// - Watchdog sweep that fails runs with stale heartbeats
// - Group channel provisioning via the community platform
// - Operator HTTP surface for forced runs and run summaries
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/medcircle-hub/medcircle-match-engine/config"
	"github.com/medcircle-hub/medcircle-match-engine/internal/application/command"
	"github.com/medcircle-hub/medcircle-match-engine/internal/application/query"
	"github.com/medcircle-hub/medcircle-match-engine/internal/domain/matching"
	"github.com/medcircle-hub/medcircle-match-engine/internal/infrastructure/external/community"
	"github.com/medcircle-hub/medcircle-match-engine/internal/infrastructure/messaging"
	"github.com/medcircle-hub/medcircle-match-engine/internal/infrastructure/persistence/postgres"
	"github.com/medcircle-hub/medcircle-match-engine/internal/infrastructure/persistence/redis"
	"github.com/medcircle-hub/medcircle-match-engine/internal/infrastructure/scheduler"
	"github.com/medcircle-hub/medcircle-match-engine/internal/infrastructure/scheduler/jobs"
	"github.com/medcircle-hub/medcircle-match-engine/internal/infrastructure/service"
	httpapi "github.com/medcircle-hub/medcircle-match-engine/internal/interface/http"
	"github.com/medcircle-hub/medcircle-match-engine/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting MedCircle matching engine",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	dbConn, err := postgres.NewConnectionFromURLWithPool(ctx, cfg.Database.URL, postgres.PoolSettings{
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MinConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. MIGRATIONS
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Database.MigrateOnStart {
		log.Info("checking database migrations...")
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (run lock + summary cache)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to Redis...")
	redisCfg := redis.DefaultConfig()
	redisCfg.Host = cfg.Redis.Host
	redisCfg.Port = cfg.Redis.Port
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB
	redisCfg.PoolSize = cfg.Redis.PoolSize
	redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
	redisCfg.DialTimeout = cfg.Redis.DialTimeout
	redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
	redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

	// The run lock lives here, so Redis is a hard dependency.
	cache, err := redis.NewCache(redisCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer func() {
		log.Info("closing Redis connection...")
		_ = cache.Close()
	}()
	log.Info("Redis connection established")

	runLock := redis.NewRunLock(cache)
	summaryCache := redis.NewSummaryCache(cache)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	candidateRepo := postgres.NewCandidateRepository(dbConn)
	batchRepo := postgres.NewBatchRepository(dbConn)
	groupRepo := postgres.NewGroupRepository(dbConn)
	historyRepo := postgres.NewHistoryRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	eventBus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. APPLICATION HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing application handlers...")

	scorer, err := matching.NewScorer(cfg.Matching.FactorWeights)
	if err != nil {
		return fmt.Errorf("invalid factor weights: %w", err)
	}

	runConfig := command.RunBatchConfig{
		Formation: matching.FormationParams{
			MinGroupSize:    cfg.Matching.MinGroupSize,
			MaxGroupSize:    cfg.Matching.MaxGroupSize,
			TargetGroupSize: cfg.Matching.TargetGroupSize,
			MinEdgeScore:    matching.Score(cfg.Matching.MinEdgeScore),
			CooldownWeeks:   cfg.Matching.CooldownWeeks,
		},
		LockTTL:        cfg.Matching.LockTTL,
		PersistWorkers: cfg.Matching.PersistWorkers,
		WallClock:      cfg.Matching.WallClock,
	}

	runHandler, err := command.NewRunBatchHandler(
		candidateRepo,
		batchRepo,
		groupRepo,
		historyRepo,
		runLock,
		eventBus,
		service.NewIDGenerator(),
		scorer,
		runConfig,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to build run handler: %w", err)
	}

	stuckHandler := command.NewFailStuckRunsHandler(batchRepo, eventBus, log)
	summaryHandler := query.NewGetRunSummaryHandler(batchRepo, groupRepo, summaryCache)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. GROUP NOTIFIER (community platform)
	// ─────────────────────────────────────────────────────────────────────────
	var notifier matching.GroupLifecycleNotifier
	if cfg.Community.Disabled || cfg.Community.BaseURL == "" {
		log.Info("community platform disabled, using log notifier")
		notifier = service.NewLogNotifier(log)
	} else {
		log.Info("initializing community platform client...",
			"base_url", cfg.Community.BaseURL,
		)
		clientConfig := community.DefaultClientConfig(cfg.Community.BaseURL)
		clientConfig.APIToken = cfg.Community.APIToken
		clientConfig.Timeout = cfg.Community.RequestTimeout
		clientConfig.Logger = log
		notifier = service.NewGroupNotifier(community.NewClient(clientConfig), log)
	}

	if err := service.SubscribeGroupFormed(eventBus, notifier, log); err != nil {
		return fmt.Errorf("failed to subscribe notifier: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. SCHEDULER (weekly batch + watchdog)
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		log.Info("initializing scheduler...",
			"weekly_cron", cfg.Scheduler.WeeklyCron,
			"watchdog_interval", cfg.Scheduler.WatchdogInterval.String(),
		)

		weeklyCron, err := scheduler.ParseCronExpression(cfg.Scheduler.WeeklyCron)
		if err != nil {
			return fmt.Errorf("invalid weekly cron expression: %w", err)
		}

		schedConfig := scheduler.DefaultSchedulerConfig()
		schedConfig.Logger = log
		sched = scheduler.NewScheduler(schedConfig)

		if err := sched.Register(jobs.NewWeeklyMatchJob(runHandler, log), weeklyCron); err != nil {
			return fmt.Errorf("failed to register weekly match job: %w", err)
		}

		watchdog := jobs.NewWatchdogJob(stuckHandler, cfg.Scheduler.WatchdogBound, log)
		watchdogEvery := scheduler.NewIntervalSchedule(cfg.Scheduler.WatchdogInterval)
		if err := sched.Register(watchdog, watchdogEvery); err != nil {
			return fmt.Errorf("failed to register watchdog job: %w", err)
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		log.Warn("scheduler disabled, runs must be triggered via the HTTP API")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 11. HTTP SERVER (operator surface)
	// ─────────────────────────────────────────────────────────────────────────
	var httpServer *httpapi.Server
	var httpErrCh <-chan error
	if cfg.HTTP.Enabled {
		httpConfig := httpapi.DefaultConfig()
		httpConfig.Host = cfg.HTTP.Host
		httpConfig.Port = cfg.HTTP.Port
		httpConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
		httpConfig.OperatorKeys = cfg.HTTP.OperatorKeys

		httpServer = httpapi.NewServer(httpConfig, httpapi.Dependencies{
			RunBatchHandler:      runHandler,
			GetRunSummaryHandler: summaryHandler,
			HealthCheckers: []httpapi.HealthChecker{
				httpapi.NewNamedChecker("postgres", dbConn.Ping),
				httpapi.NewNamedChecker("redis", cache.Ping),
			},
			Logger: logger.New(logger.Options{
				Level: logger.ParseLevel(cfg.Observability.LogLevel),
			}),
		})

		log.Info("starting HTTP server", "address", httpConfig.Address())
		httpErrCh = httpServer.StartAsync()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 12. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("MedCircle matching engine is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-httpErrCh:
		if err != nil {
			log.Error("HTTP server failed", "error", err)
		}
	case <-ctx.Done():
		log.Info("root context cancelled")
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if sched != nil {
		if err := sched.Stop(); err != nil {
			log.Warn("scheduler stop failed", "error", err)
		}
	}
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP server shutdown failed", "error", err)
		}
	}

	log.Info("shutdown completed successfully")
	return nil
}

// setupLogger configures structured logging.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if cfg.App.Debug || cfg.Observability.LogLevel == "debug" {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		// JSON for log aggregators
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}
