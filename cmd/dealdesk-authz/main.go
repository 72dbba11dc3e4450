package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/dealdesk/pkg/api"
	"github.com/platinummonkey/dealdesk/pkg/audit"
	"github.com/platinummonkey/dealdesk/pkg/auth"
	"github.com/platinummonkey/dealdesk/pkg/chatidentity"
	"github.com/platinummonkey/dealdesk/pkg/config"
	"github.com/platinummonkey/dealdesk/pkg/observability"
	"github.com/platinummonkey/dealdesk/pkg/permissions"
	"github.com/platinummonkey/dealdesk/pkg/sharing"
	"github.com/platinummonkey/dealdesk/pkg/storage"
	"github.com/platinummonkey/dealdesk/pkg/tenancy"
	"github.com/platinummonkey/dealdesk/pkg/users"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dealdesk-authz: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("Starting DealDesk authorization service")

	db, err := storage.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := migrate(context.Background(), db); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	logger.Info("Database migrations applied")

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis URL: %w", err)
		}
		if cfg.Redis.Password != "" {
			redisOpts.Password = cfg.Redis.Password
		}
		redisOpts.DB = cfg.Redis.DB
		redisClient = redis.NewClient(redisOpts)
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.WithError(err).Warn("Redis unreachable, tenancy tree cache disabled")
			redisClient = nil
		} else {
			logger.Info("Redis connected, tenancy tree cache enabled")
		}
		cancel()
	}

	auditor, closeSinks, err := buildAuditor(db, cfg.Audit, logger)
	if err != nil {
		return fmt.Errorf("failed to set up audit sinks: %w", err)
	}
	defer closeSinks()

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
		metrics.CollectDBStats(db)
	}

	server := api.NewServer(api.Options{
		DB:      db,
		Redis:   redisClient,
		Cache:   cfg.Cache,
		Logger:  logger,
		Metrics: metrics,
		Auditor: auditor,
	})

	mainSrv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if metrics != nil {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthSrv := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	serveErr := make(chan error, 2)
	go func() {
		logger.WithField("addr", mainSrv.Addr).Info("API server listening")
		if err := mainSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("API server failed: %w", err)
		}
	}()
	go func() {
		logger.WithField("addr", healthSrv.Addr).Info("Health server listening")
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("health server failed: %w", err)
		}
	}()

	manager := observability.NewShutdownManager(logger, mainSrv, cfg.Server.ShutdownTimeout)
	manager.RegisterShutdownFunc(healthSrv.Shutdown)
	shutdownErr := make(chan error, 1)
	go func() {
		shutdownErr <- manager.WaitForShutdown()
	}()

	select {
	case err := <-serveErr:
		return err
	case err := <-shutdownErr:
		return err
	}
}

// migrate applies every component's schema in dependency order. Users come
// first since the other tables reference them.
func migrate(ctx context.Context, db *sql.DB) error {
	steps := []func(context.Context, *sql.DB) error{
		users.Migrate,
		auth.Migrate,
		permissions.Migrate,
		tenancy.Migrate,
		sharing.Migrate,
		chatidentity.Migrate,
		audit.Migrate,
	}
	for _, step := range steps {
		if err := step(ctx, db); err != nil {
			return err
		}
	}
	return nil
}

func buildAuditor(db *sql.DB, cfg config.AuditConfig, logger *observability.Logger) (*audit.Emitter, func(), error) {
	dbSink, err := audit.NewDBSink(db)
	if err != nil {
		return nil, nil, err
	}
	sinks := []audit.Sink{dbSink}
	if cfg.FilePath != "" {
		fileSink, err := audit.NewFileSink(cfg.FilePath)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, fileSink)
	}

	var sink audit.Sink = sinks[0]
	if len(sinks) > 1 {
		sink = audit.NewMultiSink(sinks...)
	}
	closeAll := func() {
		if err := sink.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close audit sinks")
		}
	}
	return audit.NewEmitter(sink, logger.Slog()), closeAll, nil
}
