package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/InsuranceDashboard/internal/cache"
	"github.com/JonMunkholm/InsuranceDashboard/internal/config"
	"github.com/JonMunkholm/InsuranceDashboard/internal/core"
	"github.com/JonMunkholm/InsuranceDashboard/internal/core/entities"
	"github.com/JonMunkholm/InsuranceDashboard/internal/logging"
	"github.com/JonMunkholm/InsuranceDashboard/internal/web"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"upload_workers", cfg.Upload.MaxConcurrent,
		"upload_queue", cfg.Upload.QueueSize,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"status_cache", cfg.Redis.Enabled(),
	)

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	registry := entities.NewRegistry()
	store := core.NewPostgresStore(pool, registry, cfg.Database.BeginRetries)
	slog.Info("entities registered", "count", registry.Len(), "order", registry.Keys())

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	checks := map[string]web.HealthChecker{"database": store}

	var statusCache core.StatusCache
	if cfg.Redis.Enabled() {
		rc, err := cache.New(ctx, cfg.Redis)
		if err != nil {
			// The cache only accelerates status reads.
			slog.Warn("status cache unavailable, continuing without it", "addr", cfg.Redis.Addr, "error", err)
		} else {
			defer rc.Close()
			statusCache = rc
			checks["redis"] = rc
			slog.Info("status cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.StatusTTL)
		}
	}

	service, err := core.NewService(store, registry, core.Options{
		UploadDir:         cfg.Upload.Directory,
		AllowedExtensions: cfg.Upload.AllowedExtensions,
		MaxFileSize:       cfg.Upload.MaxFileSize,
		Workers:           cfg.Upload.MaxConcurrent,
		QueueSize:         cfg.Upload.QueueSize,
		BatchTimeout:      cfg.Upload.Timeout,
		StrictReferences:  cfg.Upload.StrictReferences,
		Audit: core.AuditRecorderConfig{
			RecordRejectedRows: cfg.Audit.RecordRejectedRows,
			FallbackPath:       cfg.Audit.FallbackPath,
			RetryAttempts:      cfg.Audit.RetryAttempts,
			RetryDelay:         cfg.Audit.RetryDelay,
			BreakerFailures:    cfg.Audit.BreakerFailures,
			BreakerTimeout:     cfg.Audit.BreakerTimeout,
			WriteTimeout:       cfg.Audit.WriteTimeout,
		},
		Cache:   statusCache,
		Metrics: core.NewMetrics(reg),
	})
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	// Batches left running by a previous process can never finish.
	if _, err := service.RecoverInterrupted(ctx); err != nil {
		slog.Error("failed to recover interrupted batches", "error", err)
	}
	service.Start()

	server := web.NewServer(service, cfg, web.Options{
		Gatherer: reg,
		Checks:   checks,
	})

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go service.StartUploadJanitor(jobCtx, core.JanitorConfig{
		Retention:     cfg.Upload.FileRetention,
		CheckInterval: cfg.Upload.JanitorInterval,
	})

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop taking requests first so no upload lands in a closed queue.
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown error", "error", err)
		}

		queue := service.QueueStatus()
		if queue.Active > 0 || queue.Pending > 0 {
			slog.Info("waiting for import batches", "active", queue.Active, "pending", queue.Pending)
		}
		if err := service.Shutdown(shutdownCtx); err != nil {
			slog.Warn("import batches did not finish in time", "error", err)
		} else {
			slog.Info("all import batches finished")
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		cancelJobs()
		os.Exit(1)
	}
	<-stopped
}
