package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fintrack/internal/backend"
	"fintrack/internal/cache"
	"fintrack/internal/cli"
	apphttp "fintrack/internal/http"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/services"
)

func main() {
	cfg, logger := cli.Bootstrap()
	logger.Info("Starting fintrack server", "backend", cfg.DataBackend, "port", cfg.Port)

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	b, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendConfig)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	// Typed nils must not leak into the service interfaces.
	var (
		runs services.RunStore
		jobs services.JobPublisher
	)
	checks := map[string]apphttp.CheckFunc{}
	if b.Repo != nil {
		runs = b.Repo
		checks["sqlite"] = b.Repo.Ping
	}
	if b.Jobs != nil {
		jobs = b.Jobs
		client := b.Jobs
		checks["amqp"] = func(context.Context) error {
			if !client.Healthy() {
				return errors.New("amqp connection unavailable")
			}
			return nil
		}
	}

	svcConfig := services.ForecastServiceConfig{
		MaxHorizon: cfg.ForecastMaxHorizon,
		Timeout:    cfg.ForecastTimeout,
		Options:    cli.ForecastOptions(cfg, logger),
		CacheSize:  cfg.ForecastCacheSize,
		CacheTTL:   cfg.ForecastCacheTTL,
	}
	svc := services.NewForecastService(b.Source, runs, jobs, svcConfig, logger)

	cacheManager := cache.NewManager()
	cacheManager.Register(svc.Cache())
	cacheManager.StartCleanup(time.Minute)
	defer cacheManager.Stop()

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		Logger:          logger,
		RateLimit:       ratelimit.DefaultConfig(),
		ReadinessChecks: checks,
		WriteTimeout:    cfg.ForecastTimeout + 30*time.Second,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})

	logger.Info("HTTP server listening",
		"addr", srv.Addr,
		"jobs_enabled", svc.JobsEnabled(),
		"history_enabled", runs != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
