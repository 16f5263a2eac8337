// Package cli provides common CLI initialization utilities shared by
// cmd/fintrack, cmd/forecast-worker, cmd/import-worker and cmd/fintrackctl.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fintrack/internal/config"
	"fintrack/internal/forecast"
	"fintrack/internal/storage"
)

// SetupLogger installs a text handler at the given level as the default
// logger and returns it.
func SetupLogger(level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *slog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// Bootstrap loads .env and config, then sets up logging at the configured
// level. It is the usual first line of a main function.
func Bootstrap() (*config.Config, *slog.Logger) {
	LoadEnvFile()
	logger := SetupLogger(slog.LevelInfo)
	cfg := LoadAndValidateConfig(logger)
	return cfg, SetupLogger(cfg.SlogLevel())
}

// InitSQLite initializes a SQLite repository with the given path.
// Returns the repository or exits the process on failure.
func InitSQLite(logger *slog.Logger, dbPath string) *storage.SQLiteRepository {
	sqliteRepo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return sqliteRepo
}

// ForecastOptions maps the forecasting settings onto model options.
func ForecastOptions(cfg *config.Config, logger *slog.Logger) forecast.Options {
	return forecast.Options{
		LinearTrials:  cfg.ForecastLinearTrials,
		XGBoostTrials: cfg.ForecastXGBoostTrials,
		Weighted:      cfg.ForecastWeightedEnsemble,
		IncludeForest: cfg.ForecastIncludeForest,
		Seed:          cfg.ForecastSeed,
		Parallelism:   cfg.ForecastParallelism,
		Logger:        logger,
	}
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *slog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
