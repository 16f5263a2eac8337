package main

import (
	"context"
	"errors"
	"os"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cli"
	"fintrack/internal/services"
	"fintrack/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap()
	logger.Info("Starting forecast-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the forecast worker")
		os.Exit(1)
	}

	// Runs and transactions are read from the same SQLite file the server uses.
	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	svc := services.NewForecastService(sqliteRepo, sqliteRepo, nil, services.ForecastServiceConfig{
		MaxHorizon: cfg.ForecastMaxHorizon,
		Timeout:    cfg.ForecastTimeout,
		Options:    cli.ForecastOptions(cfg, logger),
	}, logger)

	// A run still marked running after three timeouts belongs to a dead worker.
	staleAfter := 3 * cfg.ForecastTimeout
	forecastWorker := worker.NewForecastWorker(amqpClient, svc, sqliteRepo, staleAfter, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	logger.Info("Forecast worker configured",
		"queue", cfg.AMQPQueue,
		"stale_after", staleAfter,
		"parallelism", cfg.ForecastParallelism)

	if err := forecastWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
