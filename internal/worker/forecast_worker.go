package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/amqp"
	applog "fintrack/internal/log"
)

// JobProcessor computes one queued forecast. *services.ForecastService
// implements it.
type JobProcessor interface {
	ProcessJob(ctx context.Context, msg *amqp.ForecastRequestMessage) error
}

// Consumer delivers forecast requests until ctx is done. *amqp.Client
// implements it.
type Consumer interface {
	ConsumeForecastRequests(ctx context.Context, handler amqp.Handler) error
}

// StaleRunResetter fails runs that a crashed worker left in the running
// state. *storage.SQLiteRepository implements it.
type StaleRunResetter interface {
	ResetStaleRuns(ctx context.Context, olderThan time.Time) (int, error)
}

// ForecastWorker consumes forecast requests from AMQP and hands them to the
// forecast service.
type ForecastWorker struct {
	consumer   Consumer
	processor  JobProcessor
	runs       StaleRunResetter
	staleAfter time.Duration
	logger     *applog.Logger
}

// NewForecastWorker wires a worker. runs may be nil, which disables stale run
// recovery.
func NewForecastWorker(consumer Consumer, processor JobProcessor, runs StaleRunResetter, staleAfter time.Duration, logger *slog.Logger) *ForecastWorker {
	return &ForecastWorker{
		consumer:   consumer,
		processor:  processor,
		runs:       runs,
		staleAfter: staleAfter,
		logger:     applog.FromSlog(logger, applog.ComponentWorker),
	}
}

// HandleForecastRequest processes a single forecast request message from AMQP
func (w *ForecastWorker) HandleForecastRequest(ctx context.Context, msg *amqp.ForecastRequestMessage) error {
	logger := w.logger.WithFields(applog.NewFields().
		WithRun(msg.RunID).
		WithForecast(msg.UserID, msg.Model, msg.Horizon))

	logger.InfoContext(ctx, "Processing forecast request",
		"queued_for", time.Since(msg.Timestamp).Round(time.Millisecond))

	start := time.Now()
	if err := w.processor.ProcessJob(ctx, msg); err != nil {
		logger.LogError(ctx, "Forecast request failed", err, applog.OpProcess, applog.ErrorTypeInternal)
		return fmt.Errorf("process forecast run %s: %w", msg.RunID, err)
	}

	logger.InfoContext(ctx, "Forecast request handled", "elapsed", time.Since(start))
	return nil
}

// RecoverStaleRuns fails runs stuck in the running state for longer than the
// configured age. This is a backup for messages lost with a crashed worker.
func (w *ForecastWorker) RecoverStaleRuns(ctx context.Context) (int, error) {
	if w.runs == nil || w.staleAfter <= 0 {
		return 0, nil
	}
	n, err := w.runs.ResetStaleRuns(ctx, time.Now().Add(-w.staleAfter))
	if err != nil {
		return 0, fmt.Errorf("reset stale runs: %w", err)
	}
	if n > 0 {
		w.logger.WarnContext(ctx, "Marked abandoned forecast runs as failed", applog.FieldCount, n)
	}
	return n, nil
}

// Run recovers stale runs and then consumes until ctx is cancelled.
func (w *ForecastWorker) Run(ctx context.Context) error {
	if _, err := w.RecoverStaleRuns(ctx); err != nil {
		w.logger.LogError(ctx, "Stale run recovery failed", err, applog.OpStartup, applog.ErrorTypeDatabase)
	}
	w.logger.InfoContext(ctx, "Forecast worker started")
	return w.consumer.ConsumeForecastRequests(ctx, w.HandleForecastRequest)
}
