package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fintrack/internal/sheets"
)

// ImportTarget receives imported transactions. *storage.SQLiteRepository
// implements it.
type ImportTarget interface {
	sheets.TransactionWriter
	DeleteTransactionsNotIn(ctx context.Context, userID string, keep []string) (int, error)
}

// ImportProcessorConfig holds configuration for the import processor
type ImportProcessorConfig struct {
	// Interval is how often the source is read (default: 15m)
	Interval time.Duration

	// UserID owns the imported rows (default: "default")
	UserID string

	// MirrorDeletes removes target rows that disappeared from the source (default: true)
	MirrorDeletes bool
}

func DefaultImportProcessorConfig() ImportProcessorConfig {
	return ImportProcessorConfig{
		Interval:      15 * time.Minute,
		UserID:        "default",
		MirrorDeletes: true,
	}
}

// ImportResult describes one import pass.
type ImportResult struct {
	UserID   string        `json:"user_id"`
	Read     int           `json:"read"`
	Upserted int           `json:"upserted"`
	Deleted  int           `json:"deleted"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}

// ImportProcessor periodically copies a user's ledger from a read-only
// source (the spreadsheet) into the local store.
type ImportProcessor struct {
	source sheets.TransactionSource
	target ImportTarget
	config ImportProcessorConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	last    *ImportResult
}

func NewImportProcessor(source sheets.TransactionSource, target ImportTarget, config ImportProcessorConfig) *ImportProcessor {
	return &ImportProcessor{
		source: source,
		target: target,
		config: config,
	}
}

// ImportOnce runs a single import pass.
func (p *ImportProcessor) ImportOnce(ctx context.Context) (ImportResult, error) {
	if p.source == nil || p.target == nil {
		return ImportResult{}, errors.New("import processor is not configured")
	}
	start := time.Now()
	res := ImportResult{UserID: p.config.UserID, At: start}

	txs, err := p.source.ListTransactions(ctx, p.config.UserID)
	if err != nil {
		return res, fmt.Errorf("read source: %w", err)
	}
	res.Read = len(txs)
	for i := range txs {
		txs[i].UserID = p.config.UserID
	}

	if res.Upserted, err = p.target.UpsertTransactions(ctx, txs); err != nil {
		return res, fmt.Errorf("upsert transactions: %w", err)
	}

	switch {
	case !p.config.MirrorDeletes:
	case len(txs) == 0:
		// An empty read is more likely a misconfigured sheet than an empty ledger.
		slog.WarnContext(ctx, "Source returned no transactions, keeping existing rows",
			"user_id", p.config.UserID)
	default:
		keep := make([]string, len(txs))
		for i, tx := range txs {
			keep[i] = tx.ID
		}
		if res.Deleted, err = p.target.DeleteTransactionsNotIn(ctx, p.config.UserID, keep); err != nil {
			return res, fmt.Errorf("mirror deletions: %w", err)
		}
	}

	res.Duration = time.Since(start)
	p.mu.Lock()
	p.last = &res
	p.mu.Unlock()

	slog.InfoContext(ctx, "Import completed",
		"user_id", res.UserID,
		"read", res.Read,
		"upserted", res.Upserted,
		"deleted", res.Deleted,
		"duration", res.Duration)
	return res, nil
}

// Start begins the import loop. Returns an error if already running.
func (p *ImportProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("import processor is already running")
	}
	if p.config.Interval <= 0 {
		p.mu.Unlock()
		return fmt.Errorf("invalid import interval %v", p.config.Interval)
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Import processor started",
		"interval", p.config.Interval,
		"user_id", p.config.UserID)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *ImportProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Import processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Import processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

func (p *ImportProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// LastResult returns the most recent successful pass, if any.
func (p *ImportProcessor) LastResult() (ImportResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return ImportResult{}, false
	}
	return *p.last, true
}

func (p *ImportProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	// Import immediately on startup
	p.tick(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *ImportProcessor) tick(ctx context.Context) {
	if _, err := p.ImportOnce(ctx); err != nil {
		slog.ErrorContext(ctx, "Import failed", "error", err, "user_id", p.config.UserID)
	}
}
