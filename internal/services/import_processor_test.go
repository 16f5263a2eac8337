package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/sheets/memory"
)

func TestDefaultImportProcessorConfig(t *testing.T) {
	config := DefaultImportProcessorConfig()

	if config.Interval != 15*time.Minute {
		t.Errorf("expected Interval 15m, got %v", config.Interval)
	}
	if config.UserID != "default" {
		t.Errorf("expected UserID default, got %q", config.UserID)
	}
	if !config.MirrorDeletes {
		t.Error("expected MirrorDeletes to be enabled")
	}
}

func TestImportProcessor_IsRunning(t *testing.T) {
	processor := NewImportProcessor(nil, nil, DefaultImportProcessorConfig())

	if processor.IsRunning() {
		t.Error("processor should not be running initially")
	}
	if _, ok := processor.LastResult(); ok {
		t.Error("no result expected before the first import")
	}
}

func TestImportProcessor_StartTwice(t *testing.T) {
	processor := NewImportProcessor(nil, nil, DefaultImportProcessorConfig())

	processor.mu.Lock()
	processor.running = true
	processor.mu.Unlock()

	if err := processor.Start(context.Background()); err == nil {
		t.Error("expected error when starting already running processor")
	}
}

func TestImportProcessor_StopNotRunning(t *testing.T) {
	processor := NewImportProcessor(nil, nil, DefaultImportProcessorConfig())

	if err := processor.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}

func TestImportProcessor_InvalidInterval(t *testing.T) {
	processor := NewImportProcessor(memory.New(), newRepo(t), ImportProcessorConfig{UserID: "alice"})
	assert.Error(t, processor.Start(context.Background()))
	assert.False(t, processor.IsRunning())
}

func TestImportOnceUpsertsAndMirrorsDeletes(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	start := core.MonthKey{Year: 2024, Month: time.January}

	stale := monthly("default", start.AddMonths(-6), 1, "99")
	_, err := repo.UpsertTransactions(ctx, stale)
	require.NoError(t, err)

	// Rows come from the sheet under another owner; the processor re-owns them.
	source := memory.New(monthly("sheet", start, 3, "25")...)
	processor := NewImportProcessor(sourceAs(source, "sheet"), repo, DefaultImportProcessorConfig())

	res, err := processor.ImportOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, "default", res.UserID)
	assert.Equal(t, 3, res.Read)
	assert.Equal(t, 3, res.Upserted)
	assert.Equal(t, 1, res.Deleted)

	txs, err := repo.ListTransactions(ctx, "default")
	require.NoError(t, err)
	require.Len(t, txs, 3)
	for _, tx := range txs {
		assert.Equal(t, "default", tx.UserID)
	}

	last, ok := processor.LastResult()
	require.True(t, ok)
	assert.Equal(t, res.Upserted, last.Upserted)

	// A second pass over the same rows is idempotent.
	res, err = processor.ImportOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Deleted)
	n, err := repo.CountTransactions(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestImportOnceKeepsRowsOnEmptySource(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	_, err := repo.UpsertTransactions(ctx, monthly("default", core.MonthKey{Year: 2024, Month: time.March}, 2, "10"))
	require.NoError(t, err)

	processor := NewImportProcessor(memory.New(), repo, DefaultImportProcessorConfig())
	res, err := processor.ImportOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Deleted)

	n, err := repo.CountTransactions(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestImportOnceWithoutMirroring(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	_, err := repo.UpsertTransactions(ctx, monthly("default", core.MonthKey{Year: 2023, Month: time.March}, 1, "10"))
	require.NoError(t, err)

	config := DefaultImportProcessorConfig()
	config.MirrorDeletes = false
	source := memory.New(monthly("default", core.MonthKey{Year: 2024, Month: time.March}, 2, "10")...)
	processor := NewImportProcessor(source, repo, config)

	res, err := processor.ImportOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Deleted)

	n, err := repo.CountTransactions(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestImportOnceSourceError(t *testing.T) {
	processor := NewImportProcessor(failingSource{}, newRepo(t), DefaultImportProcessorConfig())
	_, err := processor.ImportOnce(context.Background())
	assert.ErrorContains(t, err, "read source")

	_, err = NewImportProcessor(nil, nil, DefaultImportProcessorConfig()).ImportOnce(context.Background())
	assert.Error(t, err)
}

func TestImportProcessor_StartStop(t *testing.T) {
	source := &countingSource{Store: memory.New(monthly("default", core.MonthKey{Year: 2024, Month: time.January}, 2, "10")...)}
	config := DefaultImportProcessorConfig()
	config.Interval = 20 * time.Millisecond
	processor := NewImportProcessor(source, newRepo(t), config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, processor.Start(ctx))
	assert.True(t, processor.IsRunning())

	require.Eventually(t, func() bool { return source.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, processor.Stop(stopCtx))
	assert.False(t, processor.IsRunning())
}

// sourceAs serves the rows of owner regardless of the requested user, the
// way a single-ledger spreadsheet does.
func sourceAs(store *memory.Store, owner string) sourceFunc {
	return func(ctx context.Context, _ string) ([]core.Transaction, error) {
		return store.ListTransactions(ctx, owner)
	}
}

type sourceFunc func(ctx context.Context, userID string) ([]core.Transaction, error)

func (f sourceFunc) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	return f(ctx, userID)
}

type failingSource struct{}

func (failingSource) ListTransactions(context.Context, string) ([]core.Transaction, error) {
	return nil, errors.New("sheets api: 503")
}

type countingSource struct {
	*memory.Store
	calls atomic.Int32
}

func (c *countingSource) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	c.calls.Add(1)
	return c.Store.ListTransactions(ctx, userID)
}
