package worker

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/amqp"
)

type fakeProcessor struct {
	got []*amqp.ForecastRequestMessage
	err error
}

func (f *fakeProcessor) ProcessJob(_ context.Context, msg *amqp.ForecastRequestMessage) error {
	f.got = append(f.got, msg)
	return f.err
}

// fakeConsumer delivers its messages and then blocks until ctx is done.
type fakeConsumer struct {
	msgs    []*amqp.ForecastRequestMessage
	results []error
}

func (f *fakeConsumer) ConsumeForecastRequests(ctx context.Context, handler amqp.Handler) error {
	for _, m := range f.msgs {
		f.results = append(f.results, handler(ctx, m))
	}
	<-ctx.Done()
	return ctx.Err()
}

type fakeRuns struct {
	cutoff time.Time
	n      int
	err    error
}

func (f *fakeRuns) ResetStaleRuns(_ context.Context, olderThan time.Time) (int, error) {
	f.cutoff = olderThan
	return f.n, f.err
}

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestHandleForecastRequest(t *testing.T) {
	var buf bytes.Buffer
	proc := &fakeProcessor{}
	w := NewForecastWorker(nil, proc, nil, 0, testLogger(&buf))

	msg := amqp.NewForecastRequestMessage("run-1", "alice", "ensemble", 3, 12)
	require.NoError(t, w.HandleForecastRequest(context.Background(), msg))
	require.Len(t, proc.got, 1)
	assert.Same(t, msg, proc.got[0])
	assert.Contains(t, buf.String(), "run_id=run-1")
	assert.Contains(t, buf.String(), "component=worker")
}

func TestHandleForecastRequestError(t *testing.T) {
	var buf bytes.Buffer
	proc := &fakeProcessor{err: errors.New("database is locked")}
	w := NewForecastWorker(nil, proc, nil, 0, testLogger(&buf))

	err := w.HandleForecastRequest(context.Background(), amqp.NewForecastRequestMessage("run-2", "bob", "linear", 1, 12))
	require.Error(t, err)
	assert.ErrorContains(t, err, "run-2")
	assert.ErrorIs(t, err, proc.err)
	assert.Contains(t, buf.String(), "level=ERROR")
}

func TestRecoverStaleRuns(t *testing.T) {
	runs := &fakeRuns{n: 2}
	w := NewForecastWorker(nil, nil, runs, time.Hour, nil)

	n, err := w.RecoverStaleRuns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.WithinDuration(t, time.Now().Add(-time.Hour), runs.cutoff, 5*time.Second)

	disabled := NewForecastWorker(nil, nil, nil, time.Hour, nil)
	n, err = disabled.RecoverStaleRuns(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	failing := NewForecastWorker(nil, nil, &fakeRuns{err: errors.New("disk I/O error")}, time.Hour, nil)
	_, err = failing.RecoverStaleRuns(context.Background())
	assert.ErrorContains(t, err, "reset stale runs")
}

func TestRunConsumesUntilCancelled(t *testing.T) {
	proc := &fakeProcessor{}
	consumer := &fakeConsumer{msgs: []*amqp.ForecastRequestMessage{
		amqp.NewForecastRequestMessage("a", "alice", "linear", 1, 12),
		amqp.NewForecastRequestMessage("b", "alice", "sarimax", 2, 12),
	}}
	runs := &fakeRuns{}
	w := NewForecastWorker(consumer, proc, runs, 30*time.Minute, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := w.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, proc.got, 2)
	assert.Equal(t, []error{nil, nil}, consumer.results)
	assert.False(t, runs.cutoff.IsZero(), "stale runs are recovered before consuming")
}
