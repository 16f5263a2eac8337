package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Component: ComponentForecast, Output: &buf})
	l.Info("Model selected", FieldModel, "linear")

	out := buf.String()
	assert.Contains(t, out, "component=forecast")
	assert.Contains(t, out, "model=linear")
	assert.Equal(t, ComponentForecast, l.Component())
}

func TestLoggerWithComponentReplaces(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Component: ComponentApp, Output: &buf}).With(FieldUserID, "alice").WithComponent(ComponentStorage)
	l.Info("hello")

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "component="), out)
	assert.Contains(t, out, "component=storage")
	assert.Contains(t, out, "user_id=alice")
}

func TestLoggerJSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelWarn, Format: "json", Output: &buf})
	l.Info("dropped")
	l.LogError(context.Background(), "failed", errors.New("boom"), OpForecast, ErrorTypeInternal)

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"operation":"forecast"`)
	assert.Contains(t, out, `"component":"app"`)
}

func TestLogFields(t *testing.T) {
	f := NewFields().
		WithComponent(ComponentHTTP).
		WithForecast("alice", "sarimax", 3).
		WithRun("").
		WithRequestID("req_1").
		WithError(nil).
		WithHTTPResponse(422, 15)

	assert.Equal(t, "alice", f[FieldUserID])
	assert.Equal(t, 3, f[FieldHorizon])
	assert.Equal(t, false, f[FieldSuccess])
	assert.NotContains(t, f, FieldRunID)
	assert.NotContains(t, f, FieldError)
	assert.Len(t, f.ToSlice(), len(f)*2)
}

func TestIntoContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Component: ComponentHTTP, Output: &buf}).With(FieldRequestID, "req_42")
	ctx := IntoContext(context.Background(), base)

	FromContext(ctx).Info("inside")
	require.Contains(t, buf.String(), "request_id=req_42")
}

func TestFromContextFallback(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	assert.Equal(t, ComponentApp, l.Component())
}
