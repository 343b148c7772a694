package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextHelpers(t *testing.T) {
	ctx := WithEventID(context.Background(), "evt-1")
	ctx = WithSource(ctx, "nats")
	ctx = WithRoutingKey(ctx, "builds.12.finished")

	lc := GetContext(ctx)
	require.Equal(t, "evt-1", lc.EventID)
	require.Equal(t, "nats", lc.Source)
	require.Equal(t, "builds.12.finished", lc.RoutingKey)

	require.Equal(t, LogContext{}, GetContext(context.Background()))
}

func TestNewLoggerAddsContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "json", slog.LevelInfo)

	ctx := WithSource(WithEventID(context.Background(), "evt-2"), "redis")
	logger.With("component", "test").InfoContext(ctx, "message applied")

	out := buf.String()
	require.Contains(t, out, `"event_id":"evt-2"`)
	require.Contains(t, out, `"source":"redis"`)
	require.Contains(t, out, `"component":"test"`)
	require.NotContains(t, out, "routing_key")
}

func TestNewLoggerHonoursLevelVar(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)
	logger := NewLogger(&buf, "text", level)

	logger.Info("hidden")
	require.Empty(t, buf.String())

	level.Set(slog.LevelDebug)
	logger.Debug("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel(" error "))
	require.Equal(t, slog.LevelInfo, ParseLevel(""))
}
