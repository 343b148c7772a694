// Package observability sets up the exporter's structured logging and carries
// per-message context (event id, source, routing key) into every log record.
package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"git.home.luguber.info/inful/buildbot-exporter/internal/logfields"
)

// LogContext holds the message currently being handled.
type LogContext struct {
	EventID    string
	Source     string
	RoutingKey string
}

type logContextKeyType string

const logContextKey logContextKeyType = "log-context"

// WithEventID adds an envelope ID to the context.
func WithEventID(ctx context.Context, id string) context.Context {
	lc := extractLogContext(ctx)
	lc.EventID = id
	return context.WithValue(ctx, logContextKey, lc)
}

// WithSource adds the transport name to the context.
func WithSource(ctx context.Context, source string) context.Context {
	lc := extractLogContext(ctx)
	lc.Source = source
	return context.WithValue(ctx, logContextKey, lc)
}

// WithRoutingKey adds the message routing key to the context.
func WithRoutingKey(ctx context.Context, key string) context.Context {
	lc := extractLogContext(ctx)
	lc.RoutingKey = key
	return context.WithValue(ctx, logContextKey, lc)
}

// GetContext returns the log context stored in ctx.
func GetContext(ctx context.Context) LogContext {
	return extractLogContext(ctx)
}

func extractLogContext(ctx context.Context) LogContext {
	if ctx == nil {
		return LogContext{}
	}
	if lc, ok := ctx.Value(logContextKey).(LogContext); ok {
		return lc
	}
	return LogContext{}
}

func getLogAttrs(ctx context.Context) []slog.Attr {
	lc := extractLogContext(ctx)
	var attrs []slog.Attr

	if lc.EventID != "" {
		attrs = append(attrs, logfields.EventID(lc.EventID))
	}
	if lc.Source != "" {
		attrs = append(attrs, logfields.Source(lc.Source))
	}
	if lc.RoutingKey != "" {
		attrs = append(attrs, logfields.RoutingKey(lc.RoutingKey))
	}
	return attrs
}

// ContextHandler decorates a handler with the attributes of the record's
// context.
type ContextHandler struct {
	slog.Handler
}

// Handle implements slog.Handler.
func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(getLogAttrs(ctx)...)
	return h.Handler.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h ContextHandler) WithGroup(name string) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithGroup(name)}
}

// NewLogger builds the process logger. format is "json" or "text"; level may
// be a *slog.LevelVar so it can be changed at runtime.
func NewLogger(w io.Writer, format string, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(ContextHandler{Handler: h})
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
