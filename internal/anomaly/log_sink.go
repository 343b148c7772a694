package anomaly

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/buildbot-exporter/internal/logfields"
)

// LogSink writes anomalies as structured warnings.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink logging to logger, or to slog.Default when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Record implements Sink.
func (s *LogSink) Record(ctx context.Context, a Anomaly) {
	s.logger.WarnContext(ctx, "Lifecycle anomaly",
		logfields.Anomaly(string(a.Kind)),
		logfields.Entity(a.Entity),
		logfields.Identity(a.Identity),
		slog.String("detail", a.Detail),
		slog.Time("at", a.At))
}
