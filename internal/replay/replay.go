// Package replay feeds recorded Buildbot messages through the metrics
// pipeline and renders the resulting exposition. It backs the replay command
// and makes metric behaviour reproducible from captured traffic.
//
// The input is JSON lines, one message per line:
//
//	{"routing_key": "builds.12.finished", "payload": {...}, "received_at": "2024-05-01T12:00:00Z"}
//
// routing_key may also be given as a token array, and a leading prefix is
// stripped as for live sources. Blank lines and lines starting with '#' are
// skipped.
package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"git.home.luguber.info/inful/buildbot-exporter/internal/anomaly"
	ferrors "git.home.luguber.info/inful/buildbot-exporter/internal/foundation/errors"
	"git.home.luguber.info/inful/buildbot-exporter/internal/logfields"
	"git.home.luguber.info/inful/buildbot-exporter/internal/pipeline"
	"git.home.luguber.info/inful/buildbot-exporter/internal/subscriber"
)

const (
	sourceName    = "replay"
	maxLineLength = 4 << 20
)

// Options configures a replay run.
type Options struct {
	// Prefix is stripped from dotted routing keys.
	Prefix string
	// OpenMetrics selects the OpenMetrics text format for the output.
	OpenMetrics bool
	// Sinks receive anomalies in addition to the log and the anomaly counter.
	Sinks  []anomaly.Sink
	Logger *slog.Logger
}

// Result summarises a replay run.
type Result struct {
	Lines     int
	Skipped   int
	Published uint64
	Ignored   uint64
	Failed    uint64
}

// line is one recorded message.
type line struct {
	Source     string          `json:"source"`
	RoutingKey routingKey      `json:"routing_key"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// routingKey accepts "builds.1.new" or ["builds", "1", "new"].
type routingKey struct {
	dotted string
	tokens []string
}

func (k *routingKey) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '[' {
		return json.Unmarshal(b, &k.tokens)
	}
	return json.Unmarshal(b, &k.dotted)
}

func (k routingKey) resolve(prefix string) []string {
	if k.tokens != nil {
		return k.tokens
	}
	return subscriber.RoutingKeyFromSubject(k.dotted, prefix)
}

// Run replays every message from r and writes the final exposition to w.
func Run(ctx context.Context, r io.Reader, w io.Writer, opts Options) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p, err := pipeline.New(pipeline.Options{Buffer: 1024, Sinks: opts.Sinks, Logger: logger})
	if err != nil {
		return Result{}, err
	}
	p.Start(ctx)

	res, feedErr := feed(ctx, r, p.Subscriber, opts.Prefix, logger)
	if err := p.Close(ctx); err != nil && feedErr == nil {
		feedErr = err
	}
	stats := p.Subscriber.Stats()
	res.Published, res.Ignored, res.Failed = stats.Published, stats.Ignored, stats.Failed
	if feedErr != nil {
		return res, feedErr
	}

	if err := Write(w, p.Gatherer, opts.OpenMetrics); err != nil {
		return res, err
	}
	return res, nil
}

func feed(ctx context.Context, r io.Reader, ingest subscriber.Ingester, prefix string, logger *slog.Logger) (Result, error) {
	var res Result
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	for scanner.Scan() {
		res.Lines++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			res.Skipped++
			continue
		}

		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			res.Skipped++
			logger.Warn("Skipping unreadable replay line", slog.Int("line", res.Lines), logfields.Error(err))
			continue
		}

		source := l.Source
		if source == "" {
			source = sourceName
		}
		env := subscriber.NewEnvelope(source, l.RoutingKey.resolve(prefix), l.Payload)
		if !l.ReceivedAt.IsZero() {
			env.ReceivedAt = l.ReceivedAt
		}
		if err := ingest.Ingest(ctx, env); err != nil {
			return res, ferrors.WrapError(err, ferrors.CategoryRuntime, "replay aborted").
				WithContext("line", res.Lines).
				Build()
		}
	}
	if err := scanner.Err(); err != nil {
		return res, ferrors.WrapError(err, ferrors.CategoryValidation, "failed to read replay input").
			WithContext("line", res.Lines+1).
			Build()
	}
	return res, nil
}

// Write encodes every family g gathers in the Prometheus text format, or
// OpenMetrics when openMetrics is set.
func Write(w io.Writer, g prometheus.Gatherer, openMetrics bool) error {
	families, err := g.Gather()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryExposition, "failed to gather metrics").Build()
	}

	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	if openMetrics {
		format = expfmt.NewFormat(expfmt.TypeOpenMetrics)
	}
	enc := expfmt.NewEncoder(w, format)
	for _, f := range families {
		if err := enc.Encode(f); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryExposition, "failed to encode metric family").
				WithContext("family", f.GetName()).
				Build()
		}
	}
	if closer, ok := enc.(expfmt.Closer); ok {
		if err := closer.Close(); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryExposition, "failed to finish exposition").Build()
		}
	}
	return nil
}
