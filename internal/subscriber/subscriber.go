// Package subscriber is the boundary between Buildbot's message bus and the
// exporter. It decodes raw envelopes into typed lifecycle events, publishes
// them on the in-process bus and dispatches them, one at a time, to an
// EventSubscriber such as the state tracker.
//
// A message that cannot be decoded is reported as an anomaly and dropped;
// nothing a transport delivers can stop the dispatch loop.
package subscriber

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"git.home.luguber.info/inful/buildbot-exporter/internal/anomaly"
	"git.home.luguber.info/inful/buildbot-exporter/internal/events"
	"git.home.luguber.info/inful/buildbot-exporter/internal/lifecycle"
	"git.home.luguber.info/inful/buildbot-exporter/internal/logfields"
	"git.home.luguber.info/inful/buildbot-exporter/internal/observability"
)

// EventSubscriber receives lifecycle transitions, one method per transition.
type EventSubscriber interface {
	BuilderStarted(ctx context.Context, e events.BuilderEvent)
	BuilderStopped(ctx context.Context, e events.BuilderEvent)
	WorkerConnected(ctx context.Context, e events.WorkerEvent)
	WorkerDisconnected(ctx context.Context, e events.WorkerEvent)
	BuildStarted(ctx context.Context, e events.BuildEvent)
	BuildFinished(ctx context.Context, e events.BuildEvent)
	BuildRequestSubmitted(ctx context.Context, e events.BuildRequestEvent)
	BuildRequestCompleted(ctx context.Context, e events.BuildRequestEvent)
	BuildSetSubmitted(ctx context.Context, e events.BuildSetEvent)
	BuildSetCompleted(ctx context.Context, e events.BuildSetEvent)
	StepStarted(ctx context.Context, e events.StepEvent)
	StepFinished(ctx context.Context, e events.StepEvent)
}

// Ingester accepts envelopes from a transport.
type Ingester interface {
	Ingest(ctx context.Context, env Envelope) error
}

// Stats counts envelopes by outcome.
type Stats struct {
	Published uint64
	Ignored   uint64
	Failed    uint64
}

// Subscriber decodes envelopes and publishes the resulting events.
type Subscriber struct {
	bus    *events.Bus
	sink   anomaly.Sink
	logger *slog.Logger

	published atomic.Uint64
	ignored   atomic.Uint64
	failed    atomic.Uint64
}

// New returns a Subscriber publishing on bus and reporting decode failures to sink.
func New(bus *events.Bus, sink anomaly.Sink, logger *slog.Logger) *Subscriber {
	if sink == nil {
		sink = anomaly.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{bus: bus, sink: sink, logger: logger}
}

// Ingest decodes env and publishes the event. Undecodable and ignored
// messages return nil; only a failed publish (bus closed, ctx done) is
// returned to the transport.
func (s *Subscriber) Ingest(ctx context.Context, env Envelope) error {
	ctx = observability.WithEventID(ctx, env.ID)
	ctx = observability.WithSource(ctx, env.Source)
	ctx = observability.WithRoutingKey(ctx, KeyString(env.RoutingKey))

	evt, err := Decode(env)
	switch {
	case err == nil:
	case errors.Is(err, ErrIgnoredAction):
		s.ignored.Add(1)
		s.logger.DebugContext(ctx, "Ignoring message without lifecycle transition")
		return nil
	default:
		s.failed.Add(1)
		s.logger.DebugContext(ctx, "Dropping undecodable message", logfields.Error(err))
		s.sink.Record(ctx, anomaly.New(anomaly.DecodeFailure, entityOf(env.RoutingKey), "", err.Error(), env.ReceivedAt))
		return nil
	}

	if err := s.bus.Publish(ctx, evt); err != nil {
		return err
	}
	s.published.Add(1)
	return nil
}

// Stats returns the envelope counters.
func (s *Subscriber) Stats() Stats {
	return Stats{
		Published: s.published.Load(),
		Ignored:   s.ignored.Load(),
		Failed:    s.failed.Load(),
	}
}

func entityOf(key []string) string {
	if len(key) < 3 {
		return ""
	}
	if k, ok := lifecycle.ParseKind(key[len(key)-3]); ok {
		return string(k)
	}
	return ""
}
