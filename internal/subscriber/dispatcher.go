package subscriber

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/buildbot-exporter/internal/anomaly"
	"git.home.luguber.info/inful/buildbot-exporter/internal/events"
	"git.home.luguber.info/inful/buildbot-exporter/internal/logfields"
	"git.home.luguber.info/inful/buildbot-exporter/internal/metrics"
	"git.home.luguber.info/inful/buildbot-exporter/internal/observability"
)

// Dispatcher applies bus events to an EventSubscriber from a single
// goroutine, so the subscriber sees events in publish order and never
// concurrently.
type Dispatcher struct {
	handler  EventSubscriber
	recorder metrics.Recorder
	sink     anomaly.Sink
	logger   *slog.Logger

	ch          <-chan events.Event
	unsubscribe func()
}

// NewDispatcher subscribes to bus immediately, so events published before
// Run starts are buffered rather than lost.
func NewDispatcher(bus *events.Bus, handler EventSubscriber, buffer int, recorder metrics.Recorder, sink anomaly.Sink, logger *slog.Logger) *Dispatcher {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if sink == nil {
		sink = anomaly.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	ch, unsubscribe := events.Subscribe[events.Event](bus, buffer)
	return &Dispatcher{
		handler:     handler,
		recorder:    recorder,
		sink:        sink,
		logger:      logger,
		ch:          ch,
		unsubscribe: unsubscribe,
	}
}

// Run applies events until ctx is done or the bus is closed. After a bus
// close every buffered event is still applied.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-d.ch:
			if !ok {
				return nil
			}
			d.Dispatch(ctx, evt)
		}
	}
}

// Dispatch applies a single event. A panicking handler is reported as an
// anomaly and the event is skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, evt events.Event) {
	meta := evt.Meta()
	ctx = observability.WithEventID(ctx, meta.ID)
	ctx = observability.WithSource(ctx, meta.Source)

	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "Event handler panicked",
				logfields.Entity(string(evt.Kind())),
				logfields.Identity(evt.Identity()),
				slog.Any("panic", r))
			d.sink.Record(ctx, anomaly.New(anomaly.DispatchPanic, string(evt.Kind()), evt.Identity(), fmt.Sprint(r), time.Now()))
		}
	}()

	switch e := evt.(type) {
	case events.BuilderEvent:
		if e.Edge == events.Started {
			d.handler.BuilderStarted(ctx, e)
		} else {
			d.handler.BuilderStopped(ctx, e)
		}
	case events.WorkerEvent:
		if e.Edge == events.Started {
			d.handler.WorkerConnected(ctx, e)
		} else {
			d.handler.WorkerDisconnected(ctx, e)
		}
	case events.BuildEvent:
		if e.Edge == events.Started {
			d.handler.BuildStarted(ctx, e)
		} else {
			d.handler.BuildFinished(ctx, e)
		}
	case events.BuildRequestEvent:
		if e.Edge == events.Started {
			d.handler.BuildRequestSubmitted(ctx, e)
		} else {
			d.handler.BuildRequestCompleted(ctx, e)
		}
	case events.BuildSetEvent:
		if e.Edge == events.Started {
			d.handler.BuildSetSubmitted(ctx, e)
		} else {
			d.handler.BuildSetCompleted(ctx, e)
		}
	case events.StepEvent:
		if e.Edge == events.Started {
			d.handler.StepStarted(ctx, e)
		} else {
			d.handler.StepFinished(ctx, e)
		}
	default:
		d.logger.WarnContext(ctx, "Unhandled event type", slog.String("type", fmt.Sprintf("%T", evt)))
		return
	}

	d.recorder.IncEvent(evt.Kind(), string(evt.Transition()))
}
