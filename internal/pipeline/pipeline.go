// Package pipeline assembles the in-process event path shared by the daemon
// and the replay command: registry and recorder, tracker, bus, subscriber
// and dispatcher.
package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/buildbot-exporter/internal/anomaly"
	"git.home.luguber.info/inful/buildbot-exporter/internal/events"
	ferrors "git.home.luguber.info/inful/buildbot-exporter/internal/foundation/errors"
	"git.home.luguber.info/inful/buildbot-exporter/internal/metrics"
	"git.home.luguber.info/inful/buildbot-exporter/internal/subscriber"
	"git.home.luguber.info/inful/buildbot-exporter/internal/tracker"
	"git.home.luguber.info/inful/buildbot-exporter/internal/version"
)

// Options configures a Pipeline.
type Options struct {
	// Buffer is the dispatcher's bus subscription buffer.
	Buffer int
	// RuntimeMetrics adds Go and process collectors to the gatherer.
	RuntimeMetrics bool
	// Sinks receive anomalies in addition to the log and the anomaly counter.
	Sinks  []anomaly.Sink
	Logger *slog.Logger
}

// Pipeline is the assembled event path.
type Pipeline struct {
	Registry   *metrics.Registry
	Recorder   *metrics.RegistryRecorder
	Gatherer   *prometheus.Registry
	Tracker    *tracker.Tracker
	Bus        *events.Bus
	Subscriber *subscriber.Subscriber
	Dispatcher *subscriber.Dispatcher

	sink   anomaly.Sink
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New declares the metric catalogue and wires every component. Nothing runs
// until Start.
func New(opts Options) (*Pipeline, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reg := metrics.NewRegistry()
	rec, err := metrics.NewRegistryRecorder(reg, logger)
	if err != nil {
		return nil, err
	}
	rec.SetBuildInfo(version.Version, version.GitCommit)

	gatherer, err := metrics.NewGatherer(reg, opts.RuntimeMetrics)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryExposition, "failed to build gatherer").Build()
	}

	sinks := anomaly.MultiSink{anomaly.NewLogSink(logger), rec}
	sinks = append(sinks, opts.Sinks...)

	trk := tracker.New(
		tracker.WithRecorder(rec),
		tracker.WithAnomalySink(sinks),
		tracker.WithLogger(logger),
	)
	bus := events.NewBus()

	return &Pipeline{
		Registry:   reg,
		Recorder:   rec,
		Gatherer:   gatherer,
		Tracker:    trk,
		Bus:        bus,
		Subscriber: subscriber.New(bus, sinks, logger),
		Dispatcher: subscriber.NewDispatcher(bus, trk, opts.Buffer, rec, sinks, logger),
		sink:       sinks,
		logger:     logger,
		done:       make(chan struct{}),
	}, nil
}

// Sink returns the anomaly fan-out used by every stage.
func (p *Pipeline) Sink() anomaly.Sink { return p.sink }

// Start runs the dispatcher in the background. It keeps running after ctx is
// cancelled until Close, so buffered events are never lost on shutdown.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.started, p.cancel = true, cancel
	go func() {
		defer close(p.done)
		_ = p.Dispatcher.Run(runCtx)
	}()
}

// Close closes the bus and waits for the dispatcher to apply every buffered
// event. When ctx expires first, the remaining events are abandoned. Sources
// must be stopped before Close.
func (p *Pipeline) Close(ctx context.Context) error {
	p.Bus.Close()

	p.mu.Lock()
	started, cancel := p.started, p.cancel
	p.mu.Unlock()
	if !started {
		return nil
	}

	select {
	case <-p.done:
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		<-p.done
		return ferrors.WrapError(ctx.Err(), ferrors.CategoryRuntime, "dispatcher did not drain before deadline").
			Warning().
			Build()
	}
}
