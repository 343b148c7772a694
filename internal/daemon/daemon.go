// Package daemon runs the exporter: it wires sources, the event pipeline,
// the exposition server and housekeeping jobs, and owns their lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/buildbot-exporter/internal/anomaly"
	"git.home.luguber.info/inful/buildbot-exporter/internal/config"
	"git.home.luguber.info/inful/buildbot-exporter/internal/eventstore"
	ferrors "git.home.luguber.info/inful/buildbot-exporter/internal/foundation/errors"
	"git.home.luguber.info/inful/buildbot-exporter/internal/lifecycle"
	"git.home.luguber.info/inful/buildbot-exporter/internal/logfields"
	"git.home.luguber.info/inful/buildbot-exporter/internal/observability"
	"git.home.luguber.info/inful/buildbot-exporter/internal/pipeline"
	"git.home.luguber.info/inful/buildbot-exporter/internal/retry"
	"git.home.luguber.info/inful/buildbot-exporter/internal/server/httpserver"
	"git.home.luguber.info/inful/buildbot-exporter/internal/subscriber"
	"git.home.luguber.info/inful/buildbot-exporter/internal/transport/natsource"
	"git.home.luguber.info/inful/buildbot-exporter/internal/transport/redisource"
)

// Status represents the current state of the daemon.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

// Options carries process-level collaborators.
type Options struct {
	// ConfigPath enables the config watcher when set.
	ConfigPath string
	Logger     *slog.Logger
	// LevelVar receives log level changes on reload.
	LevelVar *slog.LevelVar
	// Sources replaces the sources derived from configuration when non-nil.
	Sources []subscriber.Source
}

// Daemon represents the main exporter service.
type Daemon struct {
	mu        sync.Mutex
	config    *config.Config
	opts      Options
	logger    *slog.Logger
	status    atomic.Value
	startTime time.Time

	pipeline      *pipeline.Pipeline
	journal       *eventstore.SQLiteStore
	sources       []subscriber.Source
	started       []subscriber.Source
	httpServer    *httpserver.Server
	scheduler     *Scheduler
	configWatcher *ConfigWatcher
}

// New builds every component. Nothing connects or listens until Start.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Daemon{config: cfg, opts: opts, logger: logger}
	d.status.Store(StatusStopped)

	var sinks []anomaly.Sink
	if cfg.Journal.Enabled {
		journal, err := eventstore.NewSQLiteStore(cfg.Journal.Path, eventstore.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		d.journal = journal
		sinks = append(sinks, journal)
	}

	p, err := pipeline.New(pipeline.Options{
		Buffer:         cfg.Dispatch.Buffer,
		RuntimeMetrics: cfg.Exposition.RuntimeMetrics,
		Sinks:          sinks,
		Logger:         logger,
	})
	if err != nil {
		d.closeJournal()
		return nil, err
	}
	d.pipeline = p

	d.sources = opts.Sources
	if d.sources == nil {
		d.sources = buildSources(cfg, p.Subscriber, logger)
	}

	d.httpServer = httpserver.New(cfg.Exposition, p.Gatherer, d, logger)

	if d.scheduler, err = NewScheduler(logger); err != nil {
		d.closeJournal()
		return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to create scheduler").Build()
	}
	if cfg.Tracker.StaleAfter > 0 {
		if _, err := d.scheduler.ScheduleSweep(cfg.Tracker.SweepInterval, cfg.Tracker.StaleAfter, p.Tracker); err != nil {
			d.closeJournal()
			return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to schedule sweep").Build()
		}
	}
	if cfg.Tracker.StatsInterval > 0 {
		if _, err := d.scheduler.ScheduleStats(cfg.Tracker.StatsInterval, d.logStats); err != nil {
			d.closeJournal()
			return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to schedule stats").Build()
		}
	}

	if opts.ConfigPath != "" {
		cw, err := NewConfigWatcher(opts.ConfigPath, d.ReloadConfig, logger)
		if err != nil {
			logger.Warn("Config watcher disabled", logfields.Error(err))
		} else {
			d.configWatcher = cw
		}
	}

	return d, nil
}

func buildSources(cfg *config.Config, ingest subscriber.Ingester, logger *slog.Logger) []subscriber.Source {
	policy := retry.FromConfig(cfg.Retry)
	var sources []subscriber.Source
	if cfg.Sources.NATS.Enabled {
		sources = append(sources, natsource.New(cfg.Sources.NATS, ingest, policy, logger))
	}
	if cfg.Sources.Redis.Enabled {
		sources = append(sources, redisource.New(cfg.Sources.Redis, ingest, policy, logger))
	}
	return sources
}

// Start starts the dispatcher, sources, exposition server, scheduler and
// config watcher. On failure everything already started is stopped again.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.GetStatus() != StatusStopped {
		return ferrors.RuntimeError("daemon is not in stopped state").
			WithContext("status", string(d.GetStatus())).
			Build()
	}
	d.status.Store(StatusStarting)
	d.startTime = time.Now()
	d.logger.Info("Starting buildbot exporter", slog.Int("sources", len(d.sources)))

	d.pipeline.Start(ctx)

	for _, src := range d.sources {
		if err := src.Start(ctx); err != nil {
			_ = d.shutdown(context.WithoutCancel(ctx))
			d.status.Store(StatusError)
			return ferrors.WrapError(err, ferrors.CategoryTransport, "failed to start source").
				WithContext("source", src.Name()).
				Build()
		}
		d.started = append(d.started, src)
	}

	if err := d.httpServer.Start(ctx); err != nil {
		_ = d.shutdown(context.WithoutCancel(ctx))
		d.status.Store(StatusError)
		return err
	}

	d.scheduler.Start()

	if d.configWatcher != nil {
		if err := d.configWatcher.Start(ctx); err != nil {
			d.logger.Error("Failed to start config watcher", logfields.Error(err))
		}
	}

	d.status.Store(StatusRunning)
	d.logger.Info("Buildbot exporter started",
		slog.String("address", d.httpServer.Addr()),
		slog.String("path", d.config.Exposition.Path),
		slog.Bool("journal", d.journal != nil))
	return nil
}

// Run starts the daemon, blocks until ctx is done, then stops it within
// shutdownTimeout.
func (d *Daemon) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return d.Stop(stopCtx)
}

// Stop shuts down in reverse order: watcher, scheduler, sources, then the
// bus is closed and drained before the server and journal go away.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.GetStatus() {
	case StatusStopped, StatusStopping:
		return nil
	}
	d.status.Store(StatusStopping)
	d.logger.Info("Stopping buildbot exporter")

	err := d.shutdown(ctx)
	d.logger.Info("Buildbot exporter stopped", slog.Duration("uptime", time.Since(d.startTime)))
	return err
}

// shutdown stops every component; callers hold d.mu.
func (d *Daemon) shutdown(ctx context.Context) error {
	var errs []error

	if d.configWatcher != nil {
		if err := d.configWatcher.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := d.scheduler.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("scheduler shutdown: %w", err))
	}

	for i := len(d.started) - 1; i >= 0; i-- {
		if err := d.started[i].Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s source shutdown: %w", d.started[i].Name(), err))
		}
	}
	d.started = nil

	if err := d.pipeline.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	if err := d.httpServer.Stop(ctx); err != nil {
		errs = append(errs, err)
	}

	d.closeJournal()

	d.status.Store(StatusStopped)
	if len(errs) > 0 {
		joined := errors.Join(errs...)
		d.logger.Error("Shutdown completed with errors", logfields.Error(joined))
		return joined
	}
	return nil
}

func (d *Daemon) closeJournal() {
	if d.journal == nil {
		return
	}
	if err := d.journal.Close(); err != nil {
		d.logger.Error("Failed to close anomaly journal", logfields.Error(err))
	}
	d.journal = nil
}

// GetStatus returns the current daemon status.
func (d *Daemon) GetStatus() Status {
	status, ok := d.status.Load().(Status)
	if !ok {
		return StatusError
	}
	return status
}

// GetConfig returns the active configuration.
func (d *Daemon) GetConfig() *config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config
}

// Addr reports the bound exposition address.
func (d *Daemon) Addr() string { return d.httpServer.Addr() }

// StartTime implements handlers.StatusProvider.
func (d *Daemon) StartTime() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startTime
}

// InFlightCounts implements handlers.StatusProvider.
func (d *Daemon) InFlightCounts() map[lifecycle.Kind]int { return d.pipeline.Tracker.InFlightCounts() }

// IngestStats implements handlers.StatusProvider.
func (d *Daemon) IngestStats() subscriber.Stats { return d.pipeline.Subscriber.Stats() }

// ReloadConfig applies the log level from cfg. Every other setting requires
// a restart; changes to them are reported and ignored.
func (d *Daemon) ReloadConfig(_ context.Context, cfg *config.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	current := *d.config
	candidate := *cfg
	candidate.Logging.Level = current.Logging.Level
	if !reflect.DeepEqual(current, candidate) {
		d.logger.Warn("Configuration changes other than logging.level require a restart")
	}

	if d.opts.LevelVar != nil && cfg.Logging.Level != current.Logging.Level {
		d.opts.LevelVar.Set(observability.ParseLevel(string(cfg.Logging.Level)))
		d.logger.Info("Log level changed",
			slog.String("from", string(current.Logging.Level)),
			slog.String("to", string(cfg.Logging.Level)))
	}
	current.Logging.Level = cfg.Logging.Level
	d.config = &current
	return nil
}

func (d *Daemon) logStats(ctx context.Context) {
	attrs := []any{}
	for kind, n := range d.pipeline.Tracker.InFlightCounts() {
		attrs = append(attrs, slog.Int(string(kind), n))
	}
	published, dropped := d.pipeline.Bus.Stats()
	ingest := d.pipeline.Subscriber.Stats()
	d.logger.InfoContext(ctx, "Exporter stats",
		slog.Group("in_flight", attrs...),
		slog.Uint64("bus_published", published),
		slog.Uint64("bus_dropped", dropped),
		slog.Uint64("ingest_ignored", ingest.Ignored),
		slog.Uint64("ingest_failed", ingest.Failed))
}
