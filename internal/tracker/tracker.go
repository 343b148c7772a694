// Package tracker pairs lifecycle start and finish events and turns each
// completed pair into metric updates.
//
// The tracker owns every in-flight record. It is driven by the dispatcher,
// one event at a time, and publishes through a metrics.Recorder. Irregular
// sequences (a second start, a finish without a start, a finish that predates
// its start) are reported to an anomaly.Sink and never abort processing.
package tracker

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"git.home.luguber.info/inful/buildbot-exporter/internal/anomaly"
	"git.home.luguber.info/inful/buildbot-exporter/internal/lifecycle"
	"git.home.luguber.info/inful/buildbot-exporter/internal/logfields"
	"git.home.luguber.info/inful/buildbot-exporter/internal/metrics"
)

type record struct {
	labels    []string
	startedAt time.Time
}

// Tracker holds in-flight lifecycle records keyed by kind and identity.
type Tracker struct {
	mu       sync.Mutex
	inFlight map[lifecycle.Kind]map[string]*record

	recorder metrics.Recorder
	sink     anomaly.Sink
	logger   *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithRecorder sets the metric recorder (default metrics.NoopRecorder).
func WithRecorder(r metrics.Recorder) Option {
	return func(t *Tracker) {
		if r != nil {
			t.recorder = r
		}
	}
}

// WithAnomalySink sets where anomalies are reported (default anomaly.Discard).
func WithAnomalySink(s anomaly.Sink) Option {
	return func(t *Tracker) {
		if s != nil {
			t.sink = s
		}
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// New returns an empty tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		inFlight: make(map[lifecycle.Kind]map[string]*record),
		recorder: metrics.NoopRecorder{},
		sink:     anomaly.Discard,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Started records that an entity began at ts with the given label values.
// A second start for an in-flight identity is an anomaly; the newer start
// replaces the older one.
func (t *Tracker) Started(ctx context.Context, kind lifecycle.Kind, identity string, labelValues []string, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	records := t.inFlight[kind]
	if records == nil {
		records = make(map[string]*record)
		t.inFlight[kind] = records
	}
	if prev, ok := records[identity]; ok {
		t.sink.Record(ctx, anomaly.New(anomaly.DuplicateStart, string(kind), identity,
			"previous start at "+prev.startedAt.UTC().Format(time.RFC3339Nano)+" replaced", ts))
		// A renamed builder or worker must not leave its old series at 1.
		if kind.Running() && !slices.Equal(prev.labels, labelValues) {
			t.recorder.SetRunning(kind, prev.labels, false, len(records)-1)
		}
	}
	records[identity] = &record{labels: slices.Clone(labelValues), startedAt: ts}

	if kind.Running() {
		t.recorder.SetRunning(kind, labelValues, true, len(records))
	}

	t.logger.DebugContext(ctx, "Entity started",
		logfields.Entity(string(kind)),
		logfields.Identity(identity),
		logfields.InFlight(len(records)))
}

// Finished completes an in-flight entity. Builders and workers are marked
// not running; every other kind gets a duration, a success reading and a
// result count. A finish without a matching start only reports an anomaly.
func (t *Tracker) Finished(ctx context.Context, kind lifecycle.Kind, identity string, result lifecycle.Result, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	records := t.inFlight[kind]
	rec, ok := records[identity]
	if !ok {
		t.sink.Record(ctx, anomaly.New(anomaly.OrphanFinish, string(kind), identity, "no start recorded", ts))
		return
	}
	delete(records, identity)

	if kind.Running() {
		t.recorder.SetRunning(kind, rec.labels, false, len(records))
		t.logger.DebugContext(ctx, "Entity stopped",
			logfields.Entity(string(kind)),
			logfields.Identity(identity),
			logfields.InFlight(len(records)))
		return
	}

	d := ts.Sub(rec.startedAt)
	if d < 0 {
		t.sink.Record(ctx, anomaly.New(anomaly.NegativeDuration, string(kind), identity,
			"finish precedes start by "+(-d).String(), ts))
		d = 0
	}
	t.recorder.ObserveCompletion(kind, rec.labels, d, result)

	t.logger.DebugContext(ctx, "Entity finished",
		logfields.Entity(string(kind)),
		logfields.Identity(identity),
		slog.String("result", string(result)),
		logfields.DurationMS(float64(d)/float64(time.Millisecond)))
}

// LookupBuild returns the label values (builder_id, worker_id) of an
// in-flight build.
func (t *Tracker) LookupBuild(buildID string) (builderID, workerID string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.lookupBuildLocked(buildID)
}

func (t *Tracker) lookupBuildLocked(buildID string) (builderID, workerID string, ok bool) {
	rec, found := t.inFlight[lifecycle.Build][buildID]
	if !found || len(rec.labels) < 2 {
		return "", "", false
	}
	return rec.labels[0], rec.labels[1], true
}

// InFlight returns the number of in-flight records of a kind.
func (t *Tracker) InFlight(kind lifecycle.Kind) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.inFlight[kind])
}

// InFlightCounts returns the number of in-flight records per kind.
func (t *Tracker) InFlightCounts() map[lifecycle.Kind]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[lifecycle.Kind]int, len(lifecycle.Kinds))
	for _, k := range lifecycle.Kinds {
		out[k] = len(t.inFlight[k])
	}
	return out
}

// Sweep drops records started more than olderThan before now and returns how
// many were dropped. Builders and workers are never swept: they legitimately
// stay up for the lifetime of the master.
func (t *Tracker) Sweep(ctx context.Context, olderThan time.Duration, now time.Time) int {
	if olderThan <= 0 {
		return 0
	}
	cutoff := now.Add(-olderThan)

	t.mu.Lock()
	defer t.mu.Unlock()

	dropped := 0
	for _, kind := range lifecycle.Kinds {
		if kind.Running() {
			continue
		}
		for identity, rec := range t.inFlight[kind] {
			if !rec.startedAt.Before(cutoff) {
				continue
			}
			delete(t.inFlight[kind], identity)
			dropped++
			t.sink.Record(ctx, anomaly.New(anomaly.StaleInFlight, string(kind), identity,
				"no finish within "+olderThan.String(), now))
		}
	}
	return dropped
}
