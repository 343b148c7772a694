package subscriber

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildbot-exporter/internal/anomaly"
	"git.home.luguber.info/inful/buildbot-exporter/internal/events"
	"git.home.luguber.info/inful/buildbot-exporter/internal/lifecycle"
	"git.home.luguber.info/inful/buildbot-exporter/internal/metrics"
	"git.home.luguber.info/inful/buildbot-exporter/internal/tracker"
)

type anomalyLog struct {
	mu   sync.Mutex
	seen []anomaly.Anomaly
}

func (a *anomalyLog) Record(_ context.Context, x anomaly.Anomaly) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seen = append(a.seen, x)
}

func (a *anomalyLog) all() []anomaly.Anomaly {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]anomaly.Anomaly(nil), a.seen...)
}

// callLog is an EventSubscriber recording the methods called on it.
type callLog struct {
	calls []string
	panic bool
}

func (c *callLog) add(name string) {
	if c.panic {
		panic("boom")
	}
	c.calls = append(c.calls, name)
}

func (c *callLog) BuilderStarted(context.Context, events.BuilderEvent) {
	c.add("BuilderStarted")
}

func (c *callLog) BuilderStopped(context.Context, events.BuilderEvent) {
	c.add("BuilderStopped")
}

func (c *callLog) WorkerConnected(context.Context, events.WorkerEvent) {
	c.add("WorkerConnected")
}

func (c *callLog) WorkerDisconnected(context.Context, events.WorkerEvent) {
	c.add("WorkerDisconnected")
}

func (c *callLog) BuildStarted(context.Context, events.BuildEvent) {
	c.add("BuildStarted")
}

func (c *callLog) BuildFinished(context.Context, events.BuildEvent) {
	c.add("BuildFinished")
}

func (c *callLog) BuildRequestSubmitted(context.Context, events.BuildRequestEvent) {
	c.add("BuildRequestSubmitted")
}

func (c *callLog) BuildRequestCompleted(context.Context, events.BuildRequestEvent) {
	c.add("BuildRequestCompleted")
}

func (c *callLog) BuildSetSubmitted(context.Context, events.BuildSetEvent) {
	c.add("BuildSetSubmitted")
}

func (c *callLog) BuildSetCompleted(context.Context, events.BuildSetEvent) {
	c.add("BuildSetCompleted")
}

func (c *callLog) StepStarted(context.Context, events.StepEvent) {
	c.add("StepStarted")
}

func (c *callLog) StepFinished(context.Context, events.StepEvent) {
	c.add("StepFinished")
}

func TestDispatchRoutesEveryTransition(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	calls := &callLog{}
	d := NewDispatcher(bus, calls, 1, nil, nil, nil)
	ctx := context.Background()

	for _, evt := range []events.Event{
		events.BuilderEvent{Edge: events.Started},
		events.BuilderEvent{Edge: events.Finished},
		events.WorkerEvent{Edge: events.Started},
		events.WorkerEvent{Edge: events.Finished},
		events.BuildEvent{Edge: events.Started},
		events.BuildEvent{Edge: events.Finished},
		events.BuildRequestEvent{Edge: events.Started},
		events.BuildRequestEvent{Edge: events.Finished},
		events.BuildSetEvent{Edge: events.Started},
		events.BuildSetEvent{Edge: events.Finished},
		events.StepEvent{Edge: events.Started},
		events.StepEvent{Edge: events.Finished},
	} {
		d.Dispatch(ctx, evt)
	}

	require.Equal(t, []string{
		"BuilderStarted", "BuilderStopped",
		"WorkerConnected", "WorkerDisconnected",
		"BuildStarted", "BuildFinished",
		"BuildRequestSubmitted", "BuildRequestCompleted",
		"BuildSetSubmitted", "BuildSetCompleted",
		"StepStarted", "StepFinished",
	}, calls.calls)
}

func TestDispatchRecoversFromHandlerPanic(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	sink := &anomalyLog{}
	d := NewDispatcher(bus, &callLog{panic: true}, 1, nil, sink, nil)

	require.NotPanics(t, func() {
		d.Dispatch(context.Background(), events.BuildEvent{BuildID: "3", Edge: events.Started})
	})

	got := sink.all()
	require.Len(t, got, 1)
	require.Equal(t, anomaly.DispatchPanic, got[0].Kind)
	require.Equal(t, "3", got[0].Identity)
}

func TestIngestDropsUndecodableMessages(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	sink := &anomalyLog{}
	s := New(bus, sink, nil)
	ch, unsubscribe := events.Subscribe[events.Event](bus, 4)
	defer unsubscribe()

	ctx := context.Background()
	require.NoError(t, s.Ingest(ctx, envelope(`not json`, "builds", "1", "new")))
	require.NoError(t, s.Ingest(ctx, envelope(`{}`, "builds", "1", "updated")))
	require.NoError(t, s.Ingest(ctx, envelope(`{"workerid": 4, "name": "w4"}`, "workers", "4", "connected")))

	require.Equal(t, Stats{Published: 1, Ignored: 1, Failed: 1}, s.Stats())

	got := sink.all()
	require.Len(t, got, 1)
	require.Equal(t, anomaly.DecodeFailure, got[0].Kind)
	require.Equal(t, "builds", got[0].Entity)

	evt := <-ch
	require.Equal(t, lifecycle.Worker, evt.Kind())
}

func TestIngestReportsClosedBus(t *testing.T) {
	bus := events.NewBus()
	bus.Close()

	err := New(bus, nil, nil).Ingest(context.Background(), envelope(`{"workerid": 4}`, "workers", "4", "connected"))
	require.ErrorIs(t, err, events.ErrBusClosed)
}

// TestPipeline feeds envelopes through ingest, bus, dispatcher and tracker
// and reads the results back from the registry.
func TestPipeline(t *testing.T) {
	reg := metrics.NewRegistry()
	rec, err := metrics.NewRegistryRecorder(reg, nil)
	require.NoError(t, err)
	sink := anomaly.MultiSink{rec, &anomalyLog{}}

	bus := events.NewBus()
	tr := tracker.New(tracker.WithRecorder(rec), tracker.WithAnomalySink(sink))
	d := NewDispatcher(bus, tr, 16, rec, sink, nil)
	s := New(bus, sink, nil)

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	ctx := context.Background()
	for _, env := range []Envelope{
		envelope(`{"workerid": 2, "name": "docker"}`, "workers", "2", "connected"),
		envelope(`{"buildid": 12, "builderid": 1, "workerid": 2, "started_at": 1700000000}`, "builds", "12", "new"),
		envelope(`{"stepid": 40, "buildid": 12, "number": 0, "name": "git", "started_at": 1700000000}`, "steps", "40", "started"),
		envelope(`{"stepid": 40, "buildid": 12, "number": 0, "name": "git", "complete_at": 1700000001.5, "results": 0}`, "steps", "40", "finished"),
		envelope(`{"buildid": 12, "builderid": 1, "workerid": 2, "complete_at": 1700000002.571184, "results": 0}`, "builds", "12", "finished"),
		envelope(`{"buildid": 99, "complete_at": 1700000003, "results": 0}`, "builds", "99", "finished"),
		envelope(`{"buildid": 12`, "builds", "12", "finished"),
	} {
		require.NoError(t, s.Ingest(ctx, env))
	}

	bus.Close()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not drain")
	}

	snap := reg.Snapshot()
	value := func(name string, labels ...string) float64 {
		v, ok := snap.Value(name, labels...)
		require.True(t, ok, "no sample %s%v", name, labels)
		return v
	}

	require.InDelta(t, 1.0, value("buildbot_workers_running_total"), 1e-9)
	require.InDelta(t, 2.571184, value("buildbot_builds_duration_seconds", "1", "2"), 1e-6)
	require.InDelta(t, 1.0, value("buildbot_builds_success", "1", "2"), 1e-9)
	require.InDelta(t, 1.5, value("buildbot_steps_duration_seconds", "1", "2", "git", "0"), 1e-6)
	require.InDelta(t, 1.0, value("buildbot_exporter_anomalies_total", "orphan_finish"), 1e-9)
	require.InDelta(t, 1.0, value("buildbot_exporter_anomalies_total", "decode_failure"), 1e-9)
	require.InDelta(t, 1.0, value("buildbot_exporter_events_total", "steps", "finished"), 1e-9)
	require.InDelta(t, 2.0, value("buildbot_exporter_events_total", "builds", "finished"), 1e-9)
	require.Zero(t, tr.InFlight(lifecycle.Build))
}
