package tracker

import (
	"context"

	"git.home.luguber.info/inful/buildbot-exporter/internal/anomaly"
	"git.home.luguber.info/inful/buildbot-exporter/internal/events"
	"git.home.luguber.info/inful/buildbot-exporter/internal/lifecycle"
)

func (t *Tracker) BuilderStarted(ctx context.Context, e events.BuilderEvent) {
	t.Started(ctx, lifecycle.Builder, e.BuilderID, []string{e.BuilderID, e.Name}, e.Header.At)
}

func (t *Tracker) BuilderStopped(ctx context.Context, e events.BuilderEvent) {
	t.Finished(ctx, lifecycle.Builder, e.BuilderID, lifecycle.ResultSuccess, e.Header.At)
}

func (t *Tracker) WorkerConnected(ctx context.Context, e events.WorkerEvent) {
	t.Started(ctx, lifecycle.Worker, e.WorkerID, []string{e.WorkerID, e.Name}, e.Header.At)
}

func (t *Tracker) WorkerDisconnected(ctx context.Context, e events.WorkerEvent) {
	t.Finished(ctx, lifecycle.Worker, e.WorkerID, lifecycle.ResultSuccess, e.Header.At)
}

func (t *Tracker) BuildStarted(ctx context.Context, e events.BuildEvent) {
	t.Started(ctx, lifecycle.Build, e.BuildID, []string{e.BuilderID, e.WorkerID}, e.Header.At)
}

func (t *Tracker) BuildFinished(ctx context.Context, e events.BuildEvent) {
	t.Finished(ctx, lifecycle.Build, e.BuildID, e.Result, e.Header.At)
}

func (t *Tracker) BuildRequestSubmitted(ctx context.Context, e events.BuildRequestEvent) {
	t.Started(ctx, lifecycle.BuildRequest, e.BuildRequestID, []string{e.BuilderID}, e.Header.At)
}

func (t *Tracker) BuildRequestCompleted(ctx context.Context, e events.BuildRequestEvent) {
	t.Finished(ctx, lifecycle.BuildRequest, e.BuildRequestID, e.Result, e.Header.At)
}

func (t *Tracker) BuildSetSubmitted(ctx context.Context, e events.BuildSetEvent) {
	t.Started(ctx, lifecycle.BuildSet, e.BuildSetID, []string{e.BuildSetID}, e.Header.At)
}

func (t *Tracker) BuildSetCompleted(ctx context.Context, e events.BuildSetEvent) {
	t.Finished(ctx, lifecycle.BuildSet, e.BuildSetID, e.Result, e.Header.At)
}

// StepStarted records a step under its build's builder and worker. When the
// message did not name them they are taken from the in-flight build; a step
// whose build is unknown is dropped.
func (t *Tracker) StepStarted(ctx context.Context, e events.StepEvent) {
	builderID, workerID := e.BuilderID, e.WorkerID
	if builderID == "" || workerID == "" {
		b, w, ok := t.LookupBuild(e.BuildID)
		if !ok {
			t.sink.Record(ctx, anomaly.New(anomaly.UnresolvedBuild, string(lifecycle.Step), e.Identity(),
				"build "+e.BuildID+" is not in flight", e.Header.At))
			return
		}
		if builderID == "" {
			builderID = b
		}
		if workerID == "" {
			workerID = w
		}
	}
	t.Started(ctx, lifecycle.Step, e.Identity(), []string{builderID, workerID, e.Name, e.Number}, e.Header.At)
}

func (t *Tracker) StepFinished(ctx context.Context, e events.StepEvent) {
	t.Finished(ctx, lifecycle.Step, e.Identity(), e.Result, e.Header.At)
}
