package metrics

import (
	"time"

	"git.home.luguber.info/inful/buildbot-exporter/internal/lifecycle"
)

// Recorder receives the metric updates produced by lifecycle transitions.
// The tracker calls it while applying events; implementations decide where
// the values end up.
type Recorder interface {
	// SetRunning updates the per-entity running gauge and the running total
	// of a long-lived kind (builders, workers).
	SetRunning(kind lifecycle.Kind, labelValues []string, running bool, total int)
	// ObserveCompletion records the duration and outcome of a finished entity.
	ObserveCompletion(kind lifecycle.Kind, labelValues []string, d time.Duration, result lifecycle.Result)
	// IncEvent counts one applied lifecycle event.
	IncEvent(kind lifecycle.Kind, action string)
}

// NoopRecorder is a Recorder that does nothing (default when no registry is wired).
type NoopRecorder struct{}

func (NoopRecorder) SetRunning(lifecycle.Kind, []string, bool, int)                              {}
func (NoopRecorder) ObserveCompletion(lifecycle.Kind, []string, time.Duration, lifecycle.Result) {}
func (NoopRecorder) IncEvent(lifecycle.Kind, string)                                             {}
