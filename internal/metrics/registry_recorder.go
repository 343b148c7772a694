package metrics

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/buildbot-exporter/internal/anomaly"
	"git.home.luguber.info/inful/buildbot-exporter/internal/lifecycle"
	"git.home.luguber.info/inful/buildbot-exporter/internal/logfields"
)

// RegistryRecorder implements Recorder on top of a Registry declared with the
// catalogue. It also counts anomalies, which makes it an anomaly.Sink.
type RegistryRecorder struct {
	reg    *Registry
	logger *slog.Logger
}

// NewRegistryRecorder declares the catalogue on reg and returns a recorder
// writing to it. The running totals start at 0 so they are exposed before
// the first builder or worker event.
func NewRegistryRecorder(reg *Registry, logger *slog.Logger) (*RegistryRecorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := DeclareCatalog(reg); err != nil {
		return nil, err
	}
	for _, kind := range lifecycle.Kinds {
		if !kind.Running() {
			continue
		}
		if err := reg.SetGauge(RunningTotalName(kind), nil, 0); err != nil {
			return nil, err
		}
	}
	return &RegistryRecorder{reg: reg, logger: logger}, nil
}

// Registry returns the underlying registry.
func (r *RegistryRecorder) Registry() *Registry { return r.reg }

// SetRunning implements Recorder. The per-entity gauge and the total change
// together.
func (r *RegistryRecorder) SetRunning(kind lifecycle.Kind, labelValues []string, running bool, total int) {
	r.check(RunningName(kind), r.reg.Apply(
		Update{Name: RunningName(kind), Kind: KindGauge, LabelValues: labelValues, Value: boolValue(running)},
		Update{Name: RunningTotalName(kind), Kind: KindGauge, Value: float64(max(total, 0))},
	))
}

// ObserveCompletion implements Recorder.
func (r *RegistryRecorder) ObserveCompletion(kind lifecycle.Kind, labelValues []string, d time.Duration, result lifecycle.Result) {
	withResult := append(append(make([]string, 0, len(labelValues)+1), labelValues...), string(result))
	r.check(DurationName(kind), r.reg.Apply(
		Update{Name: DurationName(kind), Kind: KindDuration, LabelValues: labelValues, Value: d.Seconds()},
		Update{Name: SuccessName(kind), Kind: KindGauge, LabelValues: labelValues, Value: boolValue(result.Succeeded())},
		Update{Name: ResultsName(kind), Kind: KindCounter, LabelValues: withResult, Value: 1},
	))
}

// IncEvent implements Recorder.
func (r *RegistryRecorder) IncEvent(kind lifecycle.Kind, action string) {
	r.check(EventsTotal, r.reg.IncrementCounter(EventsTotal, []string{string(kind), action}, 1))
}

// Record implements anomaly.Sink.
func (r *RegistryRecorder) Record(_ context.Context, a anomaly.Anomaly) {
	r.check(AnomaliesTotal, r.reg.IncrementCounter(AnomaliesTotal, []string{string(a.Kind)}, 1))
}

// SetBuildInfo publishes the constant build info gauge.
func (r *RegistryRecorder) SetBuildInfo(version, commit string) {
	r.check(BuildInfo, r.reg.SetGauge(BuildInfo, []string{version, commit}, 1))
}

// check logs registry misuse. Such errors mean the catalogue and the caller
// disagree on a label schema; the update is skipped.
func (r *RegistryRecorder) check(name string, err error) {
	if err != nil {
		r.logger.Error("Metric update rejected", slog.String("metric", name), logfields.Error(err))
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

var (
	_ Recorder     = (*RegistryRecorder)(nil)
	_ anomaly.Sink = (*RegistryRecorder)(nil)
)
