package metrics

import "git.home.luguber.info/inful/buildbot-exporter/internal/lifecycle"

const namespace = "buildbot"

// Family names of the exporter's own metrics.
const (
	EventsTotal    = namespace + "_exporter_events_total"
	AnomaliesTotal = namespace + "_exporter_anomalies_total"
	BuildInfo      = namespace + "_exporter_build_info"
)

// RunningTotalName is the unlabelled count of running entities of a kind.
func RunningTotalName(k lifecycle.Kind) string {
	return namespace + "_" + k.MetricStem() + "_running_total"
}

// RunningName is the per-entity running gauge of a kind.
func RunningName(k lifecycle.Kind) string {
	return namespace + "_" + k.MetricStem() + "_running"
}

// DurationName is the last observed duration family of a kind.
func DurationName(k lifecycle.Kind) string {
	return namespace + "_" + k.MetricStem() + "_duration_seconds"
}

// SuccessName is the last-outcome success gauge of a kind.
func SuccessName(k lifecycle.Kind) string {
	return namespace + "_" + k.MetricStem() + "_success"
}

// ResultsName is the per-result counter of a kind.
func ResultsName(k lifecycle.Kind) string {
	return namespace + "_" + k.MetricStem() + "_results_total"
}

var help = map[lifecycle.Kind]struct{ total, running, duration, success, results string }{
	lifecycle.Builder: {total: "Total number of running builders", running: "Running builders"},
	lifecycle.Worker:  {total: "Total number of running workers", running: "Running workers"},
	lifecycle.Build: {
		duration: "Build duration in seconds",
		success:  "Whether the last build succeeded",
		results:  "Finished builds by result",
	},
	lifecycle.BuildRequest: {
		duration: "Build request duration in seconds",
		success:  "Whether the last build request succeeded",
		results:  "Completed build requests by result",
	},
	lifecycle.BuildSet: {
		duration: "Buildset duration in seconds",
		success:  "Whether the buildset succeeded",
		results:  "Completed buildsets by result",
	},
	lifecycle.Step: {
		duration: "Step duration in seconds",
		success:  "Whether the last step succeeded",
		results:  "Finished steps by result",
	},
}

// Catalog returns every family the exporter exposes, in exposition order.
func Catalog() []Desc {
	var descs []Desc
	for _, k := range lifecycle.Kinds {
		h := help[k]
		if k.Running() {
			descs = append(descs,
				Desc{Name: RunningTotalName(k), Help: h.total, Kind: KindGauge},
				Desc{Name: RunningName(k), Help: h.running, Kind: KindGauge, LabelNames: k.LabelNames()},
			)
			continue
		}
		descs = append(descs,
			Desc{Name: DurationName(k), Help: h.duration, Kind: KindDuration, LabelNames: k.LabelNames()},
			Desc{Name: SuccessName(k), Help: h.success, Kind: KindGauge, LabelNames: k.LabelNames()},
		)
	}
	for _, k := range lifecycle.Kinds {
		if k.Running() {
			continue
		}
		descs = append(descs, Desc{
			Name:       ResultsName(k),
			Help:       help[k].results,
			Kind:       KindCounter,
			LabelNames: append(k.LabelNames(), "result"),
		})
	}
	return append(descs,
		Desc{Name: EventsTotal, Help: "Lifecycle events applied by entity and action", Kind: KindCounter, LabelNames: []string{"entity", "action"}},
		Desc{Name: AnomaliesTotal, Help: "Lifecycle anomalies by kind", Kind: KindCounter, LabelNames: []string{"kind"}},
		Desc{Name: BuildInfo, Help: "Exporter build information", Kind: KindGauge, LabelNames: []string{"version", "commit"}},
	)
}

// DeclareCatalog declares every catalogue family on r.
func DeclareCatalog(r *Registry) error {
	for _, d := range Catalog() {
		if err := r.Declare(d); err != nil {
			return err
		}
	}
	return nil
}
