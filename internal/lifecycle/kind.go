// Package lifecycle names the Buildbot entities the exporter tracks, the label
// schema each of them carries and the result vocabulary of finished entities.
package lifecycle

import "strings"

// Kind identifies a Buildbot entity collection. Values match the collection
// names used in Buildbot message routing keys.
type Kind string

const (
	Builder      Kind = "builders"
	Worker       Kind = "workers"
	Build        Kind = "builds"
	BuildRequest Kind = "buildrequests"
	BuildSet     Kind = "buildsets"
	Step         Kind = "steps"
)

// Kinds lists every tracked kind in catalogue order.
var Kinds = []Kind{Builder, Worker, Build, BuildRequest, BuildSet, Step}

// ParseKind resolves a routing-key collection token.
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// Running reports whether the kind is a long-lived entity exposed through
// running gauges rather than durations.
func (k Kind) Running() bool {
	return k == Builder || k == Worker
}

// MetricStem is the metric name segment used for the kind, e.g. "build_requests".
func (k Kind) MetricStem() string {
	switch k {
	case BuildRequest:
		return "build_requests"
	default:
		return string(k)
	}
}

// LabelNames returns the fixed label schema of the kind's per-entity families.
func (k Kind) LabelNames() []string {
	switch k {
	case Builder:
		return []string{"builder_id", "builder_name"}
	case Worker:
		return []string{"worker_id", "worker_name"}
	case Build:
		return []string{"builder_id", "worker_id"}
	case BuildRequest:
		return []string{"builder_id"}
	case BuildSet:
		return []string{"buildset_id"}
	case Step:
		return []string{"builder_id", "worker_id", "step_name", "step_number"}
	default:
		return nil
	}
}

func (k Kind) String() string { return string(k) }
