// Package anomaly describes irregular lifecycle events (duplicate starts,
// orphan finishes, undecodable messages) and fans them out to sinks.
//
// Anomalies never stop event processing. They are logged, counted and
// optionally journaled, and the offending event is skipped or corrected.
package anomaly

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an anomaly.
type Kind string

const (
	DuplicateStart   Kind = "duplicate_start"
	OrphanFinish     Kind = "orphan_finish"
	NegativeDuration Kind = "negative_duration"
	DecodeFailure    Kind = "decode_failure"
	UnresolvedBuild  Kind = "unresolved_build"
	StaleInFlight    Kind = "stale_in_flight"
	DispatchPanic    Kind = "dispatch_panic"
)

// Anomaly is a single irregularity observed while applying events.
type Anomaly struct {
	ID       string
	Kind     Kind
	Entity   string // entity kind, e.g. "builds"; empty when the message could not be classified
	Identity string
	Detail   string
	At       time.Time
}

// New builds an anomaly with a fresh ID.
func New(kind Kind, entity, identity, detail string, at time.Time) Anomaly {
	return Anomaly{
		ID:       uuid.NewString(),
		Kind:     kind,
		Entity:   entity,
		Identity: identity,
		Detail:   detail,
		At:       at,
	}
}

// Sink receives anomalies. Implementations must be safe for concurrent use
// and must not block for long: Record is called on the dispatch path.
type Sink interface {
	Record(ctx context.Context, a Anomaly)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, a Anomaly)

// Record calls f.
func (f SinkFunc) Record(ctx context.Context, a Anomaly) { f(ctx, a) }

// MultiSink forwards every anomaly to each of its sinks in order.
type MultiSink []Sink

// Record implements Sink.
func (m MultiSink) Record(ctx context.Context, a Anomaly) {
	for _, s := range m {
		if s != nil {
			s.Record(ctx, a)
		}
	}
}

// Discard drops anomalies.
var Discard Sink = SinkFunc(func(context.Context, Anomaly) {})
