// Package events defines the typed lifecycle events exchanged between the
// event subscriber and the state tracker, and the in-process bus carrying them.
package events

import (
	"time"

	"git.home.luguber.info/inful/buildbot-exporter/internal/lifecycle"
)

// Transition is the lifecycle edge an event represents.
type Transition string

const (
	Started  Transition = "started"
	Finished Transition = "finished"
)

// Event is implemented by every lifecycle event.
type Event interface {
	Meta() Meta
	Kind() lifecycle.Kind
	Transition() Transition
	// Identity is the in-flight key of the entity within its kind.
	Identity() string
}

// Meta carries envelope details shared by all events.
type Meta struct {
	ID     string
	Source string
	// At is the time the transition happened: the payload timestamp when
	// present, otherwise the time the message was received.
	At time.Time
}

// BuilderEvent reports a builder starting or stopping.
type BuilderEvent struct {
	Header    Meta
	Edge      Transition
	BuilderID string
	Name      string
}

// WorkerEvent reports a worker connecting or disconnecting.
type WorkerEvent struct {
	Header   Meta
	Edge     Transition
	WorkerID string
	Name     string
}

// BuildEvent reports a build starting or finishing.
type BuildEvent struct {
	Header    Meta
	Edge      Transition
	BuildID   string
	BuilderID string
	WorkerID  string
	Result    lifecycle.Result
}

// BuildRequestEvent reports a build request being submitted or completed.
type BuildRequestEvent struct {
	Header         Meta
	Edge           Transition
	BuildRequestID string
	BuilderID      string
	BuildSetID     string
	Result         lifecycle.Result
}

// BuildSetEvent reports a buildset being submitted or completed.
type BuildSetEvent struct {
	Header     Meta
	Edge       Transition
	BuildSetID string
	Result     lifecycle.Result
}

// StepEvent reports a step starting or finishing. BuilderID and WorkerID are
// empty when the message only referenced the owning build.
type StepEvent struct {
	Header    Meta
	Edge      Transition
	StepID    string
	BuildID   string
	Number    string
	Name      string
	BuilderID string
	WorkerID  string
	Result    lifecycle.Result
}

func (e BuilderEvent) Meta() Meta             { return e.Header }
func (e BuilderEvent) Kind() lifecycle.Kind   { return lifecycle.Builder }
func (e BuilderEvent) Transition() Transition { return e.Edge }
func (e BuilderEvent) Identity() string       { return e.BuilderID }

func (e WorkerEvent) Meta() Meta             { return e.Header }
func (e WorkerEvent) Kind() lifecycle.Kind   { return lifecycle.Worker }
func (e WorkerEvent) Transition() Transition { return e.Edge }
func (e WorkerEvent) Identity() string       { return e.WorkerID }

func (e BuildEvent) Meta() Meta             { return e.Header }
func (e BuildEvent) Kind() lifecycle.Kind   { return lifecycle.Build }
func (e BuildEvent) Transition() Transition { return e.Edge }
func (e BuildEvent) Identity() string       { return e.BuildID }

func (e BuildRequestEvent) Meta() Meta             { return e.Header }
func (e BuildRequestEvent) Kind() lifecycle.Kind   { return lifecycle.BuildRequest }
func (e BuildRequestEvent) Transition() Transition { return e.Edge }
func (e BuildRequestEvent) Identity() string       { return e.BuildRequestID }

func (e BuildSetEvent) Meta() Meta             { return e.Header }
func (e BuildSetEvent) Kind() lifecycle.Kind   { return lifecycle.BuildSet }
func (e BuildSetEvent) Transition() Transition { return e.Edge }
func (e BuildSetEvent) Identity() string       { return e.BuildSetID }

func (e StepEvent) Meta() Meta             { return e.Header }
func (e StepEvent) Kind() lifecycle.Kind   { return lifecycle.Step }
func (e StepEvent) Transition() Transition { return e.Edge }

// Identity keys a step by its owning build and its position in that build.
func (e StepEvent) Identity() string { return e.BuildID + "/" + e.Number }
