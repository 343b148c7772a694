package subscriber

import (
	"bytes"
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"

	"git.home.luguber.info/inful/buildbot-exporter/internal/events"
	ferrors "git.home.luguber.info/inful/buildbot-exporter/internal/foundation/errors"
	"git.home.luguber.info/inful/buildbot-exporter/internal/lifecycle"
)

var (
	// ErrDecodeFailure marks a message that cannot be turned into an event.
	ErrDecodeFailure = ferrors.DecodeError("undecodable buildbot message").Build()
	// ErrIgnoredAction marks a well-formed message that carries no lifecycle
	// transition. It is not an anomaly.
	ErrIgnoredAction = ferrors.DecodeError("message carries no lifecycle transition").WithSeverity(ferrors.SeverityInfo).Build()
)

// transitions maps each tracked collection's routing-key actions to the
// transition they represent. Actions missing here are ignored.
var transitions = map[lifecycle.Kind]map[string]events.Transition{
	lifecycle.Builder:      {"started": events.Started, "stopped": events.Finished},
	lifecycle.Worker:       {"connected": events.Started, "disconnected": events.Finished},
	lifecycle.Build:        {"new": events.Started, "started": events.Started, "finished": events.Finished},
	lifecycle.BuildRequest: {"new": events.Started, "complete": events.Finished},
	lifecycle.BuildSet:     {"new": events.Started, "complete": events.Finished},
	// a step announces itself with "new" before "started"; only the latter counts.
	lifecycle.Step: {"started": events.Started, "finished": events.Finished},
}

// Decode turns an envelope into a typed lifecycle event.
//
// The entity is named by the innermost collection of the routing key, which
// alternates collection and id tokens before the final action:
// [builders 1 builds 12 new] is a build.
func Decode(env Envelope) (events.Event, error) {
	key := env.RoutingKey
	if len(key) < 3 {
		return nil, ErrDecodeFailure.WithContext("routing_key", KeyString(key)).WithContext("reason", "routing key too short")
	}
	collection, action := key[len(key)-3], key[len(key)-1]

	kind, ok := lifecycle.ParseKind(collection)
	if !ok {
		return nil, ErrIgnoredAction.WithContext("routing_key", KeyString(key))
	}
	edge, ok := transitions[kind][action]
	if !ok {
		return nil, ErrIgnoredAction.WithContext("routing_key", KeyString(key))
	}

	raw, err := payloadMap(env.Payload)
	if err != nil {
		return nil, ErrDecodeFailure.WithContext("routing_key", KeyString(key)).WithCause(err)
	}

	meta := events.Meta{ID: env.ID, Source: env.Source, At: env.ReceivedAt}
	pick := func(started, complete time.Time) {
		ts := complete
		if edge == events.Started {
			ts = started
		}
		if !ts.IsZero() {
			meta.At = ts
		}
	}

	fail := func(err error) (events.Event, error) {
		return nil, ErrDecodeFailure.WithContext("routing_key", KeyString(key)).WithCause(err)
	}
	missing := func(field string) (events.Event, error) {
		return nil, ErrDecodeFailure.WithContext("routing_key", KeyString(key)).WithContext("missing", field)
	}

	switch kind {
	case lifecycle.Builder:
		var m builderMessage
		if err := decodeInto(raw, &m); err != nil {
			return fail(err)
		}
		if m.BuilderID == "" {
			return missing("builderid")
		}
		return events.BuilderEvent{Header: meta, Edge: edge, BuilderID: m.BuilderID, Name: m.Name}, nil

	case lifecycle.Worker:
		var m workerMessage
		if err := decodeInto(raw, &m); err != nil {
			return fail(err)
		}
		if m.WorkerID == "" {
			return missing("workerid")
		}
		return events.WorkerEvent{Header: meta, Edge: edge, WorkerID: m.WorkerID, Name: m.Name}, nil

	case lifecycle.Build:
		var m buildMessage
		if err := decodeInto(raw, &m); err != nil {
			return fail(err)
		}
		if m.BuildID == "" {
			return missing("buildid")
		}
		if edge == events.Started && m.BuilderID == "" {
			return missing("builderid")
		}
		pick(m.StartedAt, m.CompleteAt)
		return events.BuildEvent{
			Header:    meta,
			Edge:      edge,
			BuildID:   m.BuildID,
			BuilderID: m.BuilderID,
			WorkerID:  m.WorkerID,
			Result:    lifecycle.ResultFromCode(m.Results),
		}, nil

	case lifecycle.BuildRequest:
		var m buildRequestMessage
		if err := decodeInto(raw, &m); err != nil {
			return fail(err)
		}
		if m.BuildRequestID == "" {
			return missing("buildrequestid")
		}
		if edge == events.Started && m.BuilderID == "" {
			return missing("builderid")
		}
		pick(m.SubmittedAt, m.CompleteAt)
		return events.BuildRequestEvent{
			Header:         meta,
			Edge:           edge,
			BuildRequestID: m.BuildRequestID,
			BuilderID:      m.BuilderID,
			BuildSetID:     m.BuildSetID,
			Result:         lifecycle.ResultFromCode(m.Results),
		}, nil

	case lifecycle.BuildSet:
		var m buildSetMessage
		if err := decodeInto(raw, &m); err != nil {
			return fail(err)
		}
		if m.BuildSetID == "" {
			return missing("bsid")
		}
		pick(m.SubmittedAt, m.CompleteAt)
		return events.BuildSetEvent{
			Header:     meta,
			Edge:       edge,
			BuildSetID: m.BuildSetID,
			Result:     lifecycle.ResultFromCode(m.Results),
		}, nil

	default:
		var m stepMessage
		if err := decodeInto(raw, &m); err != nil {
			return fail(err)
		}
		if m.BuildID == "" {
			return missing("buildid")
		}
		if m.Number == "" {
			return missing("number")
		}
		pick(m.StartedAt, m.CompleteAt)
		return events.StepEvent{
			Header:    meta,
			Edge:      edge,
			StepID:    m.StepID,
			BuildID:   m.BuildID,
			Number:    m.Number,
			Name:      m.Name,
			BuilderID: m.BuilderID,
			WorkerID:  m.WorkerID,
			Result:    lifecycle.ResultFromCode(m.Results),
		}, nil
	}
}

func payloadMap(payload []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ferrors.DecodeError("payload is not a JSON object").Build()
	}
	return raw, nil
}

func decodeInto(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       epochTimeHook,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

var timeType = reflect.TypeOf(time.Time{})

// epochTimeHook converts Buildbot timestamps (epoch seconds, possibly
// fractional, or RFC 3339 strings) into time.Time.
func epochTimeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}
	switch v := data.(type) {
	case json.Number:
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return nil, err
		}
		return epochSeconds(f), nil
	case float64:
		return epochSeconds(v), nil
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return epochSeconds(f), nil
		}
		return time.Parse(time.RFC3339Nano, v)
	default:
		return data, nil
	}
}

func epochSeconds(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond))
}
