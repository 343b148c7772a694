package events

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"

	ferrors "git.home.luguber.info/inful/buildbot-exporter/internal/foundation/errors"
)

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = ferrors.RuntimeError("event bus is closed").Build()

// Bus carries decoded lifecycle events from the transport sources to the
// dispatcher. Routes are keyed by event type; a route for an interface type
// receives every event implementing it.
//
// Publish waits until every matching route has buffered the event or ctx is
// done, which pushes back on the sources when the dispatcher falls behind.
// Close must only be called once publishers have stopped.
type Bus struct {
	mu        sync.RWMutex
	routes    map[reflect.Type]map[uint64]*route
	lastID    atomic.Uint64
	published atomic.Uint64
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// route is one subscription: deliver hands an event to its channel, end
// closes that channel at most once.
type route struct {
	deliver func(ctx context.Context, evt any) error
	end     func()
}

func NewBus() *Bus {
	return &Bus{routes: make(map[reflect.Type]map[uint64]*route)}
}

// Subscribe opens a route for events of type T, buffered to buffer entries.
// The returned function detaches the route and closes the channel; calling it
// more than once is harmless. On a closed bus the channel comes back closed.
func Subscribe[T any](b *Bus, buffer int) (<-chan T, func()) {
	key := reflect.TypeFor[T]()
	ch := make(chan T, buffer)

	var endOnce sync.Once
	end := func() { endOnce.Do(func() { close(ch) }) }

	r := &route{
		deliver: func(ctx context.Context, evt any) error {
			v, ok := evt.(T)
			if !ok {
				return ferrors.InternalError("event type mismatch").
					WithContext("route", key.String()).
					WithContext("event", reflect.TypeOf(evt).String()).
					Build()
			}
			select {
			case ch <- v:
				return nil
			case <-ctx.Done():
				return ferrors.WrapError(ctx.Err(), ferrors.CategoryRuntime, "event publish canceled").
					WithContext("route", key.String()).
					Build()
			}
		},
		end: end,
	}

	id, ok := b.attach(key, r)
	if !ok {
		end()
		return ch, func() {}
	}

	var detachOnce sync.Once
	return ch, func() {
		detachOnce.Do(func() {
			b.detach(key, id)
			end()
		})
	}
}

func (b *Bus) attach(key reflect.Type, r *route) (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Load() {
		return 0, false
	}
	id := b.lastID.Add(1)
	if b.routes[key] == nil {
		b.routes[key] = make(map[uint64]*route)
	}
	b.routes[key][id] = r
	return id, true
}

func (b *Bus) detach(key reflect.Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.routes[key], id)
	if len(b.routes[key]) == 0 {
		delete(b.routes, key)
	}
}

// SubscriberCount returns the number of open routes for type T.
func SubscriberCount[T any](b *Bus) int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.routes[reflect.TypeFor[T]()])
}

// matching collects the routes an event of type t is delivered to.
func (b *Bus) matching(t reflect.Type) []*route {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*route
	for key, rs := range b.routes {
		if key != t && (key.Kind() != reflect.Interface || !t.Implements(key)) {
			continue
		}
		for _, r := range rs {
			out = append(out, r)
		}
	}
	return out
}

// Publish hands evt to every matching route. An event without a route is
// counted as dropped and is not an error.
func (b *Bus) Publish(ctx context.Context, evt any) error {
	switch {
	case evt == nil:
		return ferrors.ValidationError("event cannot be nil").Build()
	case ctx == nil:
		return ferrors.ValidationError("context cannot be nil").Build()
	case b.closed.Load():
		return ErrBusClosed
	}

	targets := b.matching(reflect.TypeOf(evt))
	if len(targets) == 0 {
		b.dropped.Add(1)
		return nil
	}
	for _, r := range targets {
		if err := r.deliver(ctx, evt); err != nil {
			return err
		}
	}
	b.published.Add(1)
	return nil
}

// Stats reports how many events were delivered and how many had no route.
func (b *Bus) Stats() (published, dropped uint64) {
	return b.published.Load(), b.dropped.Load()
}

// Close ends every route. The dispatcher keeps reading what was already
// buffered until its channel reports closed.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed.Store(true)
		open := b.routes
		b.routes = make(map[reflect.Type]map[uint64]*route)
		b.mu.Unlock()

		for _, rs := range open {
			for _, r := range rs {
				r.end()
			}
		}
	})
}
