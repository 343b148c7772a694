package events

import (
	"context"
	"errors"
	"testing"
	"time"

	ferrors "git.home.luguber.info/inful/buildbot-exporter/internal/foundation/errors"
	"git.home.luguber.info/inful/buildbot-exporter/internal/lifecycle"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, unsubscribe := Subscribe[BuildEvent](b, 1)
	defer unsubscribe()

	require.NoError(t, b.Publish(context.Background(), BuildEvent{BuildID: "12", Edge: Started}))

	select {
	case got := <-ch:
		require.Equal(t, "12", got.BuildID)
	case <-time.After(250 * time.Millisecond):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_InterfaceSubscriptionReceivesConcreteEvents(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, unsubscribe := Subscribe[Event](b, 2)
	defer unsubscribe()

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, WorkerEvent{WorkerID: "2", Edge: Started}))
	require.NoError(t, b.Publish(ctx, StepEvent{BuildID: "9", Number: "0", Edge: Finished}))

	first := <-ch
	require.Equal(t, lifecycle.Worker, first.Kind())
	require.Equal(t, "2", first.Identity())

	second := <-ch
	require.Equal(t, lifecycle.Step, second.Kind())
	require.Equal(t, "9/0", second.Identity())
	require.Equal(t, Finished, second.Transition())
}

func TestBus_PublishBackpressure(t *testing.T) {
	b := NewBus()
	defer b.Close()

	_, unsubscribe := Subscribe[BuildEvent](b, 0) // unbuffered; no receiver => blocks
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := b.Publish(ctx, BuildEvent{BuildID: "1"})
	require.Error(t, err)

	classified, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	require.Equal(t, ferrors.CategoryRuntime, classified.Category())
}

func TestBus_UnsubscribedEventsAreCountedAsDropped(t *testing.T) {
	b := NewBus()
	defer b.Close()

	require.NoError(t, b.Publish(context.Background(), BuildSetEvent{BuildSetID: "4"}))

	published, dropped := b.Stats()
	require.Zero(t, published)
	require.Equal(t, uint64(1), dropped)
}

func TestBus_CloseDrainsBufferedEvents(t *testing.T) {
	b := NewBus()

	ch, _ := Subscribe[Event](b, 4)
	require.NoError(t, b.Publish(context.Background(), BuilderEvent{BuilderID: "1", Edge: Started}))
	b.Close()

	evt, ok := <-ch
	require.True(t, ok)
	require.Equal(t, "1", evt.Identity())

	_, ok = <-ch
	require.False(t, ok)

	err := b.Publish(context.Background(), BuilderEvent{BuilderID: "1"})
	require.True(t, errors.Is(err, ErrBusClosed))
}

func TestBus_SubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	b := NewBus()
	b.Close()

	ch, unsubscribe := Subscribe[Event](b, 1)
	unsubscribe()

	_, ok := <-ch
	require.False(t, ok)
	require.Zero(t, SubscriberCount[Event](b))
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus()
	defer b.Close()

	_, unsubscribe := Subscribe[Event](b, 1)
	require.Equal(t, 1, SubscriberCount[Event](b))

	unsubscribe()
	unsubscribe()
	require.Zero(t, SubscriberCount[Event](b))
}

func TestBus_PublishValidatesInput(t *testing.T) {
	b := NewBus()
	defer b.Close()

	require.Error(t, b.Publish(context.Background(), nil))
	//nolint:staticcheck // nil context is the case under test
	require.Error(t, b.Publish(nil, BuildEvent{}))
}
