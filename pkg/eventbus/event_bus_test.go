package eventbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type savedEvent struct {
	ID int
}

func TestPublishMatchesSignature(t *testing.T) {
	t.Parallel()

	bus := NewEventPublisher(nil)

	var got []int
	bus.Subscribe(func(e *savedEvent) { got = append(got, e.ID) })
	bus.Subscribe(func(s string) { t.Fatal("string handler must not fire") })

	bus.Publish(&savedEvent{ID: 1})
	bus.Publish(&savedEvent{ID: 2})

	require.Equal(t, []int{1, 2}, got)
}

func TestSuspendSilencesPublish(t *testing.T) {
	t.Parallel()

	bus := NewEventPublisher(nil)

	var got int
	bus.Subscribe(func(e *savedEvent) { got++ })

	resume := bus.Suspend()
	bus.Publish(&savedEvent{ID: 1})
	require.Zero(t, got)

	resume()
	bus.Publish(&savedEvent{ID: 2})
	require.Equal(t, 1, got)

	// Resume is idempotent; calling it again must not unbalance nesting.
	resume()
	inner := bus.Suspend()
	bus.Publish(&savedEvent{ID: 3})
	require.Equal(t, 1, got)
	inner()
}

func TestSuspendNests(t *testing.T) {
	t.Parallel()

	bus := NewEventPublisher(nil)

	var got int
	bus.Subscribe(func(e *savedEvent) { got++ })

	outer := bus.Suspend()
	inner := bus.Suspend()

	inner()
	bus.Publish(&savedEvent{})
	require.Zero(t, got)

	outer()
	bus.Publish(&savedEvent{})
	require.Equal(t, 1, got)
}

func TestUnsubscribeAndClear(t *testing.T) {
	t.Parallel()

	bus := NewEventPublisher(nil)

	h := func(e *savedEvent) {}
	bus.Subscribe(h)
	require.Equal(t, 1, bus.SubscribersCount())

	bus.Unsubscribe(h)
	require.Zero(t, bus.SubscribersCount())

	bus.Subscribe(h)
	bus.Subscribe(func(e *savedEvent) {})
	bus.Clear()
	require.Zero(t, bus.SubscribersCount())
}

func TestPublishRecoversPanics(t *testing.T) {
	t.Parallel()

	bus := NewEventPublisher(nil)

	var after int
	bus.Subscribe(func(e *savedEvent) { panic("boom") })
	bus.Subscribe(func(e *savedEvent) { after++ })

	bus.Publish(&savedEvent{})
	require.Equal(t, 1, after)
}
