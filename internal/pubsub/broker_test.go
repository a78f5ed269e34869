package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, ch <-chan Event[T]) Event[T] {
	t.Helper()
	select {
	case event, ok := <-ch:
		require.True(t, ok, "channel closed")
		return event
	case <-time.After(time.Second):
		require.FailNow(t, "timeout waiting for event")
		return Event[T]{}
	}
}

func requireEmpty[T any](t *testing.T, ch <-chan Event[T]) {
	t.Helper()
	select {
	case event := <-ch:
		require.FailNow(t, "unexpected event", "%+v", event)
	default:
	}
}

func TestBroker_FanOut(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()
	ctx := context.Background()

	subs := []<-chan Event[string]{broker.Subscribe(ctx), broker.Subscribe(ctx), broker.Subscribe(ctx)}
	require.Equal(t, 3, broker.SubscriberCount())

	broker.Publish(CreatedEvent, "Counter/1")

	for _, ch := range subs {
		event := receive(t, ch)
		assert.Equal(t, CreatedEvent, event.Type)
		assert.Equal(t, "Counter/1", event.Payload)
		assert.False(t, event.Timestamp.IsZero())
	}
	assert.Equal(t, int64(1), broker.Published())
}

func TestBroker_OnlyTypes(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	lifecycle := broker.Subscribe(context.Background(), OnlyTypes[string](CreatedEvent, DeletedEvent))

	broker.Publish(CreatedEvent, "a")
	broker.Publish(UpdatedEvent, "a")
	broker.Publish(ReferencedEvent, "a")
	broker.Publish(DeletedEvent, "a")

	assert.Equal(t, CreatedEvent, receive(t, lifecycle).Type)
	assert.Equal(t, DeletedEvent, receive(t, lifecycle).Type)
	requireEmpty(t, lifecycle)
}

func TestBroker_WhereCombinesFilters(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Close()

	even := Where(func(e Event[int]) bool { return e.Payload%2 == 0 })
	ch := broker.Subscribe(context.Background(), even, OnlyTypes[int](UpdatedEvent))

	for i := 0; i < 6; i++ {
		broker.Publish(UpdatedEvent, i)
	}
	broker.Publish(FailedEvent, 8)

	for _, want := range []int{0, 2, 4} {
		assert.Equal(t, want, receive(t, ch).Payload)
	}
	requireEmpty(t, ch)
	assert.Zero(t, broker.Dropped(), "filtered events are not drops")
}

func TestBroker_PublishNeverBlocks(t *testing.T) {
	broker := NewBrokerWithBuffer[int](1)
	defer broker.Close()

	ch := broker.Subscribe(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 3; i++ {
			broker.Publish(UpdatedEvent, i)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "Publish blocked")
	}

	assert.Equal(t, 1, receive(t, ch).Payload)
	assert.Equal(t, int64(2), broker.Dropped())
	assert.Equal(t, int64(3), broker.Published())
}

func TestBroker_WithBufferOverridesDefault(t *testing.T) {
	broker := NewBrokerWithBuffer[int](1)
	defer broker.Close()

	ch := broker.Subscribe(context.Background(), WithBuffer[int](10))
	for i := 0; i < 10; i++ {
		broker.Publish(UpdatedEvent, i)
	}
	assert.Zero(t, broker.Dropped())
	assert.Len(t, ch, 10)
}

func TestBroker_CancelRemovesSubscription(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := broker.Subscribe(ctx)
	require.Equal(t, 1, broker.SubscriberCount())

	cancel()
	require.Eventually(t, func() bool { return broker.SubscriberCount() == 0 }, time.Second, time.Millisecond)

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed")
}

func TestBroker_CloseKeepsBufferedEvents(t *testing.T) {
	broker := NewBroker[string]()
	ch := broker.Subscribe(context.Background())

	broker.Publish(CreatedEvent, "first")
	broker.Publish(DeletedEvent, "second")
	broker.Close()
	broker.Close()

	assert.Equal(t, "first", receive(t, ch).Payload)
	assert.Equal(t, "second", receive(t, ch).Payload)
	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, broker.SubscriberCount())

	late := broker.Subscribe(context.Background())
	_, ok = <-late
	assert.False(t, ok, "subscribe after close returns a closed channel")

	broker.Publish(UpdatedEvent, "ignored")
	assert.Equal(t, int64(2), broker.Published())
}

func TestBroker_ConcurrentPublishAndSubscribe(t *testing.T) {
	broker := NewBrokerWithBuffer[int](1000)
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				broker.Publish(UpdatedEvent, i)
			}
		}()
	}
	for s := 0; s < 4; s++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			subCtx, subCancel := context.WithCancel(ctx)
			_ = broker.Subscribe(subCtx)
			subCancel()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(400), broker.Published())
}
