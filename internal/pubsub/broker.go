package pubsub

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

const defaultBufferSize = 64

// subscription is one subscriber channel and the filter deciding what it
// receives.
type subscription[T any] struct {
	ch     chan Event[T]
	accept func(Event[T]) bool
}

// SubscribeOption narrows or sizes a single subscription.
type SubscribeOption[T any] func(*subscribeConfig[T])

type subscribeConfig[T any] struct {
	buffer  int
	filters []func(Event[T]) bool
}

// OnlyTypes delivers events whose type is one of types.
func OnlyTypes[T any](types ...EventType) SubscribeOption[T] {
	return func(c *subscribeConfig[T]) {
		c.filters = append(c.filters, func(e Event[T]) bool {
			return slices.Contains(types, e.Type)
		})
	}
}

// Where delivers events for which keep returns true. keep runs on the
// publisher's goroutine and must not block.
func Where[T any](keep func(Event[T]) bool) SubscribeOption[T] {
	return func(c *subscribeConfig[T]) {
		c.filters = append(c.filters, keep)
	}
}

// WithBuffer overrides the broker's buffer size for one subscription.
func WithBuffer[T any](size int) SubscribeOption[T] {
	return func(c *subscribeConfig[T]) {
		if size > 0 {
			c.buffer = size
		}
	}
}

// Broker fans published events out to subscribers. Publish never blocks:
// a subscriber whose buffer is full misses the event and the miss is
// counted in Dropped.
type Broker[T any] struct {
	mu         sync.RWMutex
	subs       map[*subscription[T]]struct{}
	done       chan struct{}
	bufferSize int

	published atomic.Int64
	dropped   atomic.Int64
}

// NewBroker creates a broker whose subscriptions buffer 64 events.
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithBuffer[T](defaultBufferSize)
}

// NewBrokerWithBuffer creates a broker with a custom default buffer size.
func NewBrokerWithBuffer[T any](size int) *Broker[T] {
	if size < 0 {
		size = 0
	}
	return &Broker[T]{
		subs:       make(map[*subscription[T]]struct{}),
		done:       make(chan struct{}),
		bufferSize: size,
	}
}

// Subscribe returns a channel that receives events until ctx is done or the
// broker closes, whichever comes first; the channel is then closed. Events
// already buffered stay readable after the close.
func (b *Broker[T]) Subscribe(ctx context.Context, opts ...SubscribeOption[T]) <-chan Event[T] {
	cfg := subscribeConfig[T]{buffer: b.bufferSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed() {
		ch := make(chan Event[T])
		close(ch)
		return ch
	}

	sub := &subscription[T]{
		ch:     make(chan Event[T], cfg.buffer),
		accept: all(cfg.filters),
	}
	b.subs[sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[sub]; ok {
			delete(b.subs, sub)
			close(sub.ch)
		}
	}()

	return sub.ch
}

// Publish stamps and delivers an event to every matching subscriber.
func (b *Broker[T]) Publish(eventType EventType, payload T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed() {
		return
	}
	b.published.Add(1)

	event := Event[T]{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	for sub := range b.subs {
		if sub.accept != nil && !sub.accept(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Close closes every subscriber channel. Later Publish calls are ignored and
// later Subscribe calls get a closed channel.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed() {
		return
	}
	close(b.done)
	for sub := range b.subs {
		close(sub.ch)
	}
	clear(b.subs)
}

// SubscriberCount returns the number of open subscriptions.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Published returns how many events were accepted by Publish.
func (b *Broker[T]) Published() int64 {
	return b.published.Load()
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *Broker[T]) Dropped() int64 {
	return b.dropped.Load()
}

// closed must be called with mu held.
func (b *Broker[T]) closed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

func all[T any](filters []func(Event[T]) bool) func(Event[T]) bool {
	if len(filters) == 0 {
		return nil
	}
	return func(e Event[T]) bool {
		for _, keep := range filters {
			if !keep(e) {
				return false
			}
		}
		return true
	}
}
