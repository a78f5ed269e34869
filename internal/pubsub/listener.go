package pubsub

import "context"

// Next blocks until the next event arrives on ch.
// It returns false if ctx is done or ch is closed.
func Next[T any](ctx context.Context, ch <-chan Event[T]) (Event[T], bool) {
	select {
	case <-ctx.Done():
		return Event[T]{}, false
	case event, ok := <-ch:
		return event, ok
	}
}

// Listener keeps one subscription open and hands out events one at a time.
type Listener[T any] struct {
	ctx context.Context
	ch  <-chan Event[T]
}

// NewListener subscribes to broker for the lifetime of ctx.
func NewListener[T any](ctx context.Context, broker Subscriber[T], opts ...SubscribeOption[T]) *Listener[T] {
	return &Listener[T]{
		ctx: ctx,
		ch:  broker.Subscribe(ctx, opts...),
	}
}

// Next waits for the next event. See the package-level Next.
func (l *Listener[T]) Next() (Event[T], bool) {
	return Next(l.ctx, l.ch)
}

// Each calls fn for every event until ctx is done, the broker closes, or fn
// returns false.
func (l *Listener[T]) Each(fn func(Event[T]) bool) {
	for {
		event, ok := l.Next()
		if !ok || !fn(event) {
			return
		}
	}
}
