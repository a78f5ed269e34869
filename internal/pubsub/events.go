// Package pubsub provides a generic publish/subscribe event system.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

// Event types. Store change events reuse the namespace lifecycle names;
// FailedEvent marks a rejected dispatch.
const (
	CreatedEvent      EventType = "created"
	UpdatedEvent      EventType = "updated"
	DeletedEvent      EventType = "deleted"
	ReferencedEvent   EventType = "referenced"
	UnreferencedEvent EventType = "unreferenced"
	FailedEvent       EventType = "failed"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context, opts ...SubscribeOption[T]) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
