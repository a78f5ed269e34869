package processor

import (
	"time"

	"github.com/zjrosen/nsstore/internal/namespace"
)

// ResultEvent is emitted after each queued action is dispatched.
type ResultEvent struct {
	// Namespace is the routed key, or the zero Key for unscoped actions.
	Namespace namespace.Key
	// ActionType is the dispatched action's type.
	ActionType namespace.ActionType
	// Success is false when the store rejected the action.
	Success bool
	// Error contains the dispatch error (nil on success).
	Error error
	// Duration is how long the dispatch took.
	Duration time.Duration
	// Timestamp is when the dispatch finished.
	Timestamp time.Time
	// TraceID correlates the dispatch with its span ("" if tracing is off).
	TraceID string
}
