package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/nsstore/internal/namespace"
	"github.com/zjrosen/nsstore/internal/pubsub"
)

// ===========================================================================
// Action Log Middleware
// ===========================================================================

// ActionLogEvent is published after each action leaves the chain.
type ActionLogEvent struct {
	// ID uniquely identifies this dispatch.
	ID string
	// Namespace is the target key, zero for unscoped actions.
	Namespace namespace.Key
	// ActionType is the dispatched action's type.
	ActionType namespace.ActionType
	// Success is false when the chain returned an error.
	Success bool
	// Error is the returned error, nil on success.
	Error error
	// Duration is how long the rest of the chain took.
	Duration time.Duration
	// Timestamp is when the dispatch finished.
	Timestamp time.Time
}

// EventLogConfig configures the action log stage.
type EventLogConfig struct {
	// Publisher receives one ActionLogEvent per dispatch. If nil the stage
	// passes actions through.
	Publisher pubsub.Publisher[ActionLogEvent]
}

// EventLog returns a stage that publishes an ActionLogEvent for every action.
func EventLog(cfg EventLogConfig) Middleware {
	return func(api API) func(Dispatch) Dispatch {
		return func(next Dispatch) Dispatch {
			if cfg.Publisher == nil {
				return next
			}
			return func(ctx context.Context, action Action) (Action, error) {
				start := time.Now()
				result, err := next(ctx, action)

				target := targetOf(api, action)
				if err == nil {
					target = reducedTarget(api, action, result)
				}
				cfg.Publisher.Publish(pubsub.CreatedEvent, ActionLogEvent{
					ID:         uuid.NewString(),
					Namespace:  target,
					ActionType: typeOf(action),
					Success:    err == nil,
					Error:      err,
					Duration:   time.Since(start),
					Timestamp:  time.Now(),
				})
				return result, err
			}
		}
	}
}
