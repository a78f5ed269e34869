package pipeline

import (
	"context"
	"time"

	"github.com/zjrosen/nsstore/internal/log"
	"github.com/zjrosen/nsstore/internal/namespace"
)

// ===========================================================================
// Deferred Middleware
// ===========================================================================

// Delayer is implemented by payloads that should reach the reducer only
// after a delay.
type Delayer interface {
	Delay() time.Duration
}

// Released marks an action whose delay has elapsed so the deferred stage
// lets it through on re-entry.
type Released struct {
	Action Action
}

// Type reports the wrapped action's type.
func (r Released) Type() namespace.ActionType {
	return typeOf(r.Action)
}

// Namespace returns the wrapped action's key, if any.
func (r Released) Namespace() namespace.Key {
	if r.Action == nil {
		return namespace.Key{}
	}
	key, _ := namespace.KeyOf(r.Action)
	return key
}

// Unwrap returns the wrapped action.
func (r Released) Unwrap() Action {
	return r.Action
}

// Scheduler runs fn once after d. time.AfterFunc is the default.
type Scheduler func(d time.Duration, fn func())

// DeferredConfig configures the deferred stage.
type DeferredConfig struct {
	// Schedule overrides time.AfterFunc, mainly for tests.
	Schedule Scheduler
	// Redispatch receives released actions. When nil they re-enter the
	// stage's own pipeline. Point it at a processor to serialize delayed
	// work with other submitters.
	Redispatch Dispatch
}

// Deferred returns a stage that holds back payloads implementing Delayer.
// The held action is returned to the caller at once with a nil error; when
// the delay elapses the stage checks through GetState that its namespace
// still exists and only then re-dispatches the action. Work for a namespace
// that was deleted in the meantime is dropped.
func Deferred(cfg DeferredConfig) Middleware {
	schedule := cfg.Schedule
	if schedule == nil {
		schedule = func(d time.Duration, fn func()) { time.AfterFunc(d, fn) }
	}

	return func(api API) func(Dispatch) Dispatch {
		redispatch := cfg.Redispatch
		if redispatch == nil {
			redispatch = api.Dispatch
		}

		return func(next Dispatch) Dispatch {
			return func(ctx context.Context, action Action) (Action, error) {
				if _, ok := action.(Released); ok {
					return next(ctx, action)
				}
				delayer, ok := namespace.Payload(action).(Delayer)
				if !ok || delayer.Delay() <= 0 {
					return next(ctx, action)
				}

				key := targetOf(api, action)
				delay := delayer.Delay()
				detached := context.WithoutCancel(ctx)
				schedule(delay, func() {
					if !key.IsZero() && !api.GetState().Has(key) {
						log.Debug(log.CatPipeline, "dropping deferred action for deleted namespace",
							"namespace", key,
							"action_type", typeOf(action),
						)
						return
					}
					if _, err := redispatch(detached, Released{Action: action}); err != nil {
						log.ErrorErr(log.CatPipeline, "deferred dispatch failed", err,
							"namespace", key,
							"action_type", typeOf(action),
						)
					}
				})

				log.Debug(log.CatPipeline, "action deferred",
					"namespace", key,
					"action_type", typeOf(action),
					"delay", delay,
				)
				return action, nil
			}
		}
	}
}
