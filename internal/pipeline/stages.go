package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/zjrosen/nsstore/internal/log"
	"github.com/zjrosen/nsstore/internal/namespace"
)

// ===========================================================================
// Validation Middleware
// ===========================================================================

// Validator is implemented by payloads that can check themselves.
type Validator interface {
	Validate() error
}

// Validate returns a stage that rejects actions whose payload fails
// Validate. Rejected actions never reach the reducer and the error wraps
// namespace.ErrInvalidAction.
func Validate() Middleware {
	return func(api API) func(Dispatch) Dispatch {
		return func(next Dispatch) Dispatch {
			return func(ctx context.Context, action Action) (Action, error) {
				if v, ok := namespace.Payload(action).(Validator); ok {
					if err := v.Validate(); err != nil {
						log.Warn(log.CatPipeline, "action rejected by validation",
							"namespace", targetOf(api, action),
							"action_type", typeOf(action),
							"error", err.Error(),
						)
						return nil, fmt.Errorf("%w: %s: %w", namespace.ErrInvalidAction, typeOf(action), err)
					}
				}
				return next(ctx, action)
			}
		}
	}
}

// ===========================================================================
// Slow Stage Middleware
// ===========================================================================

// DefaultSlowThreshold is the default threshold for slow dispatch warnings.
const DefaultSlowThreshold = 100 * time.Millisecond

// SlowConfig configures the slow dispatch stage.
type SlowConfig struct {
	Threshold time.Duration
}

// SlowWarning returns a stage that logs a warning when the rest of the chain
// takes longer than the threshold. It never aborts the dispatch.
func SlowWarning(cfg SlowConfig) Middleware {
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = DefaultSlowThreshold
	}

	return func(api API) func(Dispatch) Dispatch {
		return func(next Dispatch) Dispatch {
			return func(ctx context.Context, action Action) (Action, error) {
				start := time.Now()
				result, err := next(ctx, action)
				if duration := time.Since(start); duration > threshold {
					log.Warn(log.CatPipeline, "dispatch exceeded time threshold",
						"namespace", targetOf(api, action),
						"action_type", typeOf(action),
						"duration", duration,
						"threshold", threshold,
					)
				}
				return result, err
			}
		}
	}
}
