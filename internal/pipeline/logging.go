package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/zjrosen/nsstore/internal/log"
	"github.com/zjrosen/nsstore/internal/namespace"
)

// ===========================================================================
// Logging Middleware
// ===========================================================================

// LoggingConfig configures the logging stage.
type LoggingConfig struct {
	// DiffState logs a before/after diff of the target slot at debug level.
	// For unscoped actions the root partition is diffed.
	DiffState bool
}

// Logging returns a stage that logs every action it forwards.
func Logging(cfg LoggingConfig) Middleware {
	return func(api API) func(Dispatch) Dispatch {
		return func(next Dispatch) Dispatch {
			return func(ctx context.Context, action Action) (Action, error) {
				start := time.Now()
				key := targetOf(api, action)

				var before string
				if cfg.DiffState {
					before = renderSlot(api.GetState(), key)
				}

				result, err := next(ctx, action)
				duration := time.Since(start)

				if err != nil {
					log.Error(log.CatPipeline, "action failed",
						"namespace", key,
						"action_type", typeOf(action),
						"duration", duration,
						"error", err.Error(),
					)
					return result, err
				}

				log.Debug(log.CatPipeline, "action reduced",
					"namespace", reducedTarget(api, action, result),
					"action_type", typeOf(action),
					"duration", duration,
				)
				if cfg.DiffState {
					if diff := StateDiff(before, renderSlot(api.GetState(), key)); diff != "" {
						log.Debug(log.CatPipeline, "state changed",
							"namespace", key,
							"diff", diff,
						)
					}
				}
				return result, err
			}
		}
	}
}

// StateDiff renders an inline diff of two state renderings, marking removed
// text as [-text-] and added text as {+text+}. Equal inputs yield "".
func StateDiff(before, after string) string {
	if before == after {
		return ""
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			b.WriteString(d.Text)
		case diffmatchpatch.DiffDelete:
			b.WriteString("[-" + d.Text + "-]")
		case diffmatchpatch.DiffInsert:
			b.WriteString("{+" + d.Text + "+}")
		}
	}
	return b.String()
}

// renderSlot formats the state slot of key, or the root when key is zero.
// A missing namespace renders as "<absent>".
func renderSlot(s *namespace.State, key namespace.Key) string {
	if s == nil {
		return "<absent>"
	}
	if key.IsZero() {
		return fmt.Sprintf("%+v", s.Root())
	}
	v, ok := s.StateOf(key)
	if !ok {
		return "<absent>"
	}
	return fmt.Sprintf("%+v", v)
}

// targetOf returns the key an action addresses, falling back to the
// pipeline's own namespace.
func targetOf(api API, action Action) namespace.Key {
	if action != nil {
		if key, ok := namespace.KeyOf(action); ok {
			return key
		}
	}
	return api.Namespace()
}

// reducedTarget prefers the key on the reduced action, which is where a
// create's minted key first appears.
func reducedTarget(api API, action, result Action) namespace.Key {
	if result != nil {
		if key, ok := namespace.KeyOf(result); ok {
			return key
		}
	}
	return targetOf(api, action)
}

func typeOf(action Action) namespace.ActionType {
	if action == nil {
		return "<nil>"
	}
	return action.Type()
}
