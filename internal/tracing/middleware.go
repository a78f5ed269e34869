package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/nsstore/internal/namespace"
	"github.com/zjrosen/nsstore/internal/pipeline"
)

// MiddlewareConfig configures the tracing stage.
type MiddlewareConfig struct {
	// Tracer creates the spans. If nil the stage passes actions through.
	Tracer trace.Tracer
	// Prefix overrides SpanPrefixDispatch, so a type pipeline can be told
	// apart from the global chain.
	Prefix string
}

// NewMiddleware returns a stage that opens one span per action. Spans carry
// the action type and, for routed actions, the namespace key and type as of
// the current snapshot. Actions re-dispatched by the deferred stage keep the
// scheduling span as parent because the detached context still carries it.
func NewMiddleware(cfg MiddlewareConfig) namespace.Middleware {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = SpanPrefixDispatch
	}

	return func(api namespace.API) func(namespace.Dispatch) namespace.Dispatch {
		return func(next namespace.Dispatch) namespace.Dispatch {
			if cfg.Tracer == nil {
				return next
			}
			return func(ctx context.Context, action namespace.Action) (namespace.Action, error) {
				actionType := "<nil>"
				if action != nil {
					actionType = string(action.Type())
				}

				ctx, span := cfg.Tracer.Start(ctx, prefix+actionType,
					trace.WithSpanKind(trace.SpanKindInternal),
				)
				defer span.End()

				span.SetAttributes(
					attribute.String(AttrActionType, actionType),
					attribute.Bool(AttrLifecycle, namespace.IsLifecycle(action)),
				)
				if _, ok := action.(pipeline.Released); ok {
					span.SetAttributes(attribute.Bool(AttrDeferred, true))
				}
				key, keyed := targetKey(api, action)
				if keyed {
					setNamespace(span, api, key)
				}

				result, err := next(ctx, action)
				if err != nil {
					span.RecordError(err)
					span.AddEvent(EventActionRejected)
					span.SetStatus(codes.Error, err.Error())
					return result, err
				}
				// A create is keyed only once the base has stamped it.
				if minted, ok := namespace.KeyOf(result); ok && (!keyed || minted != key) {
					setNamespace(span, api, minted)
				}
				span.SetStatus(codes.Ok, "")
				return result, err
			}
		}
	}
}

func setNamespace(span trace.Span, api namespace.API, key namespace.Key) {
	span.SetAttributes(attribute.String(AttrNamespaceKey, key.String()))
	if typeName, ok := api.GetState().TypeOf(key); ok {
		span.SetAttributes(attribute.String(AttrNamespaceType, typeName))
	}
}

func targetKey(api namespace.API, action namespace.Action) (namespace.Key, bool) {
	if key, ok := namespace.KeyOf(action); ok {
		return key, true
	}
	key := api.Namespace()
	return key, !key.IsZero()
}

// TraceID returns the hex trace ID of the span in ctx, or "" when ctx
// carries no valid span.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
