package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zjrosen/nsstore/internal/namespace"
	"github.com/zjrosen/nsstore/internal/pipeline"
	"github.com/zjrosen/nsstore/internal/store"
)

// ===========================================================================
// Test Helpers
// ===========================================================================

type bump struct{}

func (bump) Type() namespace.ActionType { return "test/bump" }

type laterBump struct{}

func (laterBump) Type() namespace.ActionType { return "test/later_bump" }

func (laterBump) Delay() time.Duration { return time.Hour }

func newTestTracer() (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	return exporter, tp
}

func counter(stages ...namespace.Middleware) namespace.TypeDescriptor {
	return namespace.TypeDescriptor{
		Name:         "Counter",
		InitialState: 0,
		Middleware:   stages,
		Reducer: func(state any, action namespace.Action) any {
			n, _ := state.(int)
			switch action.(type) {
			case bump, laterBump:
				return n + 1
			}
			return n
		},
	}
}

func attrMap(span tracetest.SpanStub) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes {
		m[kv.Key] = kv.Value
	}
	return m
}

// ===========================================================================
// Tests
// ===========================================================================

func TestMiddleware_NilTracerPassesThrough(t *testing.T) {
	s := store.New(namespace.NewRegistry(), nil, store.WithMiddleware(NewMiddleware(MiddlewareConfig{})))
	defer s.Close()
	require.NoError(t, s.RegisterType(counter()))

	_, err := s.Create(context.Background(), "Counter", "A")
	require.NoError(t, err)
}

func TestMiddleware_GlobalSpanPerAction(t *testing.T) {
	exporter, tp := newTestTracer()
	s := store.New(namespace.NewRegistry(), nil,
		store.WithMiddleware(NewMiddleware(MiddlewareConfig{Tracer: tp.Tracer("test")})))
	defer s.Close()
	require.NoError(t, s.RegisterType(counter()))
	ctx := context.Background()

	key, err := s.Create(ctx, "Counter", "A")
	require.NoError(t, err)
	_, err = s.Bind(key)(ctx, bump{})
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	create := spans[0]
	assert.Equal(t, SpanPrefixDispatch+string(namespace.TypeCreate), create.Name)
	assert.Equal(t, codes.Ok, create.Status.Code)
	assert.True(t, attrMap(create)[AttrLifecycle].AsBool())
	assert.Equal(t, key.String(), attrMap(create)[AttrNamespaceKey].AsString())
	assert.Equal(t, "Counter", attrMap(create)[AttrNamespaceType].AsString())

	routed := spans[1]
	attrs := attrMap(routed)
	assert.Equal(t, "action.dispatch.test/bump", routed.Name)
	assert.Equal(t, key.String(), attrs[AttrNamespaceKey].AsString())
	assert.Equal(t, "Counter", attrs[AttrNamespaceType].AsString())
	assert.False(t, attrs[AttrLifecycle].AsBool())
}

func TestMiddleware_RecordsRejection(t *testing.T) {
	exporter, tp := newTestTracer()
	s := store.New(namespace.NewRegistry(), nil,
		store.WithMiddleware(NewMiddleware(MiddlewareConfig{Tracer: tp.Tracer("test")})))
	defer s.Close()

	_, err := s.Create(context.Background(), "Missing", "A")
	require.ErrorIs(t, err, namespace.ErrUnknownType)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Contains(t, spans[0].Status.Description, "unknown type")

	var names []string
	for _, e := range spans[0].Events {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, EventActionRejected)
}

func TestMiddleware_TypeStageUsesBoundNamespace(t *testing.T) {
	exporter, tp := newTestTracer()
	stage := NewMiddleware(MiddlewareConfig{Tracer: tp.Tracer("test"), Prefix: SpanPrefixStage})
	s := store.New(namespace.NewRegistry(), nil)
	defer s.Close()
	require.NoError(t, s.RegisterType(counter(stage)))
	ctx := context.Background()

	key, err := s.Create(ctx, "Counter", "A")
	require.NoError(t, err)
	require.Empty(t, exporter.GetSpans(), "lifecycle actions bypass type stages")

	_, err = s.Bind(key)(ctx, bump{})
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "action.stage.test/bump", spans[0].Name)
	assert.Equal(t, key.String(), attrMap(spans[0])[AttrNamespaceKey].AsString())
}

func TestMiddleware_ReleasedActionIsChildOfSchedulingSpan(t *testing.T) {
	exporter, tp := newTestTracer()
	var fire func()
	deferred := pipeline.Deferred(pipeline.DeferredConfig{
		Schedule: func(_ time.Duration, fn func()) { fire = fn },
	})
	traced := NewMiddleware(MiddlewareConfig{Tracer: tp.Tracer("test"), Prefix: SpanPrefixStage})
	s := store.New(namespace.NewRegistry(), nil)
	defer s.Close()
	require.NoError(t, s.RegisterType(counter(traced, deferred)))
	ctx := context.Background()

	key, err := s.Create(ctx, "Counter", "A")
	require.NoError(t, err)
	_, err = s.Bind(key)(ctx, laterBump{})
	require.NoError(t, err)
	require.NotNil(t, fire)
	fire()

	n, _ := store.SelectAs[int](s.GetState(), key)
	require.Equal(t, 1, n)

	// The scheduling span ends when the bound dispatch returns, before the
	// callback fires.
	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	scheduling, released := spans[0], spans[1]
	assert.True(t, attrMap(released)[AttrDeferred].AsBool())
	assert.Equal(t, scheduling.SpanContext.TraceID(), released.SpanContext.TraceID())
	assert.Equal(t, scheduling.SpanContext.SpanID(), released.Parent.SpanID())
}
