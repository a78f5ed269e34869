package app

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/nsstore/internal/config"
	"github.com/zjrosen/nsstore/internal/counter"
	"github.com/zjrosen/nsstore/internal/flags"
	"github.com/zjrosen/nsstore/internal/journal"
	"github.com/zjrosen/nsstore/internal/log"
	"github.com/zjrosen/nsstore/internal/namespace"
	"github.com/zjrosen/nsstore/internal/pipeline"
	"github.com/zjrosen/nsstore/internal/pubsub"
	"github.com/zjrosen/nsstore/internal/store"
)

// ===========================================================================
// Test Helpers
// ===========================================================================

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Journal.Path = filepath.Join(t.TempDir(), "journal.db")
	cfg.Tracing.FilePath = filepath.Join(t.TempDir(), "traces.jsonl")
	return cfg
}

func newApp(t *testing.T, cfg config.Config, opts ...Option) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func counterValue(t *testing.T, a *App, key namespace.Key) int {
	t.Helper()
	n, ok := store.SelectAs[int](a.Store.GetState(), key)
	require.True(t, ok, "counter %s missing", key)
	return n
}

// manualScheduler collects deferred callbacks until the test fires them.
type manualScheduler struct {
	mu      sync.Mutex
	pending []func()
}

func (m *manualScheduler) Schedule(_ time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, fn)
}

func (m *manualScheduler) FireAll() {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

// ===========================================================================
// Tests
// ===========================================================================

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.TokenSemantics = "bag"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestNew_RegistersCounterTypes(t *testing.T) {
	a := newApp(t, testConfig(t))

	for _, name := range []string{counter.CounterTypeName, counter.ListTypeName, counter.DummyTypeName} {
		_, err := a.Store.Registry().Lookup(name)
		require.NoError(t, err, name)
	}
	assert.True(t, a.Processor.IsRunning())
	assert.Nil(t, a.Journal)
}

func TestApp_ListWithProcessorUpdates(t *testing.T) {
	a := newApp(t, testConfig(t))
	ctx := context.Background()

	list, err := counter.NewList(ctx, a.Store, "app", counter.CounterTypeName)
	require.NoError(t, err)
	child, err := list.Add(ctx)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := a.Processor.Dispatch(ctx, namespace.Tag(child, counter.Increment{}))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, counterValue(t, a, child))

	_, err = a.Processor.Dispatch(ctx, namespace.Tag(child, counter.Add{N: 0}))
	require.ErrorIs(t, err, namespace.ErrInvalidAction)
	assert.Equal(t, 3, counterValue(t, a, child))

	// Deleting the list releases its children.
	require.NoError(t, a.Store.Delete(ctx, list.Key()))
	assert.False(t, a.Store.GetState().Has(child))
}

func TestApp_DedupRejectsRepeatedAddCounter(t *testing.T) {
	a := newApp(t, testConfig(t))
	ctx := context.Background()

	listKey, err := a.Store.Create(ctx, counter.ListTypeName, "app")
	require.NoError(t, err)
	child, err := a.Store.Create(ctx, counter.CounterTypeName, listKey)
	require.NoError(t, err)

	_, err = a.Store.Dispatch(ctx, namespace.Tag(listKey, counter.AddCounter{ID: child}))
	require.NoError(t, err)
	_, err = a.Store.Dispatch(ctx, namespace.Tag(listKey, counter.AddCounter{ID: child}))
	require.ErrorIs(t, err, pipeline.ErrDuplicateAction)
}

func TestApp_DeferredIncrementRunsThroughProcessor(t *testing.T) {
	sched := &manualScheduler{}
	a := newApp(t, testConfig(t), WithScheduler(sched.Schedule))
	ctx := context.Background()

	key, err := a.Store.Create(ctx, counter.CounterTypeName, "app")
	require.NoError(t, err)

	_, err = a.Store.Dispatch(ctx, namespace.Tag(key, counter.IncrementAfter{Wait: time.Minute}))
	require.NoError(t, err)
	assert.Equal(t, 0, counterValue(t, a, key), "held until released")

	sched.FireAll()
	require.Eventually(t, func() bool {
		n, _ := store.SelectAs[int](a.Store.GetState(), key)
		return n == 1
	}, time.Second, 5*time.Millisecond)
}

func TestApp_DeferredDroppedAfterDelete(t *testing.T) {
	sched := &manualScheduler{}
	a := newApp(t, testConfig(t), WithScheduler(sched.Schedule))
	ctx := context.Background()

	key, err := a.Store.Create(ctx, counter.CounterTypeName, "app")
	require.NoError(t, err)
	_, err = a.Store.Dispatch(ctx, namespace.Tag(key, counter.IncrementAfter{Wait: time.Minute}))
	require.NoError(t, err)
	require.NoError(t, a.Store.Delete(ctx, key))

	before := a.Processor.ProcessedCount()
	sched.FireAll()
	a.Processor.Drain()
	assert.Equal(t, before, a.Processor.ProcessedCount())
}

func TestApp_DeferredFiringAfterCloseIsQuiet(t *testing.T) {
	sched := &manualScheduler{}
	a := newApp(t, testConfig(t), WithScheduler(sched.Schedule))
	ctx := context.Background()

	key, err := a.Store.Create(ctx, counter.CounterTypeName, "app")
	require.NoError(t, err)
	_, err = a.Store.Dispatch(ctx, namespace.Tag(key, counter.IncrementAfter{Wait: time.Minute}))
	require.NoError(t, err)
	require.NoError(t, a.Close(ctx))

	var buf bytes.Buffer
	log.InitWriter(&buf)
	log.SetMinLevel(log.LevelWarn)
	t.Cleanup(func() { log.SetEnabled(false) })

	before := a.Processor.ProcessedCount()
	sched.FireAll()
	assert.Equal(t, before, a.Processor.ProcessedCount())
	assert.NotContains(t, buf.String(), "deferred dispatch failed")

	_, err = a.redispatchDeferred(ctx, namespace.Tag(key, counter.Add{N: 1}))
	require.NoError(t, err)
}

func TestApp_DeferredFlagOff(t *testing.T) {
	cfg := testConfig(t)
	cfg.Flags = map[string]bool{flags.FlagDeferredActions: false}
	a := newApp(t, cfg)
	ctx := context.Background()

	key, err := a.Store.Create(ctx, counter.CounterTypeName, "app")
	require.NoError(t, err)
	_, err = a.Store.Dispatch(ctx, namespace.Tag(key, counter.IncrementAfter{Wait: time.Hour}))
	require.NoError(t, err)
	assert.Equal(t, 1, counterValue(t, a, key))
}

func TestApp_ActionLogFlag(t *testing.T) {
	cfg := testConfig(t)
	cfg.Flags = map[string]bool{flags.FlagActionLog: true}
	a := newApp(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	events := a.ActionLog.Subscribe(ctx)

	key, err := a.Store.Create(ctx, counter.DummyTypeName, "app")
	require.NoError(t, err)
	require.NoError(t, a.Store.Delete(ctx, key))

	first, ok := pubsub.Next(ctx, events)
	require.True(t, ok)
	assert.True(t, first.Payload.Success)
	assert.NotEmpty(t, first.Payload.ID)

	second, ok := pubsub.Next(ctx, events)
	require.True(t, ok)
	assert.Equal(t, key, second.Payload.Namespace)
}

func TestApp_ResultEvents(t *testing.T) {
	a := newApp(t, testConfig(t))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	results := a.Results.Subscribe(ctx)

	key, err := a.Store.Create(ctx, counter.CounterTypeName, "app")
	require.NoError(t, err)
	_, err = a.Processor.Dispatch(ctx, namespace.Tag(key, counter.Increment{}))
	require.NoError(t, err)

	event, ok := pubsub.Next(ctx, results)
	require.True(t, ok)
	assert.Equal(t, pubsub.UpdatedEvent, event.Type)
	assert.Equal(t, key, event.Payload.Namespace)
	assert.Equal(t, counter.TypeIncrement, event.Payload.ActionType)
}

func TestApp_JournalRecordsUntilClose(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal.Enabled = true
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, a.Journal)
	ctx := context.Background()

	key, err := a.Store.Create(ctx, counter.DummyTypeName, "app")
	require.NoError(t, err)
	require.NoError(t, a.Store.Ref(ctx, key, "viewer"))
	require.NoError(t, a.Store.Delete(ctx, key))
	require.NoError(t, a.Close(ctx))

	j, err := journal.Open(cfg.Journal.Path)
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.List(ctx, journal.Query{Namespace: key.String()})
	require.NoError(t, err)
	kinds := make([]namespace.ChangeKind, 0, len(entries))
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []namespace.ChangeKind{
		namespace.ChangeCreated,
		namespace.ChangeReferenced,
		namespace.ChangeDeleted,
	}, kinds)
}

func TestApp_CloseIsIdempotent(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)

	require.NoError(t, a.Close(context.Background()))
	require.NoError(t, a.Close(context.Background()))
	assert.False(t, a.Processor.IsRunning())
}
