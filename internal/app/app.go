// Package app wires a configured store, processor, journal and tracer
// together for the command line.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zjrosen/nsstore/internal/config"
	"github.com/zjrosen/nsstore/internal/counter"
	"github.com/zjrosen/nsstore/internal/flags"
	"github.com/zjrosen/nsstore/internal/journal"
	"github.com/zjrosen/nsstore/internal/log"
	"github.com/zjrosen/nsstore/internal/namespace"
	"github.com/zjrosen/nsstore/internal/pipeline"
	"github.com/zjrosen/nsstore/internal/processor"
	"github.com/zjrosen/nsstore/internal/pubsub"
	"github.com/zjrosen/nsstore/internal/store"
	"github.com/zjrosen/nsstore/internal/tracing"
)

// journalBuffer absorbs bursts while the journal writes to SQLite.
const journalBuffer = 1024

// App is the assembled runtime.
type App struct {
	Config config.Config
	Flags  *flags.Registry

	Store     *store.Store
	Processor *processor.Processor
	// Journal is nil unless journal.enabled is set.
	Journal *journal.Journal
	Tracing *tracing.Provider

	// ActionLog carries one event per dispatch when the action-log flag is on.
	ActionLog *pubsub.Broker[pipeline.ActionLogEvent]
	// Results carries one event per processed action.
	Results *pubsub.Broker[processor.ResultEvent]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// Option configures New.
type Option func(*options)

type options struct {
	schedule pipeline.Scheduler
}

// WithScheduler replaces time.AfterFunc in the deferred stage.
func WithScheduler(s pipeline.Scheduler) Option {
	return func(o *options) {
		o.schedule = s
	}
}

// New validates cfg and starts every component. The returned App must be
// closed.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	provider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracing provider: %w", err)
	}

	a := &App{
		Config:    cfg,
		Flags:     flags.New(cfg.Flags),
		Tracing:   provider,
		ActionLog: pubsub.NewBroker[pipeline.ActionLogEvent](),
		Results:   pubsub.NewBroker[processor.ResultEvent](),
	}
	a.ctx, a.cancel = context.WithCancel(ctx)

	a.Store = store.New(namespace.NewRegistry(), nil,
		store.WithEngineOptions(cfg.Engine.Options()...),
		store.WithMiddleware(a.globalStages()...),
	)
	a.Processor = processor.New(a.Store,
		processor.WithQueueCapacity(cfg.Processor.QueueCapacity),
		processor.WithEventBus(a.Results),
	)

	if err := a.Store.RegisterTypes(counter.Types(a.typeConfig(o))...); err != nil {
		a.abort()
		return nil, fmt.Errorf("failed to register types: %w", err)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Processor.Run(a.ctx)
	}()
	if err := a.Processor.WaitForReady(ctx); err != nil {
		a.abort()
		return nil, err
	}

	if cfg.Journal.Enabled {
		if err := a.startJournal(); err != nil {
			a.abort()
			return nil, err
		}
	}

	log.Info(log.CatConfig, "app started",
		"journal", cfg.Journal.Enabled,
		"tracing", provider.Enabled(),
		"flags", a.Flags.All(),
	)
	return a, nil
}

// globalStages returns the chain every action passes, outermost first.
func (a *App) globalStages() []namespace.Middleware {
	stages := []namespace.Middleware{
		tracing.NewMiddleware(tracing.MiddlewareConfig{Tracer: a.Tracing.Tracer()}),
		pipeline.Logging(pipeline.LoggingConfig{}),
	}
	if threshold := a.Config.Middleware.SlowThreshold; threshold > 0 {
		stages = append(stages, pipeline.SlowWarning(pipeline.SlowConfig{Threshold: threshold}))
	}
	if a.Flags.Enabled(flags.FlagActionLog) {
		stages = append(stages, pipeline.EventLog(pipeline.EventLogConfig{Publisher: a.ActionLog}))
	}
	return stages
}

// typeConfig assembles the per-type pipelines.
func (a *App) typeConfig(o options) counter.Config {
	mw := a.Config.Middleware

	var dedup []namespace.Middleware
	if mw.DedupTTL > 0 {
		dedup = append(dedup, pipeline.NewDedup(pipeline.DedupConfig{TTL: mw.DedupTTL}).Middleware())
	}

	counterStages := []namespace.Middleware{
		tracing.NewMiddleware(tracing.MiddlewareConfig{
			Tracer: a.Tracing.Tracer(),
			Prefix: tracing.SpanPrefixStage,
		}),
		pipeline.Validate(),
	}
	counterStages = append(counterStages, dedup...)
	counterStages = append(counterStages, pipeline.Logging(pipeline.LoggingConfig{DiffState: mw.DiffState}))
	if a.Flags.Enabled(flags.FlagDeferredActions) {
		counterStages = append(counterStages, pipeline.Deferred(pipeline.DeferredConfig{
			Schedule: o.schedule,
			Redispatch: a.redispatchDeferred,
		}))
	}

	listStages := append([]namespace.Middleware{pipeline.Validate()}, dedup...)

	return counter.Config{
		CounterMiddleware: counterStages,
		List: counter.ListConfig{
			Release:    counter.DeleteChildren(a.Store.Dispatch),
			Middleware: listStages,
		},
	}
}

// redispatchDeferred queues a released action on the processor. Timers that
// fire after Close find the processor drained; their work is dropped.
func (a *App) redispatchDeferred(ctx context.Context, action namespace.Action) (namespace.Action, error) {
	err := a.Processor.SubmitContext(ctx, action)
	if errors.Is(err, processor.ErrNotRunning) {
		log.Debug(log.CatProcessor, "dropping deferred action after shutdown",
			"action_type", action.Type(),
		)
		return action, nil
	}
	return action, err
}

func (a *App) startJournal() error {
	var opts []journal.Option
	if a.Config.Journal.IncludeUpdates {
		opts = append(opts, journal.WithUpdates())
	}
	j, err := journal.Open(a.Config.Journal.Path, opts...)
	if err != nil {
		return err
	}
	a.Journal = j

	// Subscribe before returning so no change after New is missed.
	events := a.Store.Subscribe(a.ctx,
		pubsub.Where(func(e pubsub.Event[namespace.Change]) bool { return j.Accepts(e.Payload) }),
		pubsub.WithBuffer[namespace.Change](journalBuffer),
	)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		j.Follow(a.ctx, events)
	}()
	return nil
}

// abort tears down a partially built App.
func (a *App) abort() {
	_ = a.Close(context.Background())
}

// Close drains queued work, waits for the journal to catch up and flushes
// the tracer. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		if a.Processor != nil {
			a.Processor.Drain()
		}
		// Closing the change bus lets the journal record what is still
		// buffered before Follow returns.
		if a.Store != nil {
			a.Store.Close()
		}
		a.wg.Wait()
		a.cancel()

		var errs []error
		if a.Journal != nil {
			if err := a.Journal.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		a.ActionLog.Close()
		a.Results.Close()
		if err := a.Tracing.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}
