// Package processor provides an asynchronous FIFO front for a store.
// Actions submitted from any goroutine are dispatched one at a time, in
// submission order, by a single processing loop.
package processor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zjrosen/nsstore/internal/log"
	"github.com/zjrosen/nsstore/internal/namespace"
	"github.com/zjrosen/nsstore/internal/pubsub"
	"github.com/zjrosen/nsstore/internal/tracing"
)

// DefaultQueueCapacity is the default buffer size for the action queue.
const DefaultQueueCapacity = 1000

var (
	// ErrQueueFull is returned when the action queue has reached capacity.
	ErrQueueFull = errors.New("processor: queue is full")
	// ErrNotRunning is returned when submitting to a processor that is not
	// accepting actions.
	ErrNotRunning = errors.New("processor: not running")
)

// Dispatcher is the target the processor feeds. *store.Store satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, action namespace.Action) (namespace.Action, error)
}

// Option configures the Processor.
type Option func(*Processor)

// WithQueueCapacity sets the action queue buffer capacity.
func WithQueueCapacity(capacity int) Option {
	return func(p *Processor) {
		if capacity > 0 {
			p.queueCapacity = capacity
		}
	}
}

// WithEventBus publishes a ResultEvent for every processed action.
func WithEventBus(bus *pubsub.Broker[ResultEvent]) Option {
	return func(p *Processor) {
		p.eventBus = bus
	}
}

// Processor dispatches queued actions sequentially in FIFO order.
type Processor struct {
	target Dispatcher

	// Action queue (buffered channel)
	queue         chan queueItem
	queueCapacity int
	// queueMu keeps senders from racing Drain's close.
	queueMu sync.RWMutex

	eventBus *pubsub.Broker[ResultEvent]

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// State tracking
	running  atomic.Bool
	started  atomic.Bool
	readyCh  chan struct{}
	readyMu  sync.Mutex
	readySet bool

	// Metrics
	processedCount atomic.Int64
	errorCount     atomic.Int64
}

// queueItem wraps an action with an optional result channel for SubmitAndWait.
type queueItem struct {
	ctx      context.Context
	action   namespace.Action
	resultCh chan response // nil for fire-and-forget Submit
}

type response struct {
	action namespace.Action
	err    error
}

// New creates a Processor feeding target.
func New(target Dispatcher, opts ...Option) *Processor {
	p := &Processor{
		target:        target,
		queueCapacity: DefaultQueueCapacity,
		readyCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts the processing loop and blocks until ctx is cancelled, Stop is
// called or Drain empties the queue. Only the first call has any effect.
func (p *Processor) Run(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.queue = make(chan queueItem, p.queueCapacity)

	// Add to wait group BEFORE setting running to avoid race with Drain()
	p.wg.Add(1)
	p.running.Store(true)

	p.readyMu.Lock()
	if !p.readySet {
		close(p.readyCh)
		p.readySet = true
	}
	p.readyMu.Unlock()

	log.Debug(log.CatProcessor, "processor started", "capacity", p.queueCapacity)

	defer func() {
		p.running.Store(false)
		p.wg.Done()
		log.Debug(log.CatProcessor, "processor stopped",
			"processed", p.processedCount.Load(),
			"errors", p.errorCount.Load(),
		)
	}()

	for {
		select {
		case <-p.ctx.Done():
			return
		case item, ok := <-p.queue:
			if !ok {
				// Queue closed during Drain
				return
			}
			if p.ctx.Err() != nil {
				return
			}
			p.processItem(item)
		}
	}
}

// WaitForReady blocks until Run has started accepting actions.
func (p *Processor) WaitForReady(ctx context.Context) error {
	select {
	case <-p.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues action for asynchronous dispatch and returns immediately.
// Failures are reported through the event bus and the error counter.
func (p *Processor) Submit(action namespace.Action) error {
	return p.submit(nil, action)
}

// SubmitContext is Submit with ctx carried to the dispatch, keeping its
// values (such as the active span) but not its cancellation once queued.
func (p *Processor) SubmitContext(ctx context.Context, action namespace.Action) error {
	return p.submit(context.WithoutCancel(ctx), action)
}

// submit queues a fire-and-forget item; a nil ctx selects the processor's.
func (p *Processor) submit(ctx context.Context, action namespace.Action) error {
	p.queueMu.RLock()
	defer p.queueMu.RUnlock()
	if !p.running.Load() {
		return ErrNotRunning
	}

	if ctx == nil {
		ctx = p.ctx
	}
	select {
	case p.queue <- queueItem{ctx: ctx, action: action}:
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitAndWait queues action and waits for its dispatch result. It must not
// be called from inside the processing loop, such as from an onDelete hook
// triggered by a queued action; use Submit there.
func (p *Processor) SubmitAndWait(ctx context.Context, action namespace.Action) (namespace.Action, error) {
	resultCh := make(chan response, 1)
	if err := p.enqueue(ctx, queueItem{ctx: ctx, action: action, resultCh: resultCh}); err != nil {
		return nil, err
	}

	select {
	case resp := <-resultCh:
		return resp.action, resp.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.ctx.Done():
		return nil, context.Canceled
	}
}

// Dispatch is SubmitAndWait, letting the processor stand in for a store
// wherever a dispatch function is expected.
func (p *Processor) Dispatch(ctx context.Context, action namespace.Action) (namespace.Action, error) {
	return p.SubmitAndWait(ctx, action)
}

func (p *Processor) enqueue(ctx context.Context, item queueItem) error {
	p.queueMu.RLock()
	defer p.queueMu.RUnlock()
	if !p.running.Load() {
		return ErrNotRunning
	}

	select {
	case p.queue <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Stop cancels the processing loop and waits for it to exit. Queued actions
// are not dispatched.
func (p *Processor) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Drain stops accepting actions, dispatches everything already queued and
// waits for the loop to exit.
func (p *Processor) Drain() {
	p.queueMu.Lock()
	if !p.running.Load() {
		p.queueMu.Unlock()
		return
	}
	p.running.Store(false)
	close(p.queue)
	p.queueMu.Unlock()

	p.wg.Wait()
}

// IsRunning reports whether the processor is accepting actions.
func (p *Processor) IsRunning() bool {
	return p.running.Load()
}

// ProcessedCount returns the number of dispatched actions.
func (p *Processor) ProcessedCount() int64 {
	return p.processedCount.Load()
}

// ErrorCount returns the number of actions whose dispatch failed.
func (p *Processor) ErrorCount() int64 {
	return p.errorCount.Load()
}

// QueueLength returns the number of pending actions.
func (p *Processor) QueueLength() int {
	if p.queue == nil {
		return 0
	}
	return len(p.queue)
}

func (p *Processor) processItem(item queueItem) {
	ctx := item.ctx
	if ctx == nil {
		ctx = p.ctx
	}

	start := time.Now()
	reduced, err := p.target.Dispatch(ctx, item.action)
	duration := time.Since(start)

	p.processedCount.Add(1)
	if err != nil {
		p.errorCount.Add(1)
		if item.resultCh == nil {
			log.ErrorErr(log.CatProcessor, "queued action failed", err,
				"action_type", actionType(item.action),
			)
		}
	}
	p.emitResult(ctx, item.action, err, duration)

	if item.resultCh != nil {
		item.resultCh <- response{action: reduced, err: err}
		close(item.resultCh)
	}
}

func (p *Processor) emitResult(ctx context.Context, action namespace.Action, err error, duration time.Duration) {
	if p.eventBus == nil {
		return
	}
	key, _ := namespace.KeyOf(action)
	eventType := pubsub.UpdatedEvent
	if err != nil {
		eventType = pubsub.FailedEvent
	}
	p.eventBus.Publish(eventType, ResultEvent{
		Namespace:  key,
		ActionType: actionType(action),
		Success:    err == nil,
		Error:      err,
		Duration:   duration,
		Timestamp:  time.Now(),
		TraceID:    tracing.TraceID(ctx),
	})
}

func actionType(action namespace.Action) namespace.ActionType {
	if action == nil {
		return "<nil>"
	}
	return action.Type()
}
