// Package store provides the single serialized dispatch entry point for a
// namespaced state tree.
//
// Every action passes the global middleware chain first, then the namespace
// router, which builds a fresh pipeline from the target type's middleware for
// routed business actions, and finally the base dispatch, which reduces the
// action under the store lock and commits the new snapshot. onDelete hooks
// run after the commit, outside the lock.
package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zjrosen/nsstore/internal/log"
	"github.com/zjrosen/nsstore/internal/namespace"
	"github.com/zjrosen/nsstore/internal/pipeline"
	"github.com/zjrosen/nsstore/internal/pubsub"
)

// Option configures a Store.
type Option func(*Store)

// WithMiddleware adds global stages that see every action, lifecycle
// actions included, before namespace routing. The first stage is the
// outermost.
func WithMiddleware(stages ...namespace.Middleware) Option {
	return func(s *Store) {
		s.global = append(s.global, stages...)
	}
}

// WithEngineOptions passes options to the underlying engine.
func WithEngineOptions(opts ...namespace.EngineOption) Option {
	return func(s *Store) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// WithInitialRoot seeds the non-namespaced partition.
func WithInitialRoot(root any) Option {
	return func(s *Store) {
		s.initialRoot = root
	}
}

// WithEventBus publishes change events on bus instead of a private broker.
// The store does not close a bus it did not create.
func WithEventBus(bus *pubsub.Broker[namespace.Change]) Option {
	return func(s *Store) {
		s.events = bus
	}
}

// Store holds the current snapshot and serializes every reduction.
type Store struct {
	registry *namespace.Registry
	engine   *namespace.Engine

	// Construction-time settings
	engineOpts  []namespace.EngineOption
	initialRoot any
	global      []namespace.Middleware

	// mu serializes reduce+commit; current is readable without it.
	mu       sync.Mutex
	current  atomic.Pointer[namespace.State]
	dispatch namespace.Dispatch

	events  *pubsub.Broker[namespace.Change]
	ownsBus bool

	// Metrics
	dispatched atomic.Int64
	rejected   atomic.Int64
}

// New creates a Store over registry. root reduces the non-namespaced
// partition and may be nil.
func New(registry *namespace.Registry, root namespace.RootReducer, opts ...Option) *Store {
	s := &Store{registry: registry}
	for _, opt := range opts {
		opt(s)
	}

	s.engine = namespace.NewEngine(registry, root, s.engineOpts...)
	s.current.Store(namespace.NewState(s.initialRoot))
	if s.events == nil {
		s.events = pubsub.NewBroker[namespace.Change]()
		s.ownsBus = true
	}
	s.dispatch = pipeline.Chain(s.GetState, s.global, s.route, s.Dispatch)
	return s
}

// Registry returns the type registry.
func (s *Store) Registry() *namespace.Registry {
	return s.registry
}

// Engine returns the reducing engine.
func (s *Store) Engine() *namespace.Engine {
	return s.engine
}

// RegisterType adds a type to the registry. Types should be registered at
// startup, before concurrent dispatch begins.
func (s *Store) RegisterType(desc namespace.TypeDescriptor) error {
	if err := s.registry.Register(desc); err != nil {
		return err
	}
	log.Debug(log.CatEngine, "type registered", "type", desc.Name, "middleware", len(desc.Middleware))
	return nil
}

// RegisterTypes registers descs in order and stops at the first failure.
func (s *Store) RegisterTypes(descs ...namespace.TypeDescriptor) error {
	for _, desc := range descs {
		if err := s.RegisterType(desc); err != nil {
			return err
		}
	}
	return nil
}

// GetState returns the latest committed snapshot.
func (s *Store) GetState() *namespace.State {
	return s.current.Load()
}

// Dispatch sends action through the store. It returns the action as it was
// reduced; a create action comes back carrying its minted key. On error the
// snapshot is unchanged.
func (s *Store) Dispatch(ctx context.Context, action namespace.Action) (namespace.Action, error) {
	return s.dispatch(ctx, action)
}

// Bind returns a dispatch that routes unscoped business actions to key.
func (s *Store) Bind(key namespace.Key) namespace.Dispatch {
	return namespace.BindDispatch(s.Dispatch, key)
}

// Subscribe returns a channel of change events for the lifetime of ctx.
func (s *Store) Subscribe(ctx context.Context, opts ...pubsub.SubscribeOption[namespace.Change]) <-chan pubsub.Event[namespace.Change] {
	return s.events.Subscribe(ctx, opts...)
}

// Close shuts down the change event broker if the store owns it.
func (s *Store) Close() {
	if s.ownsBus {
		s.events.Close()
	}
}

// DispatchedCount returns the number of committed reductions.
func (s *Store) DispatchedCount() int64 {
	return s.dispatched.Load()
}

// RejectedCount returns the number of reductions rejected by the engine.
func (s *Store) RejectedCount() int64 {
	return s.rejected.Load()
}

// ===========================================================================
// Routing
// ===========================================================================

// route sends lifecycle and unscoped actions straight to base. Routed
// business actions go through a pipeline built from the target type's
// middleware.
func (s *Store) route(ctx context.Context, action namespace.Action) (namespace.Action, error) {
	if action == nil || namespace.IsLifecycle(action) {
		return s.base(ctx, action)
	}
	key, ok := namespace.KeyOf(action)
	if !ok {
		return s.base(ctx, action)
	}

	typeName, ok := s.GetState().TypeOf(key)
	if !ok {
		s.rejected.Add(1)
		return nil, fmt.Errorf("%w: %s", namespace.ErrNamespaceNotFound, key)
	}
	desc, err := s.registry.Lookup(typeName)
	if err != nil {
		s.rejected.Add(1)
		return nil, err
	}
	if len(desc.Middleware) == 0 {
		return s.base(ctx, action)
	}

	sink := namespace.BindDispatch(s.base, key)
	return pipeline.Build(s.GetState, key, desc.Middleware, sink)(ctx, action)
}

// base stamps, reduces and commits action. It is the only place the snapshot
// changes.
func (s *Store) base(ctx context.Context, action namespace.Action) (namespace.Action, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	action = s.engine.Stamp(action)

	t, err := s.commit(action)
	if err != nil {
		s.rejected.Add(1)
		log.Debug(log.CatStore, "action rejected",
			"action_type", actionType(action),
			"error", err.Error(),
		)
		return nil, err
	}

	if t.Change.Kind != namespace.ChangeNone && t.Change.Kind != namespace.ChangeRoot {
		log.Debug(log.CatStore, "namespace "+string(t.Change.Kind),
			"namespace", t.Change.Key,
			"type", t.Change.TypeName,
			"owners", t.Change.Owners,
		)
	}
	if t.Removed != nil {
		s.runOnDelete(t.Removed)
	}
	return action, nil
}

// commit reduces action against the current snapshot and stores the result.
// A panicking reducer is returned as ErrReducerPanic and leaves the snapshot
// unchanged.
func (s *Store) commit(action namespace.Action) (t namespace.Transition, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if p := recover(); p != nil {
			t = namespace.Transition{}
			err = fmt.Errorf("%w: %s: %v", namespace.ErrReducerPanic, actionType(action), p)
		}
	}()

	t, err = s.engine.Reduce(s.current.Load(), action)
	if err != nil {
		return namespace.Transition{}, err
	}
	s.current.Store(t.State)
	s.dispatched.Add(1)
	s.publish(t.Change)
	return t, nil
}

// publish must be called with mu held so subscribers see changes in commit order.
func (s *Store) publish(c namespace.Change) {
	var eventType pubsub.EventType
	switch c.Kind {
	case namespace.ChangeCreated:
		eventType = pubsub.CreatedEvent
	case namespace.ChangeReferenced:
		eventType = pubsub.ReferencedEvent
	case namespace.ChangeUnreferenced:
		eventType = pubsub.UnreferencedEvent
	case namespace.ChangeDeleted:
		eventType = pubsub.DeletedEvent
	case namespace.ChangeUpdated, namespace.ChangeRoot:
		eventType = pubsub.UpdatedEvent
	default:
		return
	}
	s.events.Publish(eventType, c)
}

// runOnDelete invokes the type's hook with the last state. A panicking hook
// is logged and does not affect the committed snapshot.
func (s *Store) runOnDelete(r *namespace.Removal) {
	if r.OnDelete == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			log.Error(log.CatStore, "onDelete hook panicked",
				"namespace", r.Key,
				"type", r.TypeName,
				"panic", p,
			)
		}
	}()
	r.OnDelete(r.State)
}

func actionType(action namespace.Action) namespace.ActionType {
	if action == nil {
		return "<nil>"
	}
	return action.Type()
}
