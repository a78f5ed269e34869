package namespace

import (
	"fmt"
	"slices"
)

// RootReducer reduces the non-namespaced partition. A nil RootReducer keeps
// the root unchanged.
type RootReducer func(root any, action Action) any

// ChangeKind describes what a transition did to the tree.
type ChangeKind string

const (
	// ChangeNone means the transition left the snapshot as it was.
	ChangeNone ChangeKind = ""
	// ChangeCreated means a namespace was added.
	ChangeCreated ChangeKind = "created"
	// ChangeReferenced means an owner token was added.
	ChangeReferenced ChangeKind = "referenced"
	// ChangeUnreferenced means an owner token was removed and owners remain.
	ChangeUnreferenced ChangeKind = "unreferenced"
	// ChangeUpdated means a business action replaced a namespace's state slot.
	ChangeUpdated ChangeKind = "updated"
	// ChangeDeleted means a namespace was removed by unref-to-empty or delete.
	ChangeDeleted ChangeKind = "deleted"
	// ChangeRoot means the root reducer produced a new root.
	ChangeRoot ChangeKind = "root"
)

// Change summarizes one committed transition.
type Change struct {
	Kind     ChangeKind
	Key      Key
	TypeName string
	// Token is the owner token added or removed, if any.
	Token RefToken
	// Owners is the owner count after the transition.
	Owners int
	Action ActionType
}

// Removal describes a namespace dropped by a transition. The caller invokes
// OnDelete with State once the new snapshot is committed.
type Removal struct {
	Key      Key
	TypeName string
	State    any
	OnDelete func(state any)
}

// Transition is the outcome of one reduction.
type Transition struct {
	State   *State
	Change  Change
	Removed *Removal
}

// Engine reduces actions against immutable snapshots. It intercepts the four
// lifecycle actions, routes keyed business actions to the owning type's
// reducer and hands everything else to the root reducer.
//
// Reduce is pure: it never mutates its input and never runs hooks.
type Engine struct {
	registry    *Registry
	root        RootReducer
	keys        *Generator
	multiset    bool
	strictUnref bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTokenMultiset lets the same token be held more than once. Each ref
// appends and each unref drops one occurrence. The default is set semantics,
// where adding a held token changes nothing.
func WithTokenMultiset() EngineOption {
	return func(e *Engine) {
		e.multiset = true
	}
}

// WithStrictUnref makes removing a token that is not held fail with
// ErrTokenNotHeld instead of being ignored.
func WithStrictUnref() EngineOption {
	return func(e *Engine) {
		e.strictUnref = true
	}
}

// WithGenerator sets the key generator. Engines sharing a generator never
// mint the same key.
func WithGenerator(g *Generator) EngineOption {
	return func(e *Engine) {
		if g != nil {
			e.keys = g
		}
	}
}

// NewEngine creates an Engine over registry wrapping root.
func NewEngine(registry *Registry, root RootReducer, opts ...EngineOption) *Engine {
	e := &Engine{
		registry: registry,
		root:     root,
		keys:     NewGenerator(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the registry the engine resolves types against.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Multiset reports whether owner tokens are counted with multiplicity.
func (e *Engine) Multiset() bool {
	return e.multiset
}

// Stamp mints a key for a create action that has none. Any other action is
// returned as is. A *CreateAction is returned as a stamped CreateAction value.
func (e *Engine) Stamp(action Action) Action {
	switch a := action.(type) {
	case CreateAction:
		if a.Key.IsZero() {
			a.Key = e.keys.Next(a.TypeName)
		}
		return a
	case *CreateAction:
		if a == nil {
			return action
		}
		c := *a
		if c.Key.IsZero() {
			c.Key = e.keys.Next(c.TypeName)
		}
		return c
	}
	return action
}

// Reduce computes the transition for action against prev. On error the
// returned Transition carries prev unchanged.
func (e *Engine) Reduce(prev *State, action Action) (Transition, error) {
	if prev == nil {
		prev = NewState(nil)
	}
	if action == nil {
		return Transition{State: prev}, fmt.Errorf("%w: nil action", ErrInvalidAction)
	}

	var (
		t   Transition
		err error
	)
	switch a := action.(type) {
	case CreateAction:
		t, err = e.create(prev, a)
	case *CreateAction:
		if a == nil {
			return Transition{State: prev}, fmt.Errorf("%w: nil create", ErrInvalidAction)
		}
		t, err = e.create(prev, *a)
	case RefAction:
		t, err = e.ref(prev, a.Key, a.Token)
	case *RefAction:
		if a == nil {
			return Transition{State: prev}, fmt.Errorf("%w: nil ref", ErrInvalidAction)
		}
		t, err = e.ref(prev, a.Key, a.Token)
	case UnrefAction:
		t, err = e.unref(prev, a.Key, a.Token)
	case *UnrefAction:
		if a == nil {
			return Transition{State: prev}, fmt.Errorf("%w: nil unref", ErrInvalidAction)
		}
		t, err = e.unref(prev, a.Key, a.Token)
	case DeleteAction:
		t, err = e.remove(prev, a.Key)
	case *DeleteAction:
		if a == nil {
			return Transition{State: prev}, fmt.Errorf("%w: nil delete", ErrInvalidAction)
		}
		t, err = e.remove(prev, a.Key)
	default:
		if key, ok := KeyOf(action); ok {
			t, err = e.route(prev, key, action)
		} else {
			t = e.reduceRoot(prev, action)
		}
	}
	if err != nil {
		return Transition{State: prev}, err
	}
	t.Change.Action = action.Type()
	return t, nil
}

// ===========================================================================
// Lifecycle
// ===========================================================================

func (e *Engine) create(prev *State, a CreateAction) (Transition, error) {
	if len(a.Owners) == 0 {
		return Transition{}, fmt.Errorf("%w: %s", ErrNoOwners, a.TypeName)
	}
	for _, tok := range a.Owners {
		if err := validateToken(tok); err != nil {
			return Transition{}, err
		}
	}
	desc, err := e.registry.Lookup(a.TypeName)
	if err != nil {
		return Transition{}, err
	}
	if a.Key.IsZero() {
		return Transition{}, fmt.Errorf("%w: create %s has no key", ErrInvalidAction, a.TypeName)
	}
	if prev.Has(a.Key) {
		return Transition{}, fmt.Errorf("%w: %s", ErrNamespaceExists, a.Key)
	}

	owners := e.normalizeOwners(a.Owners)
	initial := a.Initial
	if initial == nil {
		initial = desc.InitialState
	}
	if initial == nil {
		initial = map[string]any{}
	}

	return Transition{
		State: prev.withPartition(prev.part.insert(a.Key, desc.Name, owners, initial)),
		Change: Change{
			Kind:     ChangeCreated,
			Key:      a.Key,
			TypeName: desc.Name,
			Owners:   len(owners),
		},
	}, nil
}

func (e *Engine) ref(prev *State, key Key, token RefToken) (Transition, error) {
	if err := validateToken(token); err != nil {
		return Transition{}, err
	}
	typeName, ok := prev.TypeOf(key)
	if !ok {
		return Transition{}, fmt.Errorf("%w: %s", ErrNamespaceNotFound, key)
	}

	owners := prev.part.ownersOf[key]
	if !e.multiset && slices.Contains(owners, token) {
		return Transition{State: prev}, nil
	}

	next := make([]RefToken, len(owners), len(owners)+1)
	copy(next, owners)
	next = append(next, token)

	return Transition{
		State: prev.withPartition(prev.part.withOwners(key, next)),
		Change: Change{
			Kind:     ChangeReferenced,
			Key:      key,
			TypeName: typeName,
			Token:    token,
			Owners:   len(next),
		},
	}, nil
}

func (e *Engine) unref(prev *State, key Key, token RefToken) (Transition, error) {
	if err := validateToken(token); err != nil {
		return Transition{}, err
	}
	typeName, ok := prev.TypeOf(key)
	if !ok {
		return Transition{}, fmt.Errorf("%w: %s", ErrNamespaceNotFound, key)
	}

	owners := prev.part.ownersOf[key]
	idx := slices.Index(owners, token)
	if idx < 0 {
		if e.strictUnref {
			return Transition{}, fmt.Errorf("%w: %v on %s", ErrTokenNotHeld, token, key)
		}
		return Transition{State: prev}, nil
	}

	if len(owners) == 1 {
		t, err := e.remove(prev, key)
		t.Change.Token = token
		return t, err
	}

	next := slices.Delete(slices.Clone(owners), idx, idx+1)
	return Transition{
		State: prev.withPartition(prev.part.withOwners(key, next)),
		Change: Change{
			Kind:     ChangeUnreferenced,
			Key:      key,
			TypeName: typeName,
			Token:    token,
			Owners:   len(next),
		},
	}, nil
}

func (e *Engine) remove(prev *State, key Key) (Transition, error) {
	typeName, ok := prev.TypeOf(key)
	if !ok {
		return Transition{}, fmt.Errorf("%w: %s", ErrNamespaceNotFound, key)
	}
	last := prev.part.stateOf[key]

	removal := &Removal{Key: key, TypeName: typeName, State: last}
	if desc, err := e.registry.Lookup(typeName); err == nil {
		removal.OnDelete = desc.OnDelete
	}

	return Transition{
		State: prev.withPartition(prev.part.remove(key)),
		Change: Change{
			Kind:     ChangeDeleted,
			Key:      key,
			TypeName: typeName,
		},
		Removed: removal,
	}, nil
}

func (e *Engine) normalizeOwners(owners []RefToken) []RefToken {
	if e.multiset {
		return slices.Clone(owners)
	}
	out := make([]RefToken, 0, len(owners))
	for _, tok := range owners {
		if !slices.Contains(out, tok) {
			out = append(out, tok)
		}
	}
	return out
}

// ===========================================================================
// Routing
// ===========================================================================

func (e *Engine) route(prev *State, key Key, action Action) (Transition, error) {
	typeName, ok := prev.TypeOf(key)
	if !ok {
		return Transition{}, fmt.Errorf("%w: %s", ErrNamespaceNotFound, key)
	}
	desc, err := e.registry.Lookup(typeName)
	if err != nil {
		return Transition{}, err
	}

	next := desc.Reducer(prev.part.stateOf[key], Payload(action))
	return Transition{
		State: prev.withPartition(prev.part.withSlot(key, next)),
		Change: Change{
			Kind:     ChangeUpdated,
			Key:      key,
			TypeName: typeName,
			Owners:   len(prev.part.ownersOf[key]),
		},
	}, nil
}

func (e *Engine) reduceRoot(prev *State, action Action) Transition {
	if e.root == nil {
		return Transition{State: prev}
	}
	return Transition{
		State:  prev.withRoot(e.root(prev.root, action)),
		Change: Change{Kind: ChangeRoot},
	}
}
