package namespace

// ActionType identifies the kind of an action.
type ActionType string

// Lifecycle action types. These are handled by the engine itself and never
// pass through per-type middleware.
const (
	// TypeCreate allocates a key and seeds a namespace.
	TypeCreate ActionType = "namespace/create"
	// TypeRef adds an owner token to a namespace.
	TypeRef ActionType = "namespace/ref"
	// TypeUnref removes an owner token and deletes the namespace when none remain.
	TypeUnref ActionType = "namespace/unref"
	// TypeDelete removes a namespace regardless of its owners.
	TypeDelete ActionType = "namespace/delete"
)

// String returns the string representation of the ActionType.
func (t ActionType) String() string {
	return string(t)
}

// Action is a plain data record describing an intended state change.
type Action interface {
	Type() ActionType
}

// Scoped is implemented by actions that address a single namespace.
// An action whose Namespace is the zero Key is treated as unscoped.
type Scoped interface {
	Action
	Namespace() Key
}

// Lifecycle is the closed set of namespace lifecycle actions:
// CreateAction, RefAction, UnrefAction and DeleteAction.
type Lifecycle interface {
	Scoped
	lifecycle()
}

// ===========================================================================
// Lifecycle Actions
// ===========================================================================

// CreateAction requests a new namespace of TypeName owned by Owners.
//
// Key is zero until the store mints one at dispatch; the dispatched action
// returned to the caller carries the new key.
type CreateAction struct {
	TypeName string
	Owners   []RefToken
	// Initial overrides the type's default state when non-nil.
	Initial any
	Key     Key
}

func (CreateAction) Type() ActionType { return TypeCreate }
func (a CreateAction) Namespace() Key { return a.Key }
func (CreateAction) lifecycle() {}

// RefAction adds Token to the owners of Key.
type RefAction struct {
	Key   Key
	Token RefToken
}

func (RefAction) Type() ActionType { return TypeRef }
func (a RefAction) Namespace() Key { return a.Key }
func (RefAction) lifecycle() {}

// UnrefAction removes Token from the owners of Key.
type UnrefAction struct {
	Key   Key
	Token RefToken
}

func (UnrefAction) Type() ActionType { return TypeUnref }
func (a UnrefAction) Namespace() Key { return a.Key }
func (UnrefAction) lifecycle() {}

// DeleteAction removes Key unconditionally.
type DeleteAction struct {
	Key Key
}

func (DeleteAction) Type() ActionType { return TypeDelete }
func (a DeleteAction) Namespace() Key { return a.Key }
func (DeleteAction) lifecycle() {}

// Create builds a create action for typeName owned by owners.
func Create(typeName string, owners ...RefToken) CreateAction {
	return CreateAction{TypeName: typeName, Owners: owners}
}

// CreateWithState builds a create action whose initial state overrides the
// type's default.
func CreateWithState(typeName string, initial any, owners ...RefToken) CreateAction {
	return CreateAction{TypeName: typeName, Owners: owners, Initial: initial}
}

// Ref builds an action adding token to the owners of key.
func Ref(key Key, token RefToken) RefAction {
	return RefAction{Key: key, Token: token}
}

// Unref builds an action removing token from the owners of key. The namespace
// is deleted once its last owner is removed.
func Unref(key Key, token RefToken) UnrefAction {
	return UnrefAction{Key: key, Token: token}
}

// Delete builds an action removing key regardless of its owners.
// Prefer Unref; Delete is for owners that know they are the last.
func Delete(key Key) DeleteAction {
	return DeleteAction{Key: key}
}

// ===========================================================================
// Business Actions
// ===========================================================================

// Targeted routes Payload to the namespace named by Key. It is how an
// arbitrary business action is tagged with a namespace.
type Targeted struct {
	Key     Key
	Payload Action
}

// Tag wraps payload so that it is routed to key.
func Tag(key Key, payload Action) Targeted {
	return Targeted{Key: key, Payload: payload}
}

// Type reports the payload's type.
func (t Targeted) Type() ActionType {
	if t.Payload == nil {
		return ""
	}
	return t.Payload.Type()
}

// Namespace returns the target key.
func (t Targeted) Namespace() Key { return t.Key }

// Unwrap returns the payload.
func (t Targeted) Unwrap() Action { return t.Payload }

// KeyOf returns the namespace an action addresses, if any.
func KeyOf(action Action) (Key, bool) {
	scoped, ok := action.(Scoped)
	if !ok {
		return Key{}, false
	}
	key := scoped.Namespace()
	if key.IsZero() {
		return Key{}, false
	}
	return key, true
}

// IsLifecycle reports whether action is one of the four lifecycle actions.
func IsLifecycle(action Action) bool {
	_, ok := action.(Lifecycle)
	return ok
}

// Payload strips envelopes and returns the action a type reducer sees.
func Payload(action Action) Action {
	for {
		w, ok := action.(interface{ Unwrap() Action })
		if !ok {
			return action
		}
		inner := w.Unwrap()
		if inner == nil {
			return action
		}
		action = inner
	}
}
