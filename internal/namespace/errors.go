package namespace

import "errors"

// ===========================================================================
// Registry Errors
// ===========================================================================

// ErrDuplicateType is returned when a type name is registered twice.
var ErrDuplicateType = errors.New("namespace: type already registered")

// ErrUnknownType is returned when a create or routed action names a type
// that is not in the registry.
var ErrUnknownType = errors.New("namespace: unknown type")

// ErrInvalidDescriptor is returned when a type descriptor has no name or no reducer.
var ErrInvalidDescriptor = errors.New("namespace: invalid type descriptor")

// ===========================================================================
// Lifecycle Errors
// ===========================================================================

// ErrNamespaceNotFound is returned when an action addresses a key that is not
// present in the state tree.
var ErrNamespaceNotFound = errors.New("namespace: not found")

// ErrNamespaceExists is returned when a create action carries a key that is
// already present in the state tree.
var ErrNamespaceExists = errors.New("namespace: key already present")

// ErrNoOwners is returned when a create action has an empty owner list.
var ErrNoOwners = errors.New("namespace: create requires at least one owner token")

// ErrInvalidToken is returned for nil or non-comparable owner tokens.
var ErrInvalidToken = errors.New("namespace: invalid owner token")

// ErrTokenNotHeld is returned by strict engines when removing a token the
// namespace does not hold.
var ErrTokenNotHeld = errors.New("namespace: token not held")

// ErrInvalidAction is returned for nil actions and create actions that reach
// the reducer without a minted key.
var ErrInvalidAction = errors.New("namespace: invalid action")

// ErrReducerPanic is returned when a type or root reducer panics. The
// snapshot is left as it was.
var ErrReducerPanic = errors.New("namespace: reducer panicked")

// ===========================================================================
// Pipeline Errors
// ===========================================================================

// ErrPipelineNotReady is returned when a middleware stage dispatches before
// its pipeline has been fully assembled.
var ErrPipelineNotReady = errors.New("namespace: dispatching while constructing middleware is not allowed")
