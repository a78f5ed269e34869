// Package counter defines the demo namespace types: Counter, CounterList
// and Dummy.
package counter

import (
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/nsstore/internal/namespace"
)

// Type names.
const (
	CounterTypeName = "Counter"
	ListTypeName    = "CounterList"
	DummyTypeName   = "Dummy"
)

// Counter action types.
const (
	TypeIncrement      namespace.ActionType = "counter/increment"
	TypeDecrement      namespace.ActionType = "counter/decrement"
	TypeAdd            namespace.ActionType = "counter/add"
	TypeReset          namespace.ActionType = "counter/reset"
	TypeIncrementAfter namespace.ActionType = "counter/increment_after"
)

// ErrZeroDelta is returned by Add.Validate for a no-op delta.
var ErrZeroDelta = errors.New("delta must be non-zero")

// Increment adds one.
type Increment struct{}

func (Increment) Type() namespace.ActionType { return TypeIncrement }

// Decrement subtracts one.
type Decrement struct{}

func (Decrement) Type() namespace.ActionType { return TypeDecrement }

// Add adds N, which may be negative.
type Add struct{ N int }

func (Add) Type() namespace.ActionType { return TypeAdd }

// Validate rejects a zero delta.
func (a Add) Validate() error {
	if a.N == 0 {
		return ErrZeroDelta
	}
	return nil
}

// Reset sets the counter back to zero.
type Reset struct{}

func (Reset) Type() namespace.ActionType { return TypeReset }

// IncrementAfter adds one once Wait has elapsed, when the counter pipeline
// carries a deferred stage. Without one it applies immediately.
type IncrementAfter struct{ Wait time.Duration }

func (IncrementAfter) Type() namespace.ActionType { return TypeIncrementAfter }

// Delay implements pipeline.Delayer.
func (a IncrementAfter) Delay() time.Duration { return a.Wait }

// Validate rejects negative waits.
func (a IncrementAfter) Validate() error {
	if a.Wait < 0 {
		return fmt.Errorf("wait must not be negative, got %s", a.Wait)
	}
	return nil
}

// ReduceCounter is the Counter reducer over int state.
func ReduceCounter(state any, action namespace.Action) any {
	n, _ := state.(int)
	switch a := action.(type) {
	case Increment, IncrementAfter:
		return n + 1
	case Decrement:
		return n - 1
	case Add:
		return n + a.N
	case Reset:
		return 0
	default:
		return state
	}
}

// CounterType describes Counter with the given pipeline stages.
func CounterType(stages ...namespace.Middleware) namespace.TypeDescriptor {
	return namespace.TypeDescriptor{
		Name:         CounterTypeName,
		Reducer:      ReduceCounter,
		InitialState: 0,
		Middleware:   stages,
	}
}

// DummyType describes a stateless placeholder namespace whose initial
// state is an empty map.
func DummyType() namespace.TypeDescriptor {
	return namespace.TypeDescriptor{
		Name:         DummyTypeName,
		Reducer:      func(state any, _ namespace.Action) any { return state },
		InitialState: map[string]any{},
	}
}
