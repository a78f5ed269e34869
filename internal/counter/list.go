package counter

import (
	"slices"

	"github.com/zjrosen/nsstore/internal/namespace"
)

// CounterList action types.
const (
	TypeAddCounter    namespace.ActionType = "counter_list/add_counter"
	TypeDeleteCounter namespace.ActionType = "counter_list/delete_counter"
	TypeDeleteAll     namespace.ActionType = "counter_list/delete_all"
)

// AddCounter appends ID to the list.
type AddCounter struct{ ID namespace.Key }

func (AddCounter) Type() namespace.ActionType { return TypeAddCounter }

// ContentHash lets a dedup stage drop a repeated add of the same child.
func (a AddCounter) ContentHash() string { return a.ID.String() }

// DeleteCounter removes ID from the list.
type DeleteCounter struct{ ID namespace.Key }

func (DeleteCounter) Type() namespace.ActionType { return TypeDeleteCounter }

// DeleteAll empties the list.
type DeleteAll struct{}

func (DeleteAll) Type() namespace.ActionType { return TypeDeleteAll }

// ReduceList is the CounterList reducer over []namespace.Key state. It never
// mutates the previous slice.
func ReduceList(state any, action namespace.Action) any {
	ids, _ := state.([]namespace.Key)
	switch a := action.(type) {
	case AddCounter:
		next := make([]namespace.Key, 0, len(ids)+1)
		return append(append(next, ids...), a.ID)
	case DeleteCounter:
		return slices.DeleteFunc(slices.Clone(ids), func(k namespace.Key) bool { return k == a.ID })
	case DeleteAll:
		return []namespace.Key{}
	default:
		return state
	}
}

// ListConfig configures the CounterList descriptor.
type ListConfig struct {
	// Release is called with the list's children after the list namespace
	// is deleted, so the caller can drop namespaces the list owned.
	Release func(children []namespace.Key)
	// Middleware is the list's pipeline.
	Middleware []namespace.Middleware
}

// ListType describes CounterList.
func ListType(cfg ListConfig) namespace.TypeDescriptor {
	desc := namespace.TypeDescriptor{
		Name:         ListTypeName,
		Reducer:      ReduceList,
		InitialState: []namespace.Key{},
		Middleware:   cfg.Middleware,
	}
	if cfg.Release != nil {
		desc.OnDelete = func(state any) {
			if children, ok := state.([]namespace.Key); ok && len(children) > 0 {
				cfg.Release(slices.Clone(children))
			}
		}
	}
	return desc
}

// Config assembles the demo type set.
type Config struct {
	CounterMiddleware []namespace.Middleware
	List              ListConfig
}

// Types returns the Counter, CounterList and Dummy descriptors.
func Types(cfg Config) []namespace.TypeDescriptor {
	return []namespace.TypeDescriptor{
		CounterType(cfg.CounterMiddleware...),
		ListType(cfg.List),
		DummyType(),
	}
}
