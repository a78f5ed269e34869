// Package pipeline assembles middleware chains around a dispatch function.
//
// A namespace pipeline is built fresh for every routed dispatch: each stage
// is handed an API whose Dispatch re-enters the same chain, the stages are
// composed in declaration order, and only then is the chain bound. A stage
// that dispatches while the chain is still being assembled gets
// namespace.ErrPipelineNotReady.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/zjrosen/nsstore/internal/namespace"
)

// Aliases so stage authors need only this package.
type (
	Action     = namespace.Action
	Dispatch   = namespace.Dispatch
	Middleware = namespace.Middleware
	API        = namespace.API
)

// StateFunc returns the latest committed snapshot.
type StateFunc func() *namespace.State

// api is the view a stage gets of its pipeline. Dispatch fails until bind
// has run.
type api struct {
	getState StateFunc
	key      namespace.Key
	bound    atomic.Pointer[Dispatch]
}

func (a *api) GetState() *namespace.State {
	return a.getState()
}

func (a *api) Namespace() namespace.Key {
	return a.key
}

func (a *api) Dispatch(ctx context.Context, action Action) (Action, error) {
	d := a.bound.Load()
	if d == nil {
		return nil, fmt.Errorf("%w: %s", namespace.ErrPipelineNotReady, a.key)
	}
	return (*d)(ctx, action)
}

func (a *api) bind(d Dispatch) {
	a.bound.Store(&d)
}

// Build assembles stages around sink for the namespace named by key and
// returns the bound head of the chain. The first stage is the outermost.
// With no stages the sink itself is returned.
func Build(getState StateFunc, key namespace.Key, stages []Middleware, sink Dispatch) Dispatch {
	if len(stages) == 0 {
		return sink
	}
	a := &api{getState: getState, key: key}
	head := compose(a, stages, sink)
	a.bind(head)
	return head
}

// Chain builds a long-lived chain whose stages re-enter through reentry
// rather than through the chain itself. The store uses it for global
// middleware, where re-dispatch must pass the whole store again. A nil
// reentry makes stages re-enter the chain. Either way, dispatching from a
// stage before Chain returns fails with namespace.ErrPipelineNotReady.
func Chain(getState StateFunc, stages []Middleware, sink Dispatch, reentry Dispatch) Dispatch {
	if len(stages) == 0 {
		return sink
	}
	a := &api{getState: getState}
	head := compose(a, stages, sink)
	if reentry == nil {
		reentry = head
	}
	a.bind(reentry)
	return head
}

// compose instantiates every stage against a, then wraps sink in reverse so
// that stages[0] runs first.
func compose(a *api, stages []Middleware, sink Dispatch) Dispatch {
	wrappers := make([]func(Dispatch) Dispatch, 0, len(stages))
	for _, stage := range stages {
		if stage == nil {
			continue
		}
		wrappers = append(wrappers, stage(a))
	}

	d := sink
	for i := len(wrappers) - 1; i >= 0; i-- {
		d = wrappers[i](d)
	}
	return d
}

// Forward is a stage that passes every action through unchanged.
func Forward() Middleware {
	return func(API) func(Dispatch) Dispatch {
		return func(next Dispatch) Dispatch {
			return next
		}
	}
}
