package namespace

import "context"

// Dispatch forwards an action towards the reducer and returns the action as
// it was finally reduced. Create actions come back carrying their minted key.
type Dispatch func(ctx context.Context, action Action) (Action, error)

// API is what a middleware stage sees of the store.
type API interface {
	// GetState returns the latest committed snapshot.
	GetState() *State
	// Dispatch re-enters the pipeline the stage belongs to.
	Dispatch(ctx context.Context, action Action) (Action, error)
	// Namespace returns the key the pipeline is scoped to. It is the zero Key
	// for global stages.
	Namespace() Key
}

// Middleware is an interceptor factory. Given the API it returns a wrapper
// around the next dispatch in the chain.
type Middleware func(api API) func(next Dispatch) Dispatch

// BindDispatch returns a dispatch that routes every unscoped business action
// to key. Lifecycle actions and actions that already carry a key pass
// through untouched.
func BindDispatch(dispatch Dispatch, key Key) Dispatch {
	return func(ctx context.Context, action Action) (Action, error) {
		if action != nil && !IsLifecycle(action) {
			if _, scoped := KeyOf(action); !scoped {
				action = Tag(key, action)
			}
		}
		return dispatch(ctx, action)
	}
}
