package namespace

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(counterType()))

	desc, err := reg.Lookup("Counter")
	require.NoError(t, err)
	assert.Equal(t, "Counter", desc.Name)
	assert.Equal(t, 0, desc.InitialState)
	assert.True(t, reg.Has("Counter"))
}

func TestRegistry_DuplicateKeepsFirst(t *testing.T) {
	reg := NewRegistry()
	first := counterType()
	first.InitialState = 1
	second := counterType()
	second.InitialState = 2

	require.NoError(t, reg.Register(first))
	err := reg.Register(second)
	require.ErrorIs(t, err, ErrDuplicateType)
	assert.Contains(t, err.Error(), "Counter")

	desc, err := reg.Lookup("Counter")
	require.NoError(t, err)
	assert.Equal(t, 1, desc.InitialState)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_LookupUnknown(t *testing.T) {
	_, err := NewRegistry().Lookup("Nope")
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestRegistry_RejectsInvalidDescriptors(t *testing.T) {
	reg := NewRegistry()
	require.ErrorIs(t, reg.Register(TypeDescriptor{Reducer: counterType().Reducer}), ErrInvalidDescriptor)
	require.ErrorIs(t, reg.Register(TypeDescriptor{Name: "NoReducer"}), ErrInvalidDescriptor)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_RegisterAllStopsAtFirstError(t *testing.T) {
	reg := NewRegistry()
	err := reg.RegisterAll(counterType(), counterType(), labelType())
	require.ErrorIs(t, err, ErrDuplicateType)
	assert.Equal(t, []string{"Counter"}, reg.Names())
}

func TestRegistry_NamesSorted(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterAll(labelType(), counterType()))
	assert.Equal(t, []string{"Counter", "Label"}, reg.Names())
}

func TestRegistry_MiddlewareSliceIsCopied(t *testing.T) {
	passthrough := func(api API) func(next Dispatch) Dispatch {
		return func(next Dispatch) Dispatch { return next }
	}
	stages := []Middleware{passthrough}
	desc := counterType()
	desc.Middleware = stages
	reg := NewRegistry()
	require.NoError(t, reg.Register(desc))

	stages[0] = nil
	got, err := reg.Lookup("Counter")
	require.NoError(t, err)
	require.Len(t, got.Middleware, 1)
	assert.NotNil(t, got.Middleware[0])
}

// ===========================================================================
// Key Tests
// ===========================================================================

func TestGenerator_KeysAreUniqueAndLabelled(t *testing.T) {
	g := NewGenerator()
	a := g.Next("Counter")
	b := g.Next("Counter")

	assert.NotEqual(t, a, b)
	assert.Equal(t, uint64(1), a.Seq())
	assert.Equal(t, uint64(2), b.Seq())
	assert.True(t, strings.HasPrefix(a.String(), "Counter/"))
	assert.False(t, a.IsZero())
}

func TestKey_ZeroValue(t *testing.T) {
	var k Key
	assert.True(t, k.IsZero())
	assert.Equal(t, "<none>", k.String())
}

// ===========================================================================
// Action Tests
// ===========================================================================

func TestKeyOf(t *testing.T) {
	key := NewGenerator().Next("Counter")

	got, ok := KeyOf(Tag(key, increment{}))
	require.True(t, ok)
	assert.Equal(t, key, got)

	_, ok = KeyOf(increment{})
	assert.False(t, ok)

	_, ok = KeyOf(Tag(Key{}, increment{}))
	assert.False(t, ok, "zero key is unscoped")
}

func TestIsLifecycle(t *testing.T) {
	key := NewGenerator().Next("Counter")
	assert.True(t, IsLifecycle(Create("Counter", "a")))
	assert.True(t, IsLifecycle(Ref(key, "a")))
	assert.True(t, IsLifecycle(Unref(key, "a")))
	assert.True(t, IsLifecycle(Delete(key)))
	assert.False(t, IsLifecycle(Tag(key, increment{})))
	assert.False(t, IsLifecycle(increment{}))
}

func TestPayload_StripsNestedEnvelopes(t *testing.T) {
	key := NewGenerator().Next("Counter")
	assert.Equal(t, increment{}, Payload(Tag(key, Tag(key, increment{}))))
	assert.Equal(t, ActionType("test/increment"), Tag(key, increment{}).Type())
	assert.Equal(t, ActionType(""), Tag(key, nil).Type())
}

func TestBindDispatch(t *testing.T) {
	gen := NewGenerator()
	bound := gen.Next("Counter")
	other := gen.Next("Counter")

	var got []Action
	sink := func(ctx context.Context, action Action) (Action, error) {
		got = append(got, action)
		return action, nil
	}
	dispatch := BindDispatch(sink, bound)

	_, _ = dispatch(context.Background(), increment{})
	_, _ = dispatch(context.Background(), Tag(other, increment{}))
	_, _ = dispatch(context.Background(), Ref(other, "x"))

	require.Len(t, got, 3)
	assert.Equal(t, Tag(bound, increment{}), got[0])
	assert.Equal(t, Tag(other, increment{}), got[1], "keyed actions keep their key")
	assert.Equal(t, Ref(other, "x"), got[2], "lifecycle actions are not tagged")
}
