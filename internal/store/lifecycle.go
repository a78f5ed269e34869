package store

import (
	"context"
	"fmt"

	"github.com/zjrosen/nsstore/internal/namespace"
)

// Create dispatches a create action and returns the new key.
func (s *Store) Create(ctx context.Context, typeName string, owners ...namespace.RefToken) (namespace.Key, error) {
	return s.create(ctx, namespace.Create(typeName, owners...))
}

// CreateWithState is Create with an initial state overriding the type's default.
func (s *Store) CreateWithState(ctx context.Context, typeName string, initial any, owners ...namespace.RefToken) (namespace.Key, error) {
	return s.create(ctx, namespace.CreateWithState(typeName, initial, owners...))
}

func (s *Store) create(ctx context.Context, action namespace.CreateAction) (namespace.Key, error) {
	reduced, err := s.Dispatch(ctx, action)
	if err != nil {
		return namespace.Key{}, err
	}
	key, ok := namespace.KeyOf(reduced)
	if !ok {
		// A global stage swallowed or replaced the create.
		return namespace.Key{}, fmt.Errorf("%w: create %s returned no key", namespace.ErrInvalidAction, action.TypeName)
	}
	return key, nil
}

// Ref adds token to the owners of key.
func (s *Store) Ref(ctx context.Context, key namespace.Key, token namespace.RefToken) error {
	_, err := s.Dispatch(ctx, namespace.Ref(key, token))
	return err
}

// Unref removes token from the owners of key, deleting the namespace when no
// owners remain.
func (s *Store) Unref(ctx context.Context, key namespace.Key, token namespace.RefToken) error {
	_, err := s.Dispatch(ctx, namespace.Unref(key, token))
	return err
}

// Delete removes key regardless of its owners.
func (s *Store) Delete(ctx context.Context, key namespace.Key) error {
	_, err := s.Dispatch(ctx, namespace.Delete(key))
	return err
}

// Select returns the state slot of key in the latest snapshot.
func (s *Store) Select(key namespace.Key) (any, bool) {
	return s.GetState().StateOf(key)
}

// SelectAs returns the state slot of key as T. It reports false when the
// namespace is absent or holds a different type.
func SelectAs[T any](state *namespace.State, key namespace.Key) (T, bool) {
	var zero T
	v, ok := state.StateOf(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
