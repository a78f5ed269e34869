package counter

import (
	"context"
	"errors"
	"fmt"

	"github.com/zjrosen/nsstore/internal/log"
	"github.com/zjrosen/nsstore/internal/namespace"
)

// Store is the part of *store.Store the list controller needs.
type Store interface {
	Dispatch(ctx context.Context, action namespace.Action) (namespace.Action, error)
	GetState() *namespace.State
}

// List drives one CounterList namespace. The list owns each child it
// creates: the child's owner token is the list's key.
type List struct {
	store     Store
	key       namespace.Key
	childType string
}

// NewList creates a CounterList owned by owner and returns its controller.
// Children are created with childType.
func NewList(ctx context.Context, s Store, owner namespace.RefToken, childType string) (*List, error) {
	reduced, err := s.Dispatch(ctx, namespace.Create(ListTypeName, owner))
	if err != nil {
		return nil, fmt.Errorf("create list: %w", err)
	}
	key, ok := namespace.KeyOf(reduced)
	if !ok {
		return nil, fmt.Errorf("create list: %w", namespace.ErrInvalidAction)
	}
	return &List{store: s, key: key, childType: childType}, nil
}

// Key returns the list's namespace key.
func (l *List) Key() namespace.Key {
	return l.key
}

// Children returns the child keys in insertion order.
func (l *List) Children() []namespace.Key {
	v, _ := l.store.GetState().StateOf(l.key)
	ids, _ := v.([]namespace.Key)
	return ids
}

// Add creates a child namespace owned by the list and appends it.
func (l *List) Add(ctx context.Context) (namespace.Key, error) {
	reduced, err := l.store.Dispatch(ctx, namespace.Create(l.childType, l.key))
	if err != nil {
		return namespace.Key{}, fmt.Errorf("create child: %w", err)
	}
	child, ok := namespace.KeyOf(reduced)
	if !ok {
		return namespace.Key{}, fmt.Errorf("create child: %w", namespace.ErrInvalidAction)
	}
	if _, err := l.store.Dispatch(ctx, namespace.Tag(l.key, AddCounter{ID: child})); err != nil {
		// Do not leak a child the list never recorded.
		_, _ = l.store.Dispatch(ctx, namespace.Unref(child, l.key))
		return namespace.Key{}, err
	}
	return child, nil
}

// Remove drops child from the list and releases the list's reference.
func (l *List) Remove(ctx context.Context, child namespace.Key) error {
	if _, err := l.store.Dispatch(ctx, namespace.Tag(l.key, DeleteCounter{ID: child})); err != nil {
		return err
	}
	_, err := l.store.Dispatch(ctx, namespace.Unref(child, l.key))
	return err
}

// RemoveAll empties the list and releases every child.
func (l *List) RemoveAll(ctx context.Context) error {
	children := l.Children()
	if _, err := l.store.Dispatch(ctx, namespace.Tag(l.key, DeleteAll{})); err != nil {
		return err
	}
	return l.release(ctx, children)
}

// Close releases the list's references to its children without changing
// the list state, then drops owner's reference to the list.
func (l *List) Close(ctx context.Context, owner namespace.RefToken) error {
	if err := l.release(ctx, l.Children()); err != nil {
		return err
	}
	_, err := l.store.Dispatch(ctx, namespace.Unref(l.key, owner))
	return err
}

func (l *List) release(ctx context.Context, children []namespace.Key) error {
	var errs []error
	for _, child := range children {
		if _, err := l.store.Dispatch(ctx, namespace.Unref(child, l.key)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DeleteChildren returns a ListConfig.Release hook that deletes every child
// through dispatch. Children already gone are skipped.
func DeleteChildren(dispatch namespace.Dispatch) func([]namespace.Key) {
	return func(children []namespace.Key) {
		ctx := context.Background()
		for _, child := range children {
			_, err := dispatch(ctx, namespace.Delete(child))
			if err != nil && !errors.Is(err, namespace.ErrNamespaceNotFound) {
				log.ErrorErr(log.CatStore, "release child failed", err, "namespace", child)
			}
		}
	}
}
