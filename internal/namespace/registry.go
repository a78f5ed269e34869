package namespace

import (
	"fmt"
	"slices"
	"sort"
	"sync"
)

// Reducer computes the next state of one namespace. It must be pure and must
// not mutate state in place.
type Reducer func(state any, action Action) any

// TypeDescriptor bundles everything shared by the namespaces of one type.
type TypeDescriptor struct {
	// Name is the unique type name.
	Name string
	// Reducer receives business actions routed to a namespace of this type.
	Reducer Reducer
	// InitialState seeds new namespaces unless the create action overrides it.
	// A nil InitialState falls back to an empty map.
	InitialState any
	// Middleware stages run in declaration order before Reducer.
	Middleware []Middleware
	// OnDelete, when set, receives the last state after the namespace is removed.
	OnDelete func(state any)
}

// Registry holds type descriptors by name. Types are registered once at
// startup and are never removed.
type Registry struct {
	mu    sync.RWMutex
	types map[string]TypeDescriptor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		types: make(map[string]TypeDescriptor),
	}
}

// Register stores desc. It fails with ErrDuplicateType if the name is taken,
// leaving the first registration in place.
func (r *Registry) Register(desc TypeDescriptor) error {
	if desc.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidDescriptor)
	}
	if desc.Reducer == nil {
		return fmt.Errorf("%w: %s has no reducer", ErrInvalidDescriptor, desc.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[desc.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, desc.Name)
	}
	desc.Middleware = slices.Clone(desc.Middleware)
	r.types[desc.Name] = desc
	return nil
}

// RegisterAll registers descs in order and stops at the first failure.
// Descriptors registered before the failure stay registered.
func (r *Registry) RegisterAll(descs ...TypeDescriptor) error {
	for _, desc := range descs {
		if err := r.Register(desc); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (TypeDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.types[name]
	if !ok {
		return TypeDescriptor{}, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return desc, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[name]
	return ok
}

// Names returns the registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}
