package namespace

import (
	"maps"
	"slices"
	"sort"
)

// State is one immutable snapshot of the whole tree: the root partition owned
// by the wrapped root reducer plus the namespaced partition owned by the
// engine. A State is never modified after it is returned by the engine;
// every transition builds a new one that shares all untouched branches.
type State struct {
	root any
	part *Partition
}

// Partition holds the namespaced branch of the tree as three parallel tables
// keyed by namespace Key. The tables always share one key set.
type Partition struct {
	typeOf   map[Key]string
	ownersOf map[Key][]RefToken
	stateOf  map[Key]any
}

var emptyPartition = &Partition{}

// NewState returns a snapshot with the given root and no namespaces.
func NewState(root any) *State {
	return &State{root: root, part: emptyPartition}
}

// Root returns the non-namespaced partition.
func (s *State) Root() any {
	return s.root
}

// Partition returns the namespaced partition.
func (s *State) Partition() *Partition {
	return s.part
}

// Has reports whether key names a live namespace.
func (s *State) Has(key Key) bool {
	_, ok := s.part.typeOf[key]
	return ok
}

// TypeOf returns the type name of key.
func (s *State) TypeOf(key Key) (string, bool) {
	name, ok := s.part.typeOf[key]
	return name, ok
}

// Owners returns a copy of the owner tokens of key, in the order they were added.
func (s *State) Owners(key Key) []RefToken {
	return slices.Clone(s.part.ownersOf[key])
}

// StateOf returns the state slot of key.
func (s *State) StateOf(key Key) (any, bool) {
	v, ok := s.part.stateOf[key]
	return v, ok
}

// Keys returns the live namespace keys in creation order.
func (s *State) Keys() []Key {
	return s.part.Keys()
}

// Len returns the number of live namespaces.
func (s *State) Len() int {
	return s.part.Len()
}

// KeysOfType returns the live keys of the named type in creation order.
func (s *State) KeysOfType(typeName string) []Key {
	var keys []Key
	for _, k := range s.part.Keys() {
		if s.part.typeOf[k] == typeName {
			keys = append(keys, k)
		}
	}
	return keys
}

// Keys returns the partition's keys ordered by mint sequence.
func (p *Partition) Keys() []Key {
	keys := make([]Key, 0, len(p.typeOf))
	for k := range p.typeOf {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].seq < keys[j].seq })
	return keys
}

// Len returns the number of namespaces in the partition.
func (p *Partition) Len() int {
	return len(p.typeOf)
}

// ===========================================================================
// Copy-on-write
// ===========================================================================

func (s *State) withRoot(root any) *State {
	return &State{root: root, part: s.part}
}

func (s *State) withPartition(p *Partition) *State {
	return &State{root: s.root, part: p}
}

// insert returns a partition with key added to all three tables.
func (p *Partition) insert(key Key, typeName string, owners []RefToken, state any) *Partition {
	next := &Partition{
		typeOf:   cloneMap(p.typeOf),
		ownersOf: cloneMap(p.ownersOf),
		stateOf:  cloneMap(p.stateOf),
	}
	next.typeOf[key] = typeName
	next.ownersOf[key] = owners
	next.stateOf[key] = state
	return next
}

// remove returns a partition with key dropped from all three tables.
func (p *Partition) remove(key Key) *Partition {
	next := &Partition{
		typeOf:   cloneMap(p.typeOf),
		ownersOf: cloneMap(p.ownersOf),
		stateOf:  cloneMap(p.stateOf),
	}
	delete(next.typeOf, key)
	delete(next.ownersOf, key)
	delete(next.stateOf, key)
	return next
}

// withOwners replaces the owner list of key. The type and state tables are shared.
func (p *Partition) withOwners(key Key, owners []RefToken) *Partition {
	next := &Partition{
		typeOf:   p.typeOf,
		ownersOf: cloneMap(p.ownersOf),
		stateOf:  p.stateOf,
	}
	next.ownersOf[key] = owners
	return next
}

// withSlot replaces the state slot of key. The type and owner tables are shared.
func (p *Partition) withSlot(key Key, state any) *Partition {
	next := &Partition{
		typeOf:   p.typeOf,
		ownersOf: p.ownersOf,
		stateOf:  cloneMap(p.stateOf),
	}
	next.stateOf[key] = state
	return next
}

func cloneMap[V any](m map[Key]V) map[Key]V {
	if m == nil {
		return make(map[Key]V, 1)
	}
	return maps.Clone(m)
}
