package namespace

import (
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/google/uuid"
)

// Key identifies one namespace instance.
//
// Keys can only be minted by a Generator, compare by identity, and are never
// handed out twice. The zero Key names no namespace.
type Key struct {
	seq   uint64
	label string
}

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool {
	return k.seq == 0 && k.label == ""
}

// Seq returns the generator sequence number the key was minted with.
func (k Key) Seq() uint64 {
	return k.seq
}

// String returns a human readable label of the form "<type>/<uuid>".
func (k Key) String() string {
	if k.IsZero() {
		return "<none>"
	}
	return k.label
}

// Generator mints keys. It is safe for concurrent use.
type Generator struct {
	next atomic.Uint64
}

// NewGenerator creates a Generator whose first key has sequence 1.
func NewGenerator() *Generator {
	return &Generator{}
}

// Next mints a fresh key labelled with the given type name.
func (g *Generator) Next(typeName string) Key {
	seq := g.next.Add(1)
	return Key{
		seq:   seq,
		label: fmt.Sprintf("%s/%s", typeName, uuid.NewString()),
	}
}

// RefToken names one logical owner of a namespace. Any non-nil comparable
// value works; a parent namespace's Key is a common choice.
type RefToken = any

func validateToken(token RefToken) error {
	if token == nil {
		return fmt.Errorf("%w: nil", ErrInvalidToken)
	}
	// Value, not type: an interface field may hold a slice.
	if !reflect.ValueOf(token).Comparable() {
		return fmt.Errorf("%w: %T is not comparable", ErrInvalidToken, token)
	}
	return nil
}
