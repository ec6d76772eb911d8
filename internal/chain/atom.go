// Package chain models syntactic access chains: the ordered sequence of
// attribute, subscript, and call links in an expression like a.b[0].c().
// A chain is parsed once per expression text and resolved many times
// against the live scope graph.
package chain

import (
	"fmt"
	"strconv"
	"strings"
)

// Key identifies one binding within a scope. Attribute and variable
// bindings key by name; subscript bindings may key by either a string or
// an integer index.
type Key struct {
	Name    string
	Index   int64
	IsIndex bool
}

// NameKey returns a string-named Key.
func NameKey(name string) Key {
	return Key{Name: name}
}

// IndexKey returns an integer-indexed Key.
func IndexKey(i int64) Key {
	return Key{Index: i, IsIndex: true}
}

func (k Key) String() string {
	if k.IsIndex {
		return strconv.FormatInt(k.Index, 10)
	}
	return k.Name
}

// Atom is one link in an access chain.
type Atom struct {
	Key       Key
	Callpoint bool // the link is a call on the named member
	Subscript bool // the link is an index access rather than an attribute
	Reactive  bool // the link carries a reactivity marker
	Blocking  bool // the link suppresses reactivity for the rest of the chain
}

// AsReactive returns a copy of the atom with the reactive flag set.
func (a Atom) AsReactive() Atom {
	a.Reactive = true
	a.Blocking = false
	return a
}

// AsBlocking returns a copy of the atom with the blocking flag set.
func (a Atom) AsBlocking() Atom {
	a.Reactive = false
	a.Blocking = true
	return a
}

// AsNonreactive returns a copy of the atom with reactivity cleared.
func (a Atom) AsNonreactive() Atom {
	a.Reactive = false
	return a
}

func (a Atom) String() string {
	s := a.Key.String()
	if a.Subscript {
		s = "[" + s + "]"
	}
	if a.Callpoint {
		s += "(...)"
	}
	return s
}

// Ref is an ordered access chain, root atom first. Refs built from the
// same expression text are identical, so callers may cache them by text.
type Ref struct {
	Atoms []Atom
}

// NewRef builds a Ref from atoms in root-first order.
func NewRef(atoms ...Atom) *Ref {
	return &Ref{Atoms: atoms}
}

// Nonreactive returns a copy of the chain with all reactivity markers
// cleared.
func (r *Ref) Nonreactive() *Ref {
	atoms := make([]Atom, len(r.Atoms))
	for i, a := range r.Atoms {
		atoms[i] = a.AsNonreactive()
	}
	return &Ref{Atoms: atoms}
}

func (r *Ref) String() string {
	var b strings.Builder
	for i, a := range r.Atoms {
		if i > 0 && !a.Subscript {
			b.WriteByte('.')
		}
		fmt.Fprintf(&b, "%s", a)
	}
	return b.String()
}
