package graph

import (
	"sort"

	"github.com/jward/flowgraph/internal/chain"
)

// SymbolID is a stable handle into the graph's symbol arena.
type SymbolID int32

// ScopeID is a stable handle into the graph's scope arena.
type ScopeID int32

const (
	// NoSymbol is the null symbol handle.
	NoSymbol SymbolID = -1
	// NoScope is the null scope handle.
	NoScope ScopeID = -1
)

// Tick is a value of the graph's logical execution clock.
type Tick uint64

// ObjectID is the identity of a live program value, supplied by the
// instrumentation layer. The engine never owns values; it only keys
// namespaces and aliases by identity.
type ObjectID uint64

// NoObject marks the absence of a value identity.
const NoObject ObjectID = 0

// Key aliases the chain package's binding key.
type Key = chain.Key

// Kind classifies what a symbol's binding came from.
type Kind uint8

const (
	KindDefault Kind = iota
	KindSubscript
	KindFunction
	KindClass
	KindModule
	KindImport
	KindAnonymous
)

var kindNames = [...]string{
	KindDefault:   "default",
	KindSubscript: "subscript",
	KindFunction:  "function",
	KindClass:     "class",
	KindModule:    "module",
	KindImport:    "import",
	KindAnonymous: "anonymous",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Symbol is one graph node: the current binding of one key in one scope.
// Edges are handle sets owned by the arena; parents are the symbols this
// one's value was computed from, children the mirrored back-links.
type Symbol struct {
	id     SymbolID
	key    Key
	kind   Kind
	scope  ScopeID
	object ObjectID
	value  any

	definedAt  Tick
	requiredAt Tick
	staleAt    Tick

	parents  map[SymbolID]struct{}
	children map[SymbolID]struct{}

	stale    bool
	garbage  bool
	implicit bool

	reactiveTrigger   bool
	cascadingReactive bool
}

// ID returns the symbol's handle.
func (s *Symbol) ID() SymbolID { return s.id }

// Key returns the binding key.
func (s *Symbol) Key() Key { return s.key }

// Kind returns the symbol kind.
func (s *Symbol) Kind() Kind { return s.kind }

// ScopeID returns the owning scope's handle.
func (s *Symbol) ScopeID() ScopeID { return s.scope }

// Object returns the identity of the symbol's current value.
func (s *Symbol) Object() ObjectID { return s.object }

// Value returns the non-owning reference to the live value.
func (s *Symbol) Value() any { return s.value }

// DefinedAt returns the tick at which the binding was last established.
func (s *Symbol) DefinedAt() Tick { return s.definedAt }

// RequiredAt returns the tick at which the binding was last read.
func (s *Symbol) RequiredAt() Tick { return s.requiredAt }

// Stale reports whether a dependency changed since the symbol was last
// (re)computed.
func (s *Symbol) Stale() bool { return s.stale }

// Garbage reports whether the binding was deleted. Garbage symbols are
// excluded from resolution but stay in the arena while live symbols still
// reference them as parents.
func (s *Symbol) Garbage() bool { return s.garbage }

// Implicit reports whether the symbol was materialized lazily on first
// observed access rather than by an explicit write.
func (s *Symbol) Implicit() bool { return s.implicit }

// ReactiveTrigger reports whether updates to this symbol should eagerly
// re-run dependents instead of merely marking them stale.
func (s *Symbol) ReactiveTrigger() bool { return s.reactiveTrigger }

// SetReactiveTrigger flags the symbol as a reactive trigger.
func (s *Symbol) SetReactiveTrigger(v bool) { s.reactiveTrigger = v }

// CascadingReactive reports whether updates to this symbol propagate
// reactivity through the whole downstream graph.
func (s *Symbol) CascadingReactive() bool { return s.cascadingReactive }

// SetCascadingReactive flags the symbol as cascading-reactive.
func (s *Symbol) SetCascadingReactive(v bool) { s.cascadingReactive = v }

// newSymbol appends a symbol to the arena without touching edges or the
// clock; callers establish timestamps and dependencies.
func (g *Graph) newSymbol(key Key, kind Kind, scope ScopeID, object ObjectID, value any, implicit bool) *Symbol {
	s := &Symbol{
		id:       SymbolID(len(g.symbols)),
		key:      key,
		kind:     kind,
		scope:    scope,
		object:   object,
		value:    value,
		implicit: implicit,
		parents:  make(map[SymbolID]struct{}),
		children: make(map[SymbolID]struct{}),
	}
	g.symbols = append(g.symbols, s)
	return s
}

// Parents returns the symbol's producer edges in sorted order.
func (g *Graph) Parents(id SymbolID) []SymbolID {
	s := g.Symbol(id)
	if s == nil {
		return nil
	}
	return sortedIDs(s.parents)
}

// Children returns the symbols depending on this one, in sorted order.
func (g *Graph) Children(id SymbolID) []SymbolID {
	s := g.Symbol(id)
	if s == nil {
		return nil
	}
	return sortedIDs(s.children)
}

// MarkRequired records a read of the symbol at the current tick.
func (g *Graph) MarkRequired(id SymbolID) {
	if s := g.Symbol(id); s != nil {
		s.requiredAt = g.clock
	}
}

func sortedIDs(set map[SymbolID]struct{}) []SymbolID {
	ids := make([]SymbolID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
