// Package graph is the dependency/staleness core: an arena of symbols and
// scopes addressed by stable handles, a logical execution clock, and the
// propagation machinery that decides how far a change reaches.
//
// The graph is deliberately not goroutine-safe. Exactly one statement is
// in flight at a time; see the trace package for the event protocol.
package graph

import (
	"fmt"
	"sort"
)

// GlobalScopeName is the name of the root lexical scope.
const GlobalScopeName = "<module>"

// Graph owns every Symbol and Scope of one session. All cross-references
// between nodes are handles into the arena, so the partially-cyclic
// dependency structure never implies ownership cycles. Multiple
// independent graphs may coexist; nothing here is process-global.
type Graph struct {
	symbols []*Symbol
	scopes  []*Scope
	global  ScopeID

	// clock is the logical execution counter shared by every timestamp.
	clock Tick

	// commits counts committed statements, used to detect stale writes
	// replayed from aborted statements.
	commits uint64

	// namespaces indexes namespace scopes by the identity of the object
	// they mirror. Entries leave only by explicit invalidation.
	namespaces map[ObjectID]ScopeID

	// aliases tracks which symbols currently hold each object, so an
	// observed in-place mutation can be attributed to every alias.
	aliases map[ObjectID]map[SymbolID]struct{}

	// reexec queues reactive triggers invalidated by a cascading update.
	// Consumers drain it; propagation never recurses into re-execution.
	reexec []SymbolID

	propagating bool
	debug       bool
	logf        func(format string, args ...any)
}

// Option configures a Graph.
type Option func(*Graph)

// WithDebugChecks makes invariant violations fatal instead of self-healing.
func WithDebugChecks() Option {
	return func(g *Graph) { g.debug = true }
}

// WithLogf sets the low-severity log hook. Default is silent.
func WithLogf(f func(format string, args ...any)) Option {
	return func(g *Graph) { g.logf = f }
}

// New creates an empty graph with a single global scope.
func New(opts ...Option) *Graph {
	g := &Graph{
		namespaces: make(map[ObjectID]ScopeID),
		aliases:    make(map[ObjectID]map[SymbolID]struct{}),
		logf:       func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(g)
	}
	g.global = g.NewScope(GlobalScopeName, NoScope)
	return g
}

// Global returns the handle of the global scope.
func (g *Graph) Global() ScopeID { return g.global }

// Symbol returns the symbol for a handle, or nil for NoSymbol or an
// out-of-range handle.
func (g *Graph) Symbol(id SymbolID) *Symbol {
	if id < 0 || int(id) >= len(g.symbols) {
		return nil
	}
	return g.symbols[id]
}

// Scope returns the scope for a handle, or nil.
func (g *Graph) Scope(id ScopeID) *Scope {
	if id < 0 || int(id) >= len(g.scopes) {
		return nil
	}
	return g.scopes[id]
}

// Clock returns the current logical tick.
func (g *Graph) Clock() Tick { return g.clock }

// advance increments the logical clock and returns the new tick.
func (g *Graph) advance() Tick {
	g.clock++
	return g.clock
}

// CommitSeq returns the number of committed statements.
func (g *Graph) CommitSeq() uint64 { return g.commits }

// BumpCommit records that a statement's buffered effects were committed.
func (g *Graph) BumpCommit() { g.commits++ }

// NamespaceFor returns the namespace scope mirroring the given object.
func (g *Graph) NamespaceFor(object ObjectID) (ScopeID, bool) {
	id, ok := g.namespaces[object]
	return id, ok
}

// InvalidateNamespace drops the namespace registered for an object, used
// when instrumentation observes the object deleted or unreachable. The
// scope itself stays in the arena; it is simply no longer discoverable.
func (g *Graph) InvalidateNamespace(object ObjectID) {
	delete(g.namespaces, object)
}

// RegisterAlias records that a symbol currently holds the given object.
func (g *Graph) RegisterAlias(object ObjectID, id SymbolID) {
	if object == NoObject || id == NoSymbol {
		return
	}
	set, ok := g.aliases[object]
	if !ok {
		set = make(map[SymbolID]struct{})
		g.aliases[object] = set
	}
	set[id] = struct{}{}
}

func (g *Graph) removeAlias(object ObjectID, id SymbolID) {
	if set, ok := g.aliases[object]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(g.aliases, object)
		}
	}
}

// Aliases returns every live symbol currently holding the object, sorted.
func (g *Graph) Aliases(object ObjectID) []SymbolID {
	set, ok := g.aliases[object]
	if !ok {
		return nil
	}
	ids := sortedIDs(set)
	live := ids[:0]
	for _, id := range ids {
		if s := g.Symbol(id); s != nil && !s.garbage {
			live = append(live, id)
		}
	}
	return live
}

// EnqueueReexec schedules a reactive trigger for re-execution.
func (g *Graph) EnqueueReexec(id SymbolID) {
	for _, queued := range g.reexec {
		if queued == id {
			return
		}
	}
	g.reexec = append(g.reexec, id)
}

// DrainReexec returns and clears the queued re-execution candidates in
// the order they were invalidated.
func (g *Graph) DrainReexec() []SymbolID {
	out := g.reexec
	g.reexec = nil
	return out
}

// StaleSymbols returns every live stale symbol, sorted by handle.
func (g *Graph) StaleSymbols() []SymbolID {
	var out []SymbolID
	for _, s := range g.symbols {
		if s.stale && !s.garbage {
			out = append(out, s.id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CheckInvariants verifies that parents/children mirroring holds. In
// debug mode a violation is returned as a fatal error; otherwise the
// missing mirror edge is rebuilt and logged.
func (g *Graph) CheckInvariants() error {
	for _, s := range g.symbols {
		for p := range s.parents {
			parent := g.Symbol(p)
			if parent == nil {
				return fmt.Errorf("graph: symbol %d has dangling parent handle %d", s.id, p)
			}
			if _, ok := parent.children[s.id]; !ok {
				if g.debug {
					return fmt.Errorf("graph: mirror broken: %d in parents of %d but not mirrored", p, s.id)
				}
				g.logf("graph: repairing mirror edge %d -> %d", p, s.id)
				parent.children[s.id] = struct{}{}
			}
		}
		for c := range s.children {
			child := g.Symbol(c)
			if child == nil {
				return fmt.Errorf("graph: symbol %d has dangling child handle %d", s.id, c)
			}
			if _, ok := child.parents[s.id]; !ok {
				if g.debug {
					return fmt.Errorf("graph: mirror broken: %d in children of %d but not mirrored", c, s.id)
				}
				g.logf("graph: repairing mirror edge %d <- %d", s.id, c)
				child.parents[s.id] = struct{}{}
			}
		}
	}
	return nil
}
