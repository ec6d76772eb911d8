package graph

import "strings"

// Scope is a lexical container of symbols. A namespace scope additionally
// mirrors the attribute/subscript surface of one live object; the two are
// distinguished by a flag rather than subtypes so scope handling stays a
// single closed variant.
type Scope struct {
	id     ScopeID
	name   string
	parent ScopeID

	// table holds the single current binding per (key, subscript) pair.
	table map[tableKey]SymbolID

	namespace  bool
	object     ObjectID // identity of the mirrored object, namespaces only
	clonedFrom ScopeID  // class namespace this one was cloned from, or NoScope
	maxDefined Tick     // latest definedAt of any member, namespaces only
}

type tableKey struct {
	key       Key
	subscript bool
}

// ID returns the scope's handle.
func (s *Scope) ID() ScopeID { return s.id }

// Name returns the scope's name.
func (s *Scope) Name() string { return s.name }

// Parent returns the parent scope handle, NoScope for the global scope.
func (s *Scope) Parent() ScopeID { return s.parent }

// IsGlobal reports whether this is the root scope.
func (s *Scope) IsGlobal() bool { return s.parent == NoScope }

// IsNamespace reports whether the scope mirrors a live object.
func (s *Scope) IsNamespace() bool { return s.namespace }

// Object returns the identity of the mirrored object for namespaces.
func (s *Scope) Object() ObjectID { return s.object }

// ClonedFrom returns the class namespace this one was cloned from.
func (s *Scope) ClonedFrom() ScopeID { return s.clonedFrom }

// MaxDefinedTick returns the latest definedAt among the namespace's
// members.
func (s *Scope) MaxDefinedTick() Tick { return s.maxDefined }

// NewScope creates a lexical scope under parent.
func (g *Graph) NewScope(name string, parent ScopeID) ScopeID {
	s := &Scope{
		id:         ScopeID(len(g.scopes)),
		name:       name,
		parent:     parent,
		table:      make(map[tableKey]SymbolID),
		clonedFrom: NoScope,
	}
	g.scopes = append(g.scopes, s)
	return s.id
}

// NewNamespace creates a namespace scope mirroring the given object and
// registers it in the object index.
func (g *Graph) NewNamespace(name string, parent ScopeID, object ObjectID) ScopeID {
	id := g.NewScope(name, parent)
	s := g.Scope(id)
	s.namespace = true
	s.object = object
	s.maxDefined = g.clock
	if object != NoObject {
		g.namespaces[object] = id
	}
	return id
}

// CloneNamespace creates an instance namespace from a class namespace.
// The instance's table starts empty; unshadowed members fall back to the
// class through the clonedFrom link, and the retroactive class→instance
// dependency is drawn when an instance member first materializes.
func (g *Graph) CloneNamespace(class ScopeID, object ObjectID, name string) ScopeID {
	base := g.Scope(class)
	if name == "" && base != nil {
		name = base.name
	}
	parent := NoScope
	if base != nil {
		parent = base.parent
	}
	id := g.NewNamespace(name, parent, object)
	g.Scope(id).clonedFrom = class
	return id
}

// nonNamespaceAncestor returns the nearest enclosing scope that is not a
// namespace. A scope nested inside a namespace does not implicitly see
// the namespace's unqualified members.
func (g *Graph) nonNamespaceAncestor(id ScopeID) ScopeID {
	s := g.Scope(id)
	if s == nil || s.IsGlobal() {
		return NoScope
	}
	parent := g.Scope(s.parent)
	if parent != nil && parent.namespace {
		return g.nonNamespaceAncestor(parent.id)
	}
	return s.parent
}

// LookupLocal finds the binding for (key, subscript) in this scope only.
// Namespaces fall back to their clonedFrom class for unshadowed members.
// Garbage symbols are never returned.
func (g *Graph) LookupLocal(sc ScopeID, key Key, subscript bool) SymbolID {
	id := g.lookupLocalSkipCloned(sc, key, subscript)
	if id != NoSymbol {
		return id
	}
	s := g.Scope(sc)
	if s != nil && s.clonedFrom != NoScope && !subscript {
		return g.lookupLocalSkipCloned(s.clonedFrom, key, subscript)
	}
	return NoSymbol
}

func (g *Graph) lookupLocalSkipCloned(sc ScopeID, key Key, subscript bool) SymbolID {
	s := g.Scope(sc)
	if s == nil {
		return NoSymbol
	}
	id, ok := s.table[tableKey{key: key, subscript: subscript}]
	if !ok {
		return NoSymbol
	}
	if sym := g.Symbol(id); sym == nil || sym.garbage {
		return NoSymbol
	}
	return id
}

// Lookup resolves a key starting at sc and walking non-namespace
// ancestors. Returns NoSymbol when the name is undefined anywhere on that
// path; callers treat that as an external or unknown binding.
func (g *Graph) Lookup(sc ScopeID, key Key, subscript bool) SymbolID {
	if id := g.LookupLocal(sc, key, subscript); id != NoSymbol {
		return id
	}
	if up := g.nonNamespaceAncestor(sc); up != NoScope {
		return g.Lookup(up, key, subscript)
	}
	return NoSymbol
}

// SymbolsIn returns the live symbols bound in a scope, sorted by handle.
func (g *Graph) SymbolsIn(sc ScopeID) []SymbolID {
	s := g.Scope(sc)
	if s == nil {
		return nil
	}
	set := make(map[SymbolID]struct{}, len(s.table))
	for _, id := range s.table {
		if sym := g.Symbol(id); sym != nil && !sym.garbage {
			set[id] = struct{}{}
		}
	}
	return sortedIDs(set)
}

// put installs a symbol as the current binding, displacing any previous
// entry for the same (key, subscript) pair.
func (g *Graph) put(sc ScopeID, key Key, subscript bool, id SymbolID) {
	s := g.Scope(sc)
	s.table[tableKey{key: key, subscript: subscript}] = id
	g.Symbol(id).scope = sc
}

// FullPath returns the dotted lexical path of a scope, omitting the
// global scope's name.
func (g *Graph) FullPath(sc ScopeID) string {
	s := g.Scope(sc)
	if s == nil || s.IsGlobal() {
		return ""
	}
	prefix := g.FullPath(s.parent)
	if prefix == "" {
		return s.name
	}
	return prefix + "." + s.name
}

// QualifiedName renders a symbol as the access chain that reaches it,
// e.g. "x", "foo.bar", or "lst[0]".
func (g *Graph) QualifiedName(id SymbolID) string {
	sym := g.Symbol(id)
	if sym == nil {
		return ""
	}
	var b strings.Builder
	prefix := g.FullPath(sym.scope)
	if prefix != "" {
		b.WriteString(prefix)
	}
	if sym.key.IsIndex {
		b.WriteString("[" + sym.key.String() + "]")
		return b.String()
	}
	owner := g.Scope(sym.scope)
	if owner != nil && owner.namespace {
		if subscriptBinding(owner, sym) {
			b.WriteString("['" + sym.key.Name + "']")
			return b.String()
		}
	}
	if prefix != "" {
		b.WriteString(".")
	}
	b.WriteString(sym.key.Name)
	return b.String()
}

func subscriptBinding(owner *Scope, sym *Symbol) bool {
	id, ok := owner.table[tableKey{key: sym.key, subscript: true}]
	return ok && id == sym.id
}

// UpsertOpts tunes the write path. The zero value means a plain
// overwriting, propagating, explicit assignment of a default-kind symbol.
type UpsertOpts struct {
	// Kind forces the symbol kind; KindDefault derives from Subscript.
	Kind Kind
	// Subscript marks an index binding rather than an attribute/name.
	Subscript bool
	// Augment unions the new dependencies into the existing set instead
	// of replacing it (augmented assignment).
	Augment bool
	// NoPropagate limits invalidation to direct children.
	NoPropagate bool
	// Implicit marks a binding materialized by observation rather than an
	// explicit write; implicit writes do not refresh namespace children.
	Implicit bool
	// CascadingReactive makes invalidated reactive triggers downstream
	// eligible for re-execution.
	CascadingReactive bool
}

// Upsert establishes (or re-establishes) the binding for key in sc with
// the given value identity and dependency set. It never fails and always
// returns a live symbol.
func (g *Graph) Upsert(sc ScopeID, key Key, object ObjectID, value any, deps []SymbolID, o UpsertOpts) SymbolID {
	kind := o.Kind
	if kind == KindDefault && o.Subscript {
		kind = KindSubscript
	}

	depSet := make(map[SymbolID]struct{}, len(deps))
	for _, d := range deps {
		if d != NoSymbol {
			depSet[d] = struct{}{}
		}
	}

	sym, prevObj, hadPrev := g.upsertInner(sc, key, object, value, kind, o, depSet)

	// A symbol marked cascading-reactive cascades on every rebind, not
	// just the ones whose caller thought to ask.
	g.updateDeps(sym, depSet, prevObj, hadPrev, depOpts{
		augment:   o.Augment,
		propagate: !o.NoPropagate,
		refresh:   !o.Implicit,
		cascading: o.CascadingReactive || g.Symbol(sym).cascadingReactive,
	})
	return sym
}

// upsertInner finds or creates the symbol for the binding. A same-kind
// rebind reuses the existing symbol; a kind change displaces the old
// symbol, which becomes a dependency of its replacement so that anything
// watching the name still sees "this name changed".
func (g *Graph) upsertInner(sc ScopeID, key Key, object ObjectID, value any, kind Kind, o UpsertOpts, depSet map[SymbolID]struct{}) (id SymbolID, prevObj ObjectID, hadPrev bool) {
	prev := g.lookupLocalSkipCloned(sc, key, o.Subscript)
	if prev != NoSymbol {
		p := g.Symbol(prev)
		prevObj, hadPrev = p.object, true
		if p.kind == kind {
			if p.object != object {
				g.removeAlias(p.object, prev)
				p.object = object
				g.RegisterAlias(object, prev)
			}
			p.value = value
			return prev, prevObj, hadPrev
		}
		depSet[prev] = struct{}{}
	}

	scope := g.Scope(sc)
	if scope.namespace && kind == KindDefault && scope.clonedFrom != NoScope {
		// First materialization of an instance member: link the class
		// member it shadows so editing the class member invalidates it.
		if base := g.lookupLocalSkipCloned(scope.clonedFrom, key, false); base != NoSymbol {
			depSet[base] = struct{}{}
		}
	}

	sym := g.newSymbol(key, kind, sc, object, value, o.Implicit)
	g.put(sc, key, o.Subscript, sym.id)
	g.RegisterAlias(object, sym.id)
	return sym.id, prevObj, hadPrev
}

// MaterializeMember lazily creates a namespace member symbol on first
// observed access. The binding's timestamps are pinned to the namespace's
// max defined tick so merely loading a member never reads as stale.
func (g *Graph) MaterializeMember(ns ScopeID, key Key, subscript bool, object ObjectID, value any) SymbolID {
	scope := g.Scope(ns)
	if scope == nil {
		return NoSymbol
	}
	kind := KindDefault
	if subscript {
		kind = KindSubscript
	}
	sym := g.newSymbol(key, kind, ns, object, value, true)
	sym.definedAt = scope.maxDefined
	sym.requiredAt = scope.maxDefined
	g.put(ns, key, subscript, sym.id)
	g.RegisterAlias(object, sym.id)
	return sym.id
}

// Delete removes the binding for key, marks the symbol garbage, and
// invalidates its dependents. Deletion only marks dependents stale; it
// never cascades into reactive re-execution.
func (g *Graph) Delete(sc ScopeID, key Key, subscript bool) {
	id := g.lookupLocalSkipCloned(sc, key, subscript)
	if id == NoSymbol {
		return
	}
	s := g.Scope(sc)
	delete(s.table, tableKey{key: key, subscript: subscript})

	sym := g.Symbol(id)
	g.updateDeps(sym.id, nil, NoObject, false, depOpts{
		propagate: true,
		deleted:   true,
	})
	sym.garbage = true
	g.removeAlias(sym.object, id)
}
