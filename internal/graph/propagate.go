package graph

// depOpts tunes one updateDeps pass.
type depOpts struct {
	augment   bool // union new parents into the existing set
	propagate bool // push staleness breadth-first beyond direct children
	refresh   bool // invalidate the symbol's own namespace children too
	cascading bool // schedule invalidated reactive triggers for re-execution
	deleted   bool // the binding was removed; stale only, never cascade
}

// updateDeps re-establishes a symbol's dependency set and propagates the
// consequences: the symbol itself becomes fresh at a new tick, dependents
// become stale, and reactive triggers downstream are queued when the
// update cascades.
//
// Propagation is never reentrant. A cascading trigger is queued on the
// graph for the consumer to drain, so a propagation pass can only ever be
// started between statements.
func (g *Graph) updateDeps(id SymbolID, newParents map[SymbolID]struct{}, prevObj ObjectID, hadPrev bool, o depOpts) {
	if g.propagating {
		// Programming fault in the core: a propagation pass tried to
		// start another one.
		if g.debug {
			panic("graph: reentrant propagation")
		}
		g.logf("graph: dropping reentrant propagation for symbol %d", id)
		return
	}

	sym := g.Symbol(id)
	if sym == nil {
		return
	}
	if newParents == nil {
		newParents = make(map[SymbolID]struct{})
	}
	if o.augment {
		for p := range sym.parents {
			newParents[p] = struct{}{}
		}
	}

	// A rebind with an identical dependency set and unchanged value
	// identity is a no-op for dependents: refresh the symbol, skip the
	// invalidation storm.
	unchanged := hadPrev && !o.deleted &&
		prevObj == sym.object &&
		setsEqual(sym.parents, newParents)

	// Rewire edges, keeping the children mirror exact.
	for p := range sym.parents {
		if _, keep := newParents[p]; !keep {
			if parent := g.Symbol(p); parent != nil {
				delete(parent.children, id)
			}
		}
	}
	for p := range newParents {
		if parent := g.Symbol(p); parent != nil {
			parent.children[id] = struct{}{}
		}
	}
	sym.parents = newParents

	// The symbol itself is fresh as of now.
	sym.stale = false
	sym.definedAt = g.advance()
	if owner := g.Scope(sym.scope); owner != nil && owner.namespace {
		owner.maxDefined = sym.definedAt
	}

	if unchanged {
		return
	}

	g.propagating = true
	defer func() { g.propagating = false }()

	g.invalidateDependents(id, sym.definedAt, o)
	g.bubbleNamespaceChange(sym, sym.definedAt, o, map[SymbolID]struct{}{id: {}})
	if o.refresh && !o.deleted {
		g.invalidateNamespaceChildren(sym, sym.definedAt, o)
	}
}

// bubbleNamespaceChange propagates a member update up the namespace
// hierarchy: editing C.v means C changed, so C's dependents (e.g. an
// instance of C) go stale. No direct member-to-member edge is drawn, so
// unrelated members of the instance are not touched.
func (g *Graph) bubbleNamespaceChange(sym *Symbol, at Tick, o depOpts, seen map[SymbolID]struct{}) {
	owner := g.Scope(sym.scope)
	if owner == nil || !owner.namespace {
		return
	}
	for _, alias := range g.Aliases(owner.object) {
		if _, done := seen[alias]; done {
			continue
		}
		seen[alias] = struct{}{}
		g.invalidateDependents(alias, at, o)
		g.bubbleNamespaceChange(g.Symbol(alias), at, o, seen)
	}
}

// invalidateDependents pushes staleness breadth-first through children,
// stopping at nodes already stale with an equal-or-later tick so shared
// ancestors are not re-walked.
func (g *Graph) invalidateDependents(origin SymbolID, at Tick, o depOpts) {
	queue := g.Children(origin)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == origin {
			continue
		}
		child := g.Symbol(id)
		if child == nil || child.garbage {
			continue
		}
		if child.stale && child.staleAt >= at {
			continue
		}
		child.stale = true
		child.staleAt = at
		if o.cascading && !o.deleted && child.reactiveTrigger {
			g.EnqueueReexec(id)
		}
		if o.propagate {
			queue = append(queue, g.Children(id)...)
		}
	}
}

// invalidateNamespaceChildren marks the symbol's own attributes and
// subscripts (and theirs, transitively) stale: editing a container may
// stale its elements' derived state.
func (g *Graph) invalidateNamespaceChildren(sym *Symbol, at Tick, o depOpts) {
	ns, ok := g.namespaces[sym.object]
	if !ok {
		return
	}
	seen := map[ScopeID]struct{}{}
	g.invalidateNamespaceTree(ns, sym.id, at, o, seen)
}

func (g *Graph) invalidateNamespaceTree(ns ScopeID, origin SymbolID, at Tick, o depOpts, seen map[ScopeID]struct{}) {
	if _, done := seen[ns]; done {
		return
	}
	seen[ns] = struct{}{}
	for _, id := range g.SymbolsIn(ns) {
		if id == origin {
			continue
		}
		member := g.Symbol(id)
		if member.stale && member.staleAt >= at {
			continue
		}
		member.stale = true
		member.staleAt = at
		if o.cascading && member.reactiveTrigger {
			g.EnqueueReexec(id)
		}
		if o.propagate {
			g.invalidateDependents(id, at, o)
		}
		if child, ok := g.namespaces[member.object]; ok {
			g.invalidateNamespaceTree(child, origin, at, o, seen)
		}
	}
}

// Mutate records an observed in-place mutation of a symbol's value: the
// symbol is its own sole new dependency, plus whatever the mutating
// statement read. Dependents and namespace children become stale.
func (g *Graph) Mutate(id SymbolID, observedDeps []SymbolID) {
	sym := g.Symbol(id)
	if sym == nil || sym.garbage {
		return
	}
	deps := make(map[SymbolID]struct{}, len(observedDeps)+1)
	deps[id] = struct{}{}
	for _, d := range observedDeps {
		if d != NoSymbol && d != id {
			deps[d] = struct{}{}
		}
	}
	g.updateDeps(id, deps, NoObject, false, depOpts{
		augment:   true,
		propagate: true,
		refresh:   true,
		cascading: sym.cascadingReactive,
	})
}

func setsEqual(a, b map[SymbolID]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
