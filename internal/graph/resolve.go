package graph

import "github.com/jward/flowgraph/internal/chain"

// Mode selects which elements of a resolved chain are yielded.
type Mode uint8

const (
	// ModeFinal yields only the chain's terminal element. If any atom on
	// the chain is reactive, every element from that point on is yielded
	// instead, since reactivity makes the intermediates relevant.
	ModeFinal Mode = iota
	// ModeAll yields every resolvable element.
	ModeAll
	// ModeReverse yields every resolvable element leaf-first, for callers
	// that need invalidation order. Marker inheritance still follows the
	// chain direction; only the emission order is reversed.
	ModeReverse
)

// Resolved is one element of a resolved chain.
type Resolved struct {
	Symbol SymbolID
	// Atom carries the flags as inherited along the chain, not as parsed.
	Atom chain.Atom
	// Next is the atom following this element, nil exactly when the
	// element is the chain's terminal.
	Next *chain.Atom
	// Liveness is the tick the resolution is valid for.
	Liveness Tick
}

// Terminal reports whether the element is the last of its chain.
func (r Resolved) Terminal() bool { return r.Next == nil }

// ResolveChain resolves an access chain against the scope's view of the
// graph at the current tick. Resolution is partial and never fails: it
// stops at the first atom that cannot be resolved statically (an unknown
// name, a call's return value, a symbol without a namespace).
func (g *Graph) ResolveChain(sc ScopeID, ref *chain.Ref, mode Mode) []Resolved {
	return g.ResolveChainAt(sc, ref, mode, g.clock)
}

// ResolveChainAt is ResolveChain with an explicit liveness tick.
func (g *Graph) ResolveChainAt(sc ScopeID, ref *chain.Ref, mode Mode, at Tick) []Resolved {
	raw := g.walkChain(sc, ref, at)
	if len(raw) == 0 {
		return nil
	}

	// Inherit reactivity: once a reactive atom is seen every later
	// element is reactive, until a blocking atom suppresses the rest.
	reactiveSeen, blockingSeen := false, false
	firstReactive := -1
	for i := range raw {
		a := raw[i].Atom
		if a.Reactive && !blockingSeen {
			reactiveSeen = true
			if firstReactive < 0 {
				firstReactive = i
			}
		}
		if a.Blocking {
			blockingSeen = true
		}
		if reactiveSeen && !blockingSeen && !a.Reactive {
			raw[i].Atom = a.AsReactive()
		} else if blockingSeen && !a.Blocking {
			raw[i].Atom = a.AsBlocking()
		}
	}

	switch mode {
	case ModeAll:
		return raw
	case ModeReverse:
		out := make([]Resolved, len(raw))
		for i := range raw {
			out[len(raw)-1-i] = raw[i]
		}
		return out
	default: // ModeFinal
		if firstReactive >= 0 {
			return raw[firstReactive:]
		}
		last := raw[len(raw)-1]
		if !last.Terminal() {
			return nil
		}
		return []Resolved{last}
	}
}

// walkChain generates progressive symbols for an access chain until it
// can no longer proceed semi-statically (an unresolvable name, or a call
// whose return value is unknown ahead of execution).
func (g *Graph) walkChain(sc ScopeID, ref *chain.Ref, at Tick) []Resolved {
	var out []Resolved
	cur := sc
	for i, atom := range ref.Atoms {
		var sym SymbolID
		if i == 0 || atom.Callpoint {
			// The chain root and call names resolve lexically; members
			// resolve only within the namespace being descended.
			sym = g.Lookup(cur, atom.Key, atom.Subscript)
		} else {
			sym = g.LookupLocal(cur, atom.Key, atom.Subscript)
		}
		if sym == NoSymbol {
			break
		}
		out = append(out, Resolved{
			Symbol:   sym,
			Atom:     atom,
			Next:     nextAtom(ref, i),
			Liveness: at,
		})
		if atom.Callpoint {
			// Cannot descend into a call's return value.
			break
		}
		ns, ok := g.namespaces[g.Symbol(sym).object]
		if !ok {
			break
		}
		cur = ns
	}
	return out
}

func nextAtom(ref *chain.Ref, i int) *chain.Atom {
	if i+1 >= len(ref.Atoms) {
		return nil
	}
	next := ref.Atoms[i+1]
	return &next
}
