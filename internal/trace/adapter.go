package trace

import (
	"github.com/jward/flowgraph/internal/chain"
	"github.com/jward/flowgraph/internal/graph"
)

// savedStore is one buffered write, held until the surrounding
// statement's right-hand side is fully known.
type savedStore struct {
	scope     graph.ScopeID // owner namespace, or the statement's original scope for bare names
	key       chain.Key
	subscript bool
	value     any
	valueID   graph.ObjectID
}

// refCandidate is a call-shaped access that may turn out to be an
// in-place mutation of its receiver.
type refCandidate struct {
	counter uint64
	object  graph.ObjectID
	name    string
}

// callFrame brackets a nested call: arguments resolve in the outer
// scope, not in any namespace entered while resolving the callee.
type callFrame struct {
	scope   graph.ScopeID
	waiting bool
}

// stmtFrame snapshots the adapter's buffers across nested statements.
type stmtFrame struct {
	id         int
	loaded     map[graph.SymbolID]struct{}
	stores     []savedStore
	candidates []refCandidate
	mutations  []refCandidate
	calls      []callFrame
	active     graph.ScopeID
	original   graph.ScopeID
	beginSeq   uint64
}

// Adapter is the execution event state machine. It owns the scope stack
// and per-statement buffers; all graph mutation funnels through it at
// statement boundaries. Not safe for concurrent use: exactly one
// statement is in flight at a time.
type Adapter struct {
	g *graph.Graph

	active   graph.ScopeID
	original graph.ScopeID

	loaded     map[graph.SymbolID]struct{}
	stores     []savedStore
	candidates []refCandidate
	mutations  []refCandidate
	calls      []callFrame
	frames     []stmtFrame

	waiting bool
	counter uint64

	inStatement bool
	curStmt     int
	beginSeq    uint64

	logf func(format string, args ...any)
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithAdapterLogf sets the low-severity log hook.
func WithAdapterLogf(f func(format string, args ...any)) AdapterOption {
	return func(a *Adapter) { a.logf = f }
}

// NewAdapter creates an adapter committing into g, rooted at the global
// scope.
func NewAdapter(g *graph.Graph, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		g:        g,
		active:   g.Global(),
		original: g.Global(),
		loaded:   make(map[graph.SymbolID]struct{}),
		logf:     func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ Sink = (*Adapter)(nil)

// ActiveScope returns the scope the adapter is currently resolving in.
func (a *Adapter) ActiveScope() graph.ScopeID { return a.active }

// PushScope enters a nested lexical scope (e.g. a traced function body).
func (a *Adapter) PushScope(sc graph.ScopeID) {
	a.active = sc
	a.original = sc
}

// StatementBegin opens a statement frame. A statement beginning while
// another is in flight (a nested call's body) pushes the outer frame.
func (a *Adapter) StatementBegin(id int) {
	if a.inStatement {
		a.frames = append(a.frames, a.snapshot())
	}
	a.inStatement = true
	a.curStmt = id
	a.loaded = make(map[graph.SymbolID]struct{})
	a.stores = nil
	a.candidates = nil
	a.mutations = nil
	a.calls = nil
	a.beginSeq = a.g.CommitSeq()
}

func (a *Adapter) snapshot() stmtFrame {
	return stmtFrame{
		id:         a.curStmt,
		loaded:     a.loaded,
		stores:     a.stores,
		candidates: a.candidates,
		mutations:  a.mutations,
		calls:      a.calls,
		active:     a.active,
		original:   a.original,
		beginSeq:   a.beginSeq,
	}
}

func (a *Adapter) restore(f stmtFrame) {
	a.curStmt = f.id
	a.loaded = f.loaded
	a.stores = f.stores
	a.candidates = f.candidates
	a.mutations = f.mutations
	a.calls = f.calls
	a.active = f.active
	a.original = f.original
	a.beginSeq = f.beginSeq
}

// Load handles a read event. Member loads descend the active scope into
// the owner's namespace, creating it lazily on first observed access;
// loads in call context become deep-reference candidates instead of
// plain reads.
func (a *Adapter) Load(ev LoadEvent) {
	a.counter++

	if ev.Object == graph.NoObject {
		// Bare name: lexical resolution from the active scope.
		if sym := a.g.Lookup(a.active, ev.Key, ev.Subscript); sym != graph.NoSymbol {
			a.loaded[sym] = struct{}{}
			a.g.MarkRequired(sym)
		}
		return
	}

	ns := a.namespaceFor(ev.Object, ev.Class, ev.ObjectName, ev.Subscript)
	a.active = ns

	if ev.InCall {
		a.candidates = append(a.candidates, refCandidate{
			counter: a.counter,
			object:  ev.Object,
			name:    ev.ObjectName,
		})
		return
	}

	sym := a.g.LookupLocal(ns, ev.Key, ev.Subscript)
	if sym == graph.NoSymbol {
		sym = a.g.MaterializeMember(ns, ev.Key, ev.Subscript, ev.ValueID, ev.Value)
	}
	if sym != graph.NoSymbol {
		a.loaded[sym] = struct{}{}
		a.g.MarkRequired(sym)
	}
}

// Store buffers a write without mutating the graph; the write commits at
// statement end. The active scope resets so later chain links in the
// same statement resolve from the statement's original scope.
func (a *Adapter) Store(ev StoreEvent) {
	a.counter++

	sc := a.original
	if ev.Object != graph.NoObject {
		sc = a.namespaceFor(ev.Object, ev.Class, ev.ObjectName, ev.Subscript)
	}
	a.stores = append(a.stores, savedStore{
		scope:     sc,
		key:       ev.Key,
		subscript: ev.Subscript,
		value:     ev.Value,
		valueID:   ev.ValueID,
	})
	a.active = a.original
}

// namespaceFor finds or creates the namespace mirroring an object. A
// fresh instance of an already-modeled class clones the class namespace.
func (a *Adapter) namespaceFor(object, class graph.ObjectID, name string, subscript bool) graph.ScopeID {
	if ns, ok := a.g.NamespaceFor(object); ok {
		return ns
	}
	if classNS, ok := a.g.NamespaceFor(class); ok && !subscript {
		return a.g.CloneNamespace(classNS, object, name)
	}
	// Brittle but effective: an owner whose name is unknown in the
	// active scope is assumed to live at global reach.
	parent := a.active
	if name != "" && a.g.Lookup(a.active, chain.NameKey(name), false) == graph.NoSymbol {
		parent = a.g.Global()
	}
	if name == "" {
		if aliases := a.g.Aliases(object); len(aliases) > 0 {
			name = a.g.Symbol(aliases[0]).Key().String()
		} else {
			name = "<unknown namespace>"
		}
	}
	return a.g.NewNamespace(name, parent, object)
}

// CallEnter brackets a nested call: while the call's arguments are being
// evaluated, names resolve in the statement's original scope, not in any
// namespace entered while resolving the callee.
func (a *Adapter) CallEnter(callee string) {
	a.calls = append(a.calls, callFrame{scope: a.active, waiting: a.waiting})
	a.waiting = true
	a.active = a.original
}

// CallExit closes the bracket and applies the mutation heuristic: a call
// on a deep-reference candidate whose event counter did not advance and
// whose return value is absent is classified as an in-place mutation of
// its receiver. A non-nil return is a deep read of the receiver instead.
//
// This is a documented best-effort inference: accessors returning
// nothing are mis-classified as mutators. Downstream behavior depends on
// the current false-positive profile, so it stays as is.
func (a *Adapter) CallExit(ret any, retID graph.ObjectID) {
	if n := len(a.calls); n > 0 {
		f := a.calls[n-1]
		a.calls = a.calls[:n-1]
		a.active, a.waiting = f.scope, f.waiting
	}
	if n := len(a.candidates); n > 0 {
		cand := a.candidates[n-1]
		a.candidates = a.candidates[:n-1]
		if cand.counter == a.counter {
			if ret == nil && retID == graph.NoObject {
				a.mutations = append(a.mutations, cand)
			} else {
				// Deep reference: the statement read the receiver.
				for _, sym := range a.g.Aliases(cand.object) {
					a.loaded[sym] = struct{}{}
					a.g.MarkRequired(sym)
				}
			}
		}
		a.active = a.original
	}
}

// StatementEnd commits the statement: buffered stores flush through
// Scope.Upsert with the statement's loads as dependencies, buffered
// mutations flush with the receiver as its own dependency, and the frame
// pops.
func (a *Adapter) StatementEnd(id int) {
	a.flush()
	a.popFrame()
	a.waiting = false
}

// Abort discards the in-flight statement's buffered effects.
func (a *Adapter) Abort() {
	a.stores = nil
	a.mutations = nil
	a.candidates = nil
	a.popFrame()
	a.waiting = false
}

func (a *Adapter) popFrame() {
	if n := len(a.frames); n > 0 {
		f := a.frames[n-1]
		a.frames = a.frames[:n-1]
		a.restore(f)
		// Commits by the nested statement are part of this statement's
		// legitimate timeline, not a write race.
		a.beginSeq = a.g.CommitSeq()
		return
	}
	a.inStatement = false
	a.loaded = make(map[graph.SymbolID]struct{})
	a.stores = nil
	a.candidates = nil
	a.mutations = nil
	a.calls = nil
	a.active = a.original
}

func (a *Adapter) flush() {
	// A statement whose buffered effects were observed against an older
	// graph state must not be applied (replay of an aborted statement).
	if a.g.CommitSeq() != a.beginSeq {
		if len(a.stores) > 0 || len(a.mutations) > 0 {
			a.logf("trace: discarding %d store(s), %d mutation(s) from statement %d: graph advanced since statement begin",
				len(a.stores), len(a.mutations), a.curStmt)
		}
		return
	}

	deps := make([]graph.SymbolID, 0, len(a.loaded))
	for sym := range a.loaded {
		deps = append(deps, sym)
	}

	for _, st := range a.stores {
		a.g.Upsert(st.scope, st.key, st.valueID, st.value, deps, graph.UpsertOpts{
			Subscript: st.subscript,
		})
	}
	for _, m := range a.mutations {
		for _, sym := range a.g.Aliases(m.object) {
			a.g.Mutate(sym, deps)
		}
	}
	if len(a.stores) > 0 || len(a.mutations) > 0 {
		a.g.BumpCommit()
	}
}
