package trace

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/flowgraph/internal/chain"
	"github.com/jward/flowgraph/internal/graph"
)

func newTestAdapter(t *testing.T) (*graph.Graph, *Adapter) {
	t.Helper()
	g := graph.New(graph.WithDebugChecks())
	return g, NewAdapter(g)
}

// storeName drives a full statement that binds a bare name.
func storeName(a *Adapter, stmt int, name string, id graph.ObjectID, val any, loads ...string) {
	a.StatementBegin(stmt)
	for _, l := range loads {
		a.Load(LoadEvent{Key: chain.NameKey(l)})
	}
	a.Store(StoreEvent{Key: chain.NameKey(name), Value: val, ValueID: id})
	a.StatementEnd(stmt)
}

func lookupName(t *testing.T, g *graph.Graph, name string) graph.SymbolID {
	t.Helper()
	sym := g.Lookup(g.Global(), chain.NameKey(name), false)
	require.NotEqual(t, graph.NoSymbol, sym, "name %q not bound", name)
	return sym
}

func TestAdapterBareNameFlow(t *testing.T) {
	g, a := newTestAdapter(t)

	storeName(a, 1, "x", 1, 1)
	storeName(a, 2, "y", 2, 2, "x")

	x := lookupName(t, g, "x")
	y := lookupName(t, g, "y")
	require.Equal(t, []graph.SymbolID{x}, g.Parents(y))
	require.Equal(t, []graph.SymbolID{y}, g.Children(x))
	require.False(t, g.Symbol(y).Stale())

	// x = 2: rebinding the dependency stales y but not x.
	storeName(a, 3, "x", 3, 2)

	assert.True(t, g.Symbol(y).Stale())
	assert.False(t, g.Symbol(x).Stale())
	require.NoError(t, g.CheckInvariants())
}

func TestAdapterStoreBuffersUntilStatementEnd(t *testing.T) {
	g, a := newTestAdapter(t)

	a.StatementBegin(1)
	a.Store(StoreEvent{Key: chain.NameKey("x"), Value: 1, ValueID: 1})
	assert.Equal(t, graph.NoSymbol, g.Lookup(g.Global(), chain.NameKey("x"), false),
		"store must not commit mid-statement")
	a.StatementEnd(1)

	assert.NotEqual(t, graph.NoSymbol, g.Lookup(g.Global(), chain.NameKey("x"), false))
}

func TestAdapterSelfReferentialUpdate(t *testing.T) {
	g, a := newTestAdapter(t)

	storeName(a, 1, "x", 1, 1)
	storeName(a, 2, "y", 2, 2, "x")
	// x = x + 1 reads the previous x; y goes stale off the rebind.
	storeName(a, 3, "x", 3, 2, "x")

	y := lookupName(t, g, "y")
	assert.True(t, g.Symbol(y).Stale())
	require.NoError(t, g.CheckInvariants())
}

func TestAdapterMemberLoadMaterializesNamespace(t *testing.T) {
	g, a := newTestAdapter(t)

	const pointID graph.ObjectID = 10
	storeName(a, 1, "p", pointID, "point")

	// q = p.x
	a.StatementBegin(2)
	a.Load(LoadEvent{Key: chain.NameKey("p")})
	a.Load(LoadEvent{Object: pointID, ObjectName: "p", Key: chain.NameKey("x"), Value: 3, ValueID: 11})
	a.Store(StoreEvent{Key: chain.NameKey("q"), Value: 3, ValueID: 11})
	a.StatementEnd(2)

	ns, ok := g.NamespaceFor(pointID)
	require.True(t, ok, "load must create the owner namespace lazily")
	px := g.LookupLocal(ns, chain.NameKey("x"), false)
	require.NotEqual(t, graph.NoSymbol, px)
	assert.True(t, g.Symbol(px).Implicit())

	q := lookupName(t, g, "q")
	assert.Contains(t, g.Parents(q), px)
	assert.Contains(t, g.Parents(q), lookupName(t, g, "p"))
}

func TestAdapterMemberStoreCommitsIntoNamespace(t *testing.T) {
	g, a := newTestAdapter(t)

	const pointID graph.ObjectID = 10
	storeName(a, 1, "p", pointID, "point")
	storeName(a, 2, "w", 5, 5)

	// p.x = w
	a.StatementBegin(3)
	a.Load(LoadEvent{Key: chain.NameKey("w")})
	a.Store(StoreEvent{Object: pointID, ObjectName: "p", Key: chain.NameKey("x"), Value: 5, ValueID: 12})
	a.StatementEnd(3)

	ns, ok := g.NamespaceFor(pointID)
	require.True(t, ok)
	px := g.LookupLocal(ns, chain.NameKey("x"), false)
	require.NotEqual(t, graph.NoSymbol, px)
	assert.False(t, g.Symbol(px).Implicit())
	assert.Equal(t, []graph.SymbolID{lookupName(t, g, "w")}, g.Parents(px))
}

func TestAdapterSubscriptEvents(t *testing.T) {
	g, a := newTestAdapter(t)

	const lstID graph.ObjectID = 20
	storeName(a, 1, "lst", lstID, "list")

	// lst[0] = 7
	a.StatementBegin(2)
	a.Store(StoreEvent{Object: lstID, ObjectName: "lst", Key: chain.IndexKey(0), Subscript: true, Value: 7, ValueID: 21})
	a.StatementEnd(2)

	ns, ok := g.NamespaceFor(lstID)
	require.True(t, ok)
	el := g.LookupLocal(ns, chain.IndexKey(0), true)
	require.NotEqual(t, graph.NoSymbol, el)
	assert.Equal(t, graph.KindSubscript, g.Symbol(el).Kind())

	// y = lst[0]
	a.StatementBegin(3)
	a.Load(LoadEvent{Key: chain.NameKey("lst")})
	a.Load(LoadEvent{Object: lstID, ObjectName: "lst", Key: chain.IndexKey(0), Subscript: true, Value: 7, ValueID: 21})
	a.Store(StoreEvent{Key: chain.NameKey("y"), Value: 7, ValueID: 21})
	a.StatementEnd(3)

	assert.Contains(t, g.Parents(lookupName(t, g, "y")), el)
}

func TestAdapterMutationHeuristic(t *testing.T) {
	g, a := newTestAdapter(t)

	const lstID graph.ObjectID = 20
	storeName(a, 1, "lst", lstID, "list")
	storeName(a, 2, "y", 3, 3, "lst")

	lst := lookupName(t, g, "lst")
	y := lookupName(t, g, "y")
	require.False(t, g.Symbol(y).Stale())

	// lst.append(1): the call on the receiver returns nothing, so it is
	// classified as an in-place mutation.
	a.StatementBegin(3)
	a.Load(LoadEvent{Key: chain.NameKey("lst")})
	a.Load(LoadEvent{Object: lstID, ObjectName: "lst", Key: chain.NameKey("append"), InCall: true})
	a.CallEnter("lst.append")
	a.CallExit(nil, graph.NoObject)
	a.StatementEnd(3)

	assert.True(t, g.Symbol(y).Stale(), "dependent of mutated receiver must go stale")
	assert.False(t, g.Symbol(lst).Stale())
	assert.Contains(t, g.Parents(lst), lst, "mutation records the receiver's prior state as a dependency")
	require.NoError(t, g.CheckInvariants())
}

func TestAdapterDeepReadOnNonNilReturn(t *testing.T) {
	g, a := newTestAdapter(t)

	const dID graph.ObjectID = 30
	storeName(a, 1, "d", dID, "dict")

	// v = d.get('k'): the call returned a value, so it is a deep read of
	// the receiver, not a mutation.
	a.StatementBegin(2)
	a.Load(LoadEvent{Object: dID, ObjectName: "d", Key: chain.NameKey("get"), InCall: true})
	a.CallEnter("d.get")
	a.CallExit("x", 31)
	a.Store(StoreEvent{Key: chain.NameKey("v"), Value: "x", ValueID: 31})
	a.StatementEnd(2)

	d := lookupName(t, g, "d")
	v := lookupName(t, g, "v")
	assert.Equal(t, []graph.SymbolID{d}, g.Parents(v))
	assert.False(t, g.Symbol(d).Stale())
}

func TestAdapterCallWithArgumentLoadsIsNotMutation(t *testing.T) {
	g, a := newTestAdapter(t)

	const lstID graph.ObjectID = 20
	storeName(a, 1, "lst", lstID, "list")
	storeName(a, 2, "y", 3, 3, "lst")
	storeName(a, 3, "w", 4, 4)

	// lst.append(w): a load intervened between the candidate and the call
	// exit, so the heuristic stands down.
	a.StatementBegin(4)
	a.Load(LoadEvent{Key: chain.NameKey("lst")})
	a.Load(LoadEvent{Object: lstID, ObjectName: "lst", Key: chain.NameKey("append"), InCall: true})
	a.CallEnter("lst.append")
	a.Load(LoadEvent{Key: chain.NameKey("w")})
	a.CallExit(nil, graph.NoObject)
	a.StatementEnd(4)

	y := lookupName(t, g, "y")
	assert.False(t, g.Symbol(y).Stale())
}

func TestAdapterCallBracketRestoresScope(t *testing.T) {
	g, a := newTestAdapter(t)

	const dID graph.ObjectID = 30
	storeName(a, 1, "d", dID, "dict")
	storeName(a, 2, "k", 5, 5)

	// v = d.get(k): while arguments evaluate, bare names resolve in the
	// statement's original scope even though a member load entered the
	// owner namespace.
	a.StatementBegin(3)
	a.Load(LoadEvent{Key: chain.NameKey("d")})
	a.Load(LoadEvent{Object: dID, ObjectName: "d", Key: chain.NameKey("get"), InCall: true})
	a.CallEnter("d.get")
	assert.Equal(t, g.Global(), a.ActiveScope())
	a.Load(LoadEvent{Key: chain.NameKey("k")})
	a.CallExit("x", 31)
	a.Store(StoreEvent{Key: chain.NameKey("v"), Value: "x", ValueID: 31})
	a.StatementEnd(3)

	v := lookupName(t, g, "v")
	assert.ElementsMatch(t,
		[]graph.SymbolID{lookupName(t, g, "d"), lookupName(t, g, "k")},
		g.Parents(v))
	assert.Equal(t, g.Global(), a.ActiveScope())
}

func TestAdapterClassNamespaceClonedForInstance(t *testing.T) {
	g, a := newTestAdapter(t)

	const classID, instID graph.ObjectID = 40, 41

	storeName(a, 1, "C", classID, "class")
	// C.v = 1
	a.StatementBegin(2)
	a.Store(StoreEvent{Object: classID, ObjectName: "C", Key: chain.NameKey("v"), Value: 1, ValueID: 42})
	a.StatementEnd(2)

	classNS, ok := g.NamespaceFor(classID)
	require.True(t, ok)
	classV := g.LookupLocal(classNS, chain.NameKey("v"), false)
	require.NotEqual(t, graph.NoSymbol, classV)

	storeName(a, 3, "obj", instID, "instance")
	// y = obj.v: the unshadowed member resolves to the class symbol.
	a.StatementBegin(4)
	a.Load(LoadEvent{Key: chain.NameKey("obj")})
	a.Load(LoadEvent{Object: instID, Class: classID, ObjectName: "obj", Key: chain.NameKey("v"), Value: 1, ValueID: 42})
	a.Store(StoreEvent{Key: chain.NameKey("y"), Value: 1, ValueID: 42})
	a.StatementEnd(4)

	instNS, ok := g.NamespaceFor(instID)
	require.True(t, ok)
	require.NotEqual(t, classNS, instNS)
	assert.Equal(t, classNS, g.Scope(instNS).ClonedFrom())
	assert.Contains(t, g.Parents(lookupName(t, g, "y")), classV)
}

func TestAdapterNestedStatementsCommitIndependently(t *testing.T) {
	g, a := newTestAdapter(t)

	storeName(a, 1, "x", 1, 1)

	// y = f(x) where the traced body of f runs its own statement.
	a.StatementBegin(2)
	a.Load(LoadEvent{Key: chain.NameKey("x")})
	a.CallEnter("f")
	a.StatementBegin(3)
	a.Store(StoreEvent{Key: chain.NameKey("tmp"), Value: 9, ValueID: 9})
	a.StatementEnd(3)
	a.CallExit(2, 2)
	a.Store(StoreEvent{Key: chain.NameKey("y"), Value: 2, ValueID: 2})
	a.StatementEnd(2)

	// The nested commit must not trip the outer statement's race check.
	y := lookupName(t, g, "y")
	assert.Equal(t, []graph.SymbolID{lookupName(t, g, "x")}, g.Parents(y))
	assert.NotEqual(t, graph.NoSymbol, g.Lookup(g.Global(), chain.NameKey("tmp"), false))
}

func TestAdapterAbortDiscardsBufferedEffects(t *testing.T) {
	g, a := newTestAdapter(t)

	storeName(a, 1, "x", 1, 1)
	storeName(a, 2, "y", 2, 2, "x")
	y := lookupName(t, g, "y")

	a.StatementBegin(3)
	a.Store(StoreEvent{Key: chain.NameKey("z"), Value: 3, ValueID: 3})
	a.Load(LoadEvent{Key: chain.NameKey("x")})
	a.Abort()

	assert.Equal(t, graph.NoSymbol, g.Lookup(g.Global(), chain.NameKey("z"), false))
	assert.False(t, g.Symbol(y).Stale())

	// The adapter keeps working after an abort.
	storeName(a, 4, "z", 3, 3)
	assert.NotEqual(t, graph.NoSymbol, g.Lookup(g.Global(), chain.NameKey("z"), false))
}

func TestAdapterDiscardsWritesAfterConcurrentCommit(t *testing.T) {
	g, a := newTestAdapter(t)
	var logged []string
	a.logf = func(format string, args ...any) {
		logged = append(logged, fmt.Sprintf(format, args...))
	}

	a.StatementBegin(1)
	a.Store(StoreEvent{Key: chain.NameKey("x"), Value: 1, ValueID: 1})
	// Another committer advanced the graph out from under this statement.
	g.BumpCommit()
	a.StatementEnd(1)

	assert.Equal(t, graph.NoSymbol, g.Lookup(g.Global(), chain.NameKey("x"), false))
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0], "discarding")
}

func TestAdapterPushScopeResolvesLocally(t *testing.T) {
	g, a := newTestAdapter(t)

	storeName(a, 1, "x", 1, 1)
	fn := g.NewScope("fn", g.Global())
	a.PushScope(fn)

	// Inside fn: local = x reaches through to the global binding.
	storeName(a, 2, "local", 2, 2, "x")

	local := g.Lookup(fn, chain.NameKey("local"), false)
	require.NotEqual(t, graph.NoSymbol, local)
	assert.Equal(t, fn, g.Symbol(local).ScopeID())
	assert.Equal(t, []graph.SymbolID{lookupName(t, g, "x")}, g.Parents(local))
}

func TestAdapterUnknownOwnerNamespaceFallsBackToGlobal(t *testing.T) {
	g, a := newTestAdapter(t)

	// A member load on an owner name never bound anywhere still models
	// the namespace rather than dropping the event.
	a.StatementBegin(1)
	a.Load(LoadEvent{Object: 99, ObjectName: "ghost", Key: chain.NameKey("attr"), Value: 1, ValueID: 100})
	a.Store(StoreEvent{Key: chain.NameKey("y"), Value: 1, ValueID: 100})
	a.StatementEnd(1)

	ns, ok := g.NamespaceFor(99)
	require.True(t, ok)
	assert.Equal(t, g.Global(), g.Scope(ns).Parent())
	assert.NotEmpty(t, g.Parents(lookupName(t, g, "y")))
}
