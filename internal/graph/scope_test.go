package graph

import (
	"testing"

	"github.com/jward/flowgraph/internal/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CreatesGlobalScope(t *testing.T) {
	g := New()
	global := g.Scope(g.Global())
	require.NotNil(t, global)
	assert.True(t, global.IsGlobal())
	assert.False(t, global.IsNamespace())
	assert.Equal(t, GlobalScopeName, global.Name())
}

func TestLookup_WalksNonNamespaceAncestors(t *testing.T) {
	g := New()
	x := g.Upsert(g.Global(), chain.NameKey("x"), 1, nil, nil, UpsertOpts{})

	fn := g.NewScope("f", g.Global())
	assert.Equal(t, x, g.Lookup(fn, chain.NameKey("x"), false))
	assert.Equal(t, NoSymbol, g.LookupLocal(fn, chain.NameKey("x"), false))
}

func TestLookup_NamespaceMembersDoNotLeakUnqualified(t *testing.T) {
	g := New()
	ns := g.NewNamespace("obj", g.Global(), 10)
	g.MaterializeMember(ns, chain.NameKey("attr"), false, 11, nil)

	// A scope nested inside the namespace does not see "attr" unqualified.
	method := g.NewScope("m", ns)
	assert.Equal(t, NoSymbol, g.Lookup(method, chain.NameKey("attr"), false))

	// But it does see globals through the non-namespace ancestor chain.
	x := g.Upsert(g.Global(), chain.NameKey("x"), 1, nil, nil, UpsertOpts{})
	assert.Equal(t, x, g.Lookup(method, chain.NameKey("x"), false))
}

func TestUpsert_SameKindRebindReusesSymbol(t *testing.T) {
	g := New()
	first := g.Upsert(g.Global(), chain.NameKey("x"), 1, "one", nil, UpsertOpts{})
	second := g.Upsert(g.Global(), chain.NameKey("x"), 2, "two", nil, UpsertOpts{})
	assert.Equal(t, first, second)
	assert.Equal(t, ObjectID(2), g.Symbol(second).Object())
	assert.Equal(t, "two", g.Symbol(second).Value())
}

func TestUpsert_KindChangeDisplacesAndLinksOldSymbol(t *testing.T) {
	g := New()
	fn := g.Upsert(g.Global(), chain.NameKey("f"), 1, nil, nil, UpsertOpts{Kind: KindFunction})
	plain := g.Upsert(g.Global(), chain.NameKey("f"), 2, nil, nil, UpsertOpts{})

	require.NotEqual(t, fn, plain)
	assert.Equal(t, plain, g.Lookup(g.Global(), chain.NameKey("f"), false))
	// The displaced symbol is remembered as a dependency of its successor.
	assert.Contains(t, g.Parents(plain), fn)
}

func TestUpsert_SubscriptAndNameCoexist(t *testing.T) {
	g := New()
	ns := g.NewNamespace("d", g.Global(), 10)
	byName := g.Upsert(ns, chain.NameKey("k"), 1, nil, nil, UpsertOpts{})
	bySub := g.Upsert(ns, chain.NameKey("k"), 2, nil, nil, UpsertOpts{Subscript: true})

	require.NotEqual(t, byName, bySub)
	assert.Equal(t, byName, g.LookupLocal(ns, chain.NameKey("k"), false))
	assert.Equal(t, bySub, g.LookupLocal(ns, chain.NameKey("k"), true))
	assert.Equal(t, KindSubscript, g.Symbol(bySub).Kind())
}

func TestDelete_MarksGarbageAndHidesBinding(t *testing.T) {
	g := New()
	x := g.Upsert(g.Global(), chain.NameKey("x"), 1, nil, nil, UpsertOpts{})
	g.Delete(g.Global(), chain.NameKey("x"), false)

	assert.Equal(t, NoSymbol, g.Lookup(g.Global(), chain.NameKey("x"), false))
	assert.True(t, g.Symbol(x).Garbage())
	// The arena still holds the node for explanatory purposes.
	require.NotNil(t, g.Symbol(x))
}

func TestDelete_MissingBindingIsNoop(t *testing.T) {
	g := New()
	g.Delete(g.Global(), chain.NameKey("nope"), false)
}

func TestCloneNamespace_FallbackAndShadowing(t *testing.T) {
	g := New()
	classNS := g.NewNamespace("C", g.Global(), 100)
	classV := g.Upsert(classNS, chain.NameKey("v"), 101, 1, nil, UpsertOpts{})

	instNS := g.CloneNamespace(classNS, 200, "inst")
	require.True(t, g.Scope(instNS).IsNamespace())
	assert.Equal(t, classNS, g.Scope(instNS).ClonedFrom())

	// Unshadowed member falls back to the class symbol.
	assert.Equal(t, classV, g.LookupLocal(instNS, chain.NameKey("v"), false))

	// Assigning inst.v shadows the class member and records it as a dep.
	instV := g.Upsert(instNS, chain.NameKey("v"), 201, 2, nil, UpsertOpts{})
	require.NotEqual(t, classV, instV)
	assert.Equal(t, instV, g.LookupLocal(instNS, chain.NameKey("v"), false))
	assert.Contains(t, g.Parents(instV), classV)
}

func TestMaterializeMember_PinsTimestampsToNamespace(t *testing.T) {
	g := New()
	ns := g.NewNamespace("obj", g.Global(), 10)
	g.Upsert(ns, chain.NameKey("a"), 11, nil, nil, UpsertOpts{})
	max := g.Scope(ns).MaxDefinedTick()

	m := g.MaterializeMember(ns, chain.NameKey("b"), false, 12, nil)
	require.NotEqual(t, NoSymbol, m)
	assert.Equal(t, max, g.Symbol(m).DefinedAt())
	assert.True(t, g.Symbol(m).Implicit())
	assert.False(t, g.Symbol(m).Stale())
}

func TestQualifiedName(t *testing.T) {
	g := New()
	x := g.Upsert(g.Global(), chain.NameKey("x"), 1, nil, nil, UpsertOpts{})
	assert.Equal(t, "x", g.QualifiedName(x))

	ns := g.NewNamespace("foo", g.Global(), 10)
	attr := g.Upsert(ns, chain.NameKey("bar"), 11, nil, nil, UpsertOpts{})
	assert.Equal(t, "foo.bar", g.QualifiedName(attr))

	lst := g.NewNamespace("lst", g.Global(), 20)
	elem := g.Upsert(lst, chain.IndexKey(0), 21, nil, nil, UpsertOpts{Subscript: true})
	assert.Equal(t, "lst[0]", g.QualifiedName(elem))

	d := g.NewNamespace("d", g.Global(), 30)
	val := g.Upsert(d, chain.NameKey("k"), 31, nil, nil, UpsertOpts{Subscript: true})
	assert.Equal(t, "d['k']", g.QualifiedName(val))
}

func TestAliases_TrackCurrentHolders(t *testing.T) {
	g := New()
	a := g.Upsert(g.Global(), chain.NameKey("a"), 7, nil, nil, UpsertOpts{})
	b := g.Upsert(g.Global(), chain.NameKey("b"), 7, nil, nil, UpsertOpts{})
	assert.Equal(t, []SymbolID{a, b}, g.Aliases(7))

	// Rebinding a to a different object drops the alias.
	g.Upsert(g.Global(), chain.NameKey("a"), 8, nil, nil, UpsertOpts{})
	assert.Equal(t, []SymbolID{b}, g.Aliases(7))
	assert.Equal(t, []SymbolID{a}, g.Aliases(8))
}

func TestInvalidateNamespace_RemovesRegistryEntry(t *testing.T) {
	g := New()
	g.NewNamespace("obj", g.Global(), 10)
	_, ok := g.NamespaceFor(10)
	require.True(t, ok)

	g.InvalidateNamespace(10)
	_, ok = g.NamespaceFor(10)
	assert.False(t, ok)
}
