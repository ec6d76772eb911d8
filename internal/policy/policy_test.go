package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/flowgraph/internal/chain"
	"github.com/jward/flowgraph/internal/graph"
)

// newTestPolicy builds a graph with x -> y -> z where a cascading rebind
// of x left y and z stale and queued both as re-execution triggers.
func newTestPolicy(t *testing.T, source string) (*graph.Graph, *Policy, []graph.SymbolID) {
	t.Helper()
	g := graph.New()
	x := g.Upsert(g.Global(), chain.NameKey("x"), 1, 1, nil, graph.UpsertOpts{})
	y := g.Upsert(g.Global(), chain.NameKey("y"), 2, 2, []graph.SymbolID{x}, graph.UpsertOpts{})
	z := g.Upsert(g.Global(), chain.NameKey("z"), 3, 3, []graph.SymbolID{y}, graph.UpsertOpts{})
	g.Symbol(y).SetReactiveTrigger(true)
	g.Symbol(z).SetReactiveTrigger(true)

	// x = 2, with reactive cascade.
	g.Upsert(g.Global(), chain.NameKey("x"), 4, 2, nil, graph.UpsertOpts{CascadingReactive: true})

	parser := chain.NewParser()
	t.Cleanup(parser.Close)

	return g, New(g, parser, source), g.DrainReexec()
}

func names(t *testing.T, g *graph.Graph, ids []graph.SymbolID) []string {
	t.Helper()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = g.QualifiedName(id)
	}
	return out
}

func TestPlanWithoutScriptPassesThrough(t *testing.T) {
	t.Parallel()
	_, p, queue := newTestPolicy(t, "")
	require.NotEmpty(t, queue)

	plan, err := p.Plan(context.Background(), queue)
	require.NoError(t, err)
	assert.Equal(t, queue, plan)
}

func TestPlanScriptEchoesQueue(t *testing.T) {
	t.Parallel()
	g, p, queue := newTestPolicy(t, `queue`)

	plan, err := p.Plan(context.Background(), queue)
	require.NoError(t, err)
	assert.Equal(t, names(t, g, queue), names(t, g, plan))
}

func TestPlanScriptFiltersWithIsStale(t *testing.T) {
	t.Parallel()
	g, p, queue := newTestPolicy(t, `
out := []
for _, c := range queue {
	if is_stale(c) {
		out.append(c)
	}
}
out
`)
	require.Equal(t, []string{"y", "z"}, names(t, g, queue))

	// y re-ran in the meantime: it is fresh again, z is still stale.
	x := g.Lookup(g.Global(), chain.NameKey("x"), false)
	g.Upsert(g.Global(), chain.NameKey("y"), 5, 2, []graph.SymbolID{x}, graph.UpsertOpts{})

	plan, err := p.Plan(context.Background(), queue)
	require.NoError(t, err)
	assert.Equal(t, []string{"z"}, names(t, g, plan))
}

func TestPlanScriptPullsInStaleChains(t *testing.T) {
	t.Parallel()
	g, p, queue := newTestPolicy(t, `stale_chains()`)

	plan, err := p.Plan(context.Background(), queue)
	require.NoError(t, err)
	// Both y and z went stale off the rebind of x.
	assert.ElementsMatch(t, []string{"y", "z"}, names(t, g, plan))
}

func TestPlanScriptUsesDependents(t *testing.T) {
	t.Parallel()
	g, p, queue := newTestPolicy(t, `dependents_of("x")`)

	plan, err := p.Plan(context.Background(), queue)
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, names(t, g, plan))
}

func TestPlanScriptMustReturnList(t *testing.T) {
	t.Parallel()
	_, p, queue := newTestPolicy(t, `42`)

	_, err := p.Plan(context.Background(), queue)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must evaluate to a list")
}

func TestPlanRejectsUnresolvableEntry(t *testing.T) {
	t.Parallel()
	_, p, queue := newTestPolicy(t, `["nonesuch"]`)

	_, err := p.Plan(context.Background(), queue)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonesuch")
}

func TestPlanEmptyQueueStillRunsScript(t *testing.T) {
	t.Parallel()
	g, p, _ := newTestPolicy(t, `stale_chains()`)

	plan, err := p.Plan(context.Background(), nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"y", "z"}, names(t, g, plan))
}
