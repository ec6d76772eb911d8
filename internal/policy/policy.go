// Package policy is the consumer-side re-execution scheduler seam. A
// Risor script receives the drained trigger queue and decides which
// chains actually re-run, and in what order; with no script configured
// the queue passes through untouched.
package policy

import (
	"context"
	"fmt"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/object"

	"github.com/jward/flowgraph/internal/chain"
	"github.com/jward/flowgraph/internal/graph"
)

// Policy evaluates a scheduling script against the live graph.
type Policy struct {
	g      *graph.Graph
	parser *chain.Parser
	source string
}

// New creates a Policy. source may be empty, in which case Plan is a
// passthrough.
func New(g *graph.Graph, parser *chain.Parser, source string) *Policy {
	return &Policy{g: g, parser: parser, source: source}
}

// Plan applies the script to the drained queue and returns the chains to
// re-run, in script order. The script sees the queue as a list of
// qualified names and must evaluate to a list of names; names outside
// the queue are resolved against the global scope, so a policy can pull
// in stale chains the queue never mentioned.
func (p *Policy) Plan(ctx context.Context, queue []graph.SymbolID) ([]graph.SymbolID, error) {
	if p.source == "" {
		return queue, nil
	}

	byName := make(map[string]graph.SymbolID, len(queue))
	names := make([]object.Object, len(queue))
	for i, id := range queue {
		qn := p.g.QualifiedName(id)
		names[i] = object.NewString(qn)
		byName[qn] = id
	}

	result, err := risor.Eval(ctx, p.source,
		risor.WithGlobal("queue", object.NewList(names)),
		risor.WithGlobal("is_stale", p.makeIsStaleFn(ctx)),
		risor.WithGlobal("dependents_of", p.makeDependentsOfFn(ctx)),
		risor.WithGlobal("stale_chains", p.makeStaleChainsFn()),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: eval: %w", err)
	}

	list, ok := result.(*object.List)
	if !ok {
		return nil, fmt.Errorf("policy: script must evaluate to a list, got %s", result.Type())
	}
	plan := make([]graph.SymbolID, 0, len(list.Value()))
	for _, item := range list.Value() {
		str, ok := item.(*object.String)
		if !ok {
			return nil, fmt.Errorf("policy: plan entries must be strings, got %s", item.Type())
		}
		id, ok := byName[str.Value()]
		if !ok {
			id, err = p.resolveText(ctx, str.Value())
			if err != nil {
				return nil, fmt.Errorf("policy: plan entry %q: %w", str.Value(), err)
			}
		}
		plan = append(plan, id)
	}
	return plan, nil
}

// resolveText resolves a textual chain to its terminal symbol in the
// global scope.
func (p *Policy) resolveText(ctx context.Context, text string) (graph.SymbolID, error) {
	ref, err := p.parser.Parse(ctx, text)
	if err != nil {
		return graph.NoSymbol, err
	}
	resolved := p.g.ResolveChain(p.g.Global(), ref.Nonreactive(), graph.ModeAll)
	if len(resolved) == 0 {
		return graph.NoSymbol, fmt.Errorf("chain does not resolve")
	}
	last := resolved[len(resolved)-1]
	if !last.Terminal() {
		return graph.NoSymbol, fmt.Errorf("chain resolves only partially")
	}
	return last.Symbol, nil
}

// is_stale(chain) → bool
func (p *Policy) makeIsStaleFn(ctx context.Context) *object.Builtin {
	return object.NewBuiltin("is_stale", func(_ context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("is_stale", 1, len(args))
		}
		str, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("is_stale: chain must be a string, got %s", args[0].Type())
		}
		id, err := p.resolveText(ctx, str.Value())
		if err != nil {
			return object.Errorf("is_stale: %q: %v", str.Value(), err)
		}
		return object.NewBool(p.g.Symbol(id).Stale())
	})
}

// dependents_of(chain) → list of qualified names
func (p *Policy) makeDependentsOfFn(ctx context.Context) *object.Builtin {
	return object.NewBuiltin("dependents_of", func(_ context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("dependents_of", 1, len(args))
		}
		str, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("dependents_of: chain must be a string, got %s", args[0].Type())
		}
		id, err := p.resolveText(ctx, str.Value())
		if err != nil {
			return object.Errorf("dependents_of: %q: %v", str.Value(), err)
		}
		return qualifiedNameList(p.g, p.g.Children(id))
	})
}

// stale_chains() → list of qualified names of every stale symbol
func (p *Policy) makeStaleChainsFn() *object.Builtin {
	return object.NewBuiltin("stale_chains", func(_ context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("stale_chains", 0, len(args))
		}
		return qualifiedNameList(p.g, p.g.StaleSymbols())
	})
}

func qualifiedNameList(g *graph.Graph, ids []graph.SymbolID) *object.List {
	items := make([]object.Object, len(ids))
	for i, id := range ids {
		items[i] = object.NewString(g.QualifiedName(id))
	}
	return object.NewList(items)
}
