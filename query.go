package flowgraph

import (
	"context"
	"errors"
	"fmt"

	"github.com/jward/flowgraph/internal/chain"
)

// QueryBuilder resolves textual access chains against the live graph.
type QueryBuilder struct {
	e *Engine
}

// Link is one resolved step of a chain.
type Link struct {
	Chain     string `json:"chain"`
	Kind      string `json:"kind"`
	Stale     bool   `json:"stale"`
	Reactive  bool   `json:"reactive,omitempty"`
	Blocking  bool   `json:"blocking,omitempty"`
	Terminal  bool   `json:"terminal"`
	DefinedAt uint64 `json:"defined_at"`
}

// Resolve parses text and walks it against the global scope, reporting
// every link the mode yields. A chain that does not resolve returns an
// empty slice; a chain the parser cannot shape returns an error wrapping
// [ErrMalformedChain].
func (q *QueryBuilder) Resolve(ctx context.Context, text string, mode Mode) ([]Link, error) {
	ref, err := q.e.parser.Parse(ctx, text)
	if err != nil {
		if errors.Is(err, chain.ErrMalformedChain) {
			q.e.logf("flowgraph: query: %v", err)
		}
		return nil, err
	}

	resolved := q.e.g.ResolveChain(q.e.g.Global(), ref, mode)
	links := make([]Link, len(resolved))
	for i, r := range resolved {
		sym := q.e.g.Symbol(r.Symbol)
		links[i] = Link{
			Chain:     q.e.g.QualifiedName(r.Symbol),
			Kind:      sym.Kind().String(),
			Stale:     sym.Stale(),
			Reactive:  r.Atom.Reactive,
			Blocking:  r.Atom.Blocking,
			Terminal:  r.Terminal(),
			DefinedAt: uint64(sym.DefinedAt()),
		}
	}
	return links, nil
}

// target resolves text to its terminal symbol.
func (q *QueryBuilder) target(ctx context.Context, text string) (SymbolID, error) {
	ref, err := q.e.parser.Parse(ctx, text)
	if err != nil {
		return NoSymbol, err
	}
	resolved := q.e.g.ResolveChain(q.e.g.Global(), ref.Nonreactive(), ModeAll)
	if len(resolved) == 0 {
		return NoSymbol, fmt.Errorf("flowgraph: chain %q does not resolve", text)
	}
	last := resolved[len(resolved)-1]
	if !last.Terminal() {
		return NoSymbol, fmt.Errorf("flowgraph: chain %q resolves only partially", text)
	}
	return last.Symbol, nil
}

// IsStale reports whether the chain's target is stale.
func (q *QueryBuilder) IsStale(ctx context.Context, text string) (bool, error) {
	id, err := q.target(ctx, text)
	if err != nil {
		return false, err
	}
	return q.e.g.Symbol(id).Stale(), nil
}

// DependentsOf returns the qualified names of the direct consumers of
// the chain's target.
func (q *QueryBuilder) DependentsOf(ctx context.Context, text string) ([]string, error) {
	id, err := q.target(ctx, text)
	if err != nil {
		return nil, err
	}
	children := q.e.g.Children(id)
	names := make([]string, len(children))
	for i, c := range children {
		names[i] = q.e.g.QualifiedName(c)
	}
	return names, nil
}

// StaleChains returns the qualified names of every stale symbol, in
// arena order.
func (q *QueryBuilder) StaleChains() []string {
	stale := q.e.g.StaleSymbols()
	names := make([]string, len(stale))
	for i, id := range stale {
		names[i] = q.e.g.QualifiedName(id)
	}
	return names
}

// MarkReactive flags the chain's target as a reactive trigger: once a
// cascading update invalidates it, it lands on the re-execution queue.
func (q *QueryBuilder) MarkReactive(ctx context.Context, text string) error {
	id, err := q.target(ctx, text)
	if err != nil {
		return err
	}
	q.e.g.Symbol(id).SetReactiveTrigger(true)
	return nil
}

// MarkCascading makes every future rebind of the chain's target schedule
// the reactive triggers it invalidates.
func (q *QueryBuilder) MarkCascading(ctx context.Context, text string) error {
	id, err := q.target(ctx, text)
	if err != nil {
		return err
	}
	q.e.g.Symbol(id).SetCascadingReactive(true)
	return nil
}
