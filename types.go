package flowgraph

import (
	"github.com/jward/flowgraph/internal/chain"
	"github.com/jward/flowgraph/internal/graph"
	"github.com/jward/flowgraph/internal/journal"
	"github.com/jward/flowgraph/internal/trace"
)

// Public type aliases for internal types used in the Engine API. These
// are Go type aliases (=) — identical to the internal types at compile
// time. External consumers use these names; no conversion is needed.

type Graph = graph.Graph
type SymbolID = graph.SymbolID
type ScopeID = graph.ScopeID
type ObjectID = graph.ObjectID
type Tick = graph.Tick
type Symbol = graph.Symbol
type Scope = graph.Scope
type Kind = graph.Kind
type Resolved = graph.Resolved
type Mode = graph.Mode

type Key = chain.Key
type Atom = chain.Atom
type Ref = chain.Ref

type Sink = trace.Sink
type LoadEvent = trace.LoadEvent
type StoreEvent = trace.StoreEvent

type Journal = journal.Journal
type JournalEvent = journal.Event

const (
	NoSymbol = graph.NoSymbol
	NoScope  = graph.NoScope
	NoObject = graph.NoObject

	ModeFinal   = graph.ModeFinal
	ModeAll     = graph.ModeAll
	ModeReverse = graph.ModeReverse
)

// ErrMalformedChain reports an access-chain shape the parser does not
// support.
var ErrMalformedChain = chain.ErrMalformedChain

// Name builds a string-named chain key.
func Name(s string) Key { return chain.NameKey(s) }

// Index builds an integer-indexed chain key.
func Index(i int64) Key { return chain.IndexKey(i) }
