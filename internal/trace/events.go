// Package trace is the execution event adapter: the boundary between an
// external instrumentation layer and the dependency graph. It receives
// coarse runtime events in evaluation order, buffers per-statement
// effects, and commits them to the graph at statement end.
package trace

import (
	"github.com/jward/flowgraph/internal/chain"
	"github.com/jward/flowgraph/internal/graph"
)

// Event kind names, used by journals and diagnostics.
const (
	KindStatementBegin = "statement_begin"
	KindLoad           = "load"
	KindStore          = "store"
	KindCallEnter      = "call_enter"
	KindCallExit       = "call_exit"
	KindStatementEnd   = "statement_end"
	KindAbort          = "abort"
)

// LoadEvent reports a read of a member or bare name. Object is the
// identity of the owning value; NoObject means the key is a bare name
// resolved lexically in the active scope.
type LoadEvent struct {
	Object graph.ObjectID
	// Class is the identity of the owner's class, when known; it lets
	// the adapter clone an already-modeled class namespace for a fresh
	// instance.
	Class graph.ObjectID
	// ObjectName is the bare variable name holding the owner, when the
	// instrumentation can tell ("" otherwise).
	ObjectName string
	Key        chain.Key
	Subscript  bool
	// InCall marks the member as the callee of a call expression, making
	// the owner a deep-reference/mutation candidate.
	InCall bool
	// Value and ValueID describe the member's current value, used to
	// materialize the member symbol lazily on first access.
	Value   any
	ValueID graph.ObjectID
}

// StoreEvent reports a write of a member or bare name. Stores are
// buffered and only committed at statement end, once the right-hand side
// is fully known.
type StoreEvent struct {
	Object     graph.ObjectID
	Class      graph.ObjectID
	ObjectName string
	Key        chain.Key
	Subscript  bool
	Value      any
	ValueID    graph.ObjectID
}

// Sink is the typed event stream the instrumentation layer drives.
// Events for one statement must arrive in evaluation order, and must be
// paired: every CallEnter has a matching CallExit, every StatementBegin
// a matching StatementEnd (or Abort).
type Sink interface {
	StatementBegin(id int)
	Load(ev LoadEvent)
	Store(ev StoreEvent)
	CallEnter(callee string)
	CallExit(ret any, retID graph.ObjectID)
	StatementEnd(id int)
	// Abort discards the in-flight statement's buffered effects, leaving
	// the graph in its last fully-committed state.
	Abort()
}
