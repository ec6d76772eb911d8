// Package flowgraph provides a fine-grained runtime dependency graph for
// interactive execution environments. It records, per executed statement,
// which symbols were read and which were written, maintains
// producer→consumer edges between them, and propagates staleness when a
// producer changes out from under its consumers.
//
// # Pipeline
//
// An instrumentation layer (external to this module) observes execution
// and drives the event protocol: statement begin, loads, stores, call
// enter/exit, statement end. The engine buffers each statement's effects
// and commits them atomically at the statement boundary:
//
//  1. Trace: events arrive in evaluation order; member accesses descend
//     into per-object namespaces that mirror the live object graph,
//     created lazily on first observed access.
//
//  2. Commit: buffered writes become symbols whose dependencies are the
//     statement's reads; in-place mutations (a call on a receiver that
//     returned nothing) re-point the receiver at its own prior state.
//
//  3. Propagate: dependents of a changed symbol are marked stale
//     breadth-first, and reactive triggers are queued for re-execution —
//     never run recursively inside a propagation pass.
//
// # Usage
//
// Create an Engine, feed it events, and query:
//
//	e, err := flowgraph.New()
//	if err != nil { ... }
//	defer e.Close()
//
//	sink := e.Events()
//	sink.StatementBegin(1)
//	sink.Store(flowgraph.StoreEvent{Key: flowgraph.Name("x"), ValueID: 1, Value: 1})
//	sink.StatementEnd(1)
//
//	q := e.Query()
//	stale, err := q.IsStale(ctx, "x")
//
// # Query API
//
// The [QueryBuilder] returned by [Engine.Query] resolves textual access
// chains ("lst[0].b", "obj.$attr") against the live graph:
//
//   - [QueryBuilder.Resolve] — walk a chain and report every link.
//   - [QueryBuilder.IsStale] — staleness verdict for a chain's target.
//   - [QueryBuilder.DependentsOf] — consumers of a chain's target.
//   - [QueryBuilder.StaleChains] — every currently stale symbol.
//
// A "$" marker in a chain makes the suffix reactive; "!" blocks
// reactivity from propagating past an atom.
//
// # Journal and policy
//
// With [WithJournal] set, every event is also appended to a SQLite
// journal, and a recorded session can be replayed into a fresh engine
// later. With [WithPolicyScript] set, [Engine.PlanReexec] filters and
// orders the drained re-execution queue through a Risor script that sees
// the queue plus is_stale / dependents_of / stale_chains host functions.
package flowgraph
