package flowgraph

import (
	"context"
	"fmt"
	"os"

	"github.com/jward/flowgraph/internal/chain"
	"github.com/jward/flowgraph/internal/graph"
	"github.com/jward/flowgraph/internal/journal"
	"github.com/jward/flowgraph/internal/policy"
	"github.com/jward/flowgraph/internal/trace"
)

// Engine wires the dependency graph, the execution event adapter, the
// optional journal, and the optional re-execution policy behind one
// handle. Not safe for concurrent use: events for one session arrive in
// order on one goroutine (the single-statement-in-flight model).
type Engine struct {
	g       *graph.Graph
	adapter *trace.Adapter
	parser  *chain.Parser

	journal     *journal.Journal
	journalPath string
	session     string
	sink        trace.Sink

	policySource string
	policyFile   string
	policy       *policy.Policy

	debugChecks bool
	logf        func(format string, args ...any)
}

// Option configures an Engine.
type Option func(*Engine)

// WithJournal records every event to a SQLite journal at path.
func WithJournal(path string) Option {
	return func(e *Engine) { e.journalPath = path }
}

// WithSession names the journal session. Default "default".
func WithSession(name string) Option {
	return func(e *Engine) { e.session = name }
}

// WithPolicyScript sets the Risor re-execution policy from source text.
func WithPolicyScript(source string) Option {
	return func(e *Engine) { e.policySource = source }
}

// WithPolicyScriptFile loads the Risor re-execution policy from a file
// at New time.
func WithPolicyScriptFile(path string) Option {
	return func(e *Engine) { e.policyFile = path }
}

// WithDebugChecks makes graph invariant violations fatal instead of
// self-healing.
func WithDebugChecks() Option {
	return func(e *Engine) { e.debugChecks = true }
}

// WithLogger sets the low-severity log hook (malformed chains, discarded
// writes). Default is silent.
func WithLogger(f func(format string, args ...any)) Option {
	return func(e *Engine) { e.logf = f }
}

// WithConfig applies a loaded Config. Options given after it win.
func WithConfig(cfg *Config) Option {
	return func(e *Engine) {
		for _, opt := range cfg.Options() {
			opt(e)
		}
	}
}

// New creates an Engine.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		session: "default",
		logf:    func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(e)
	}

	var gopts []graph.Option
	gopts = append(gopts, graph.WithLogf(e.logf))
	if e.debugChecks {
		gopts = append(gopts, graph.WithDebugChecks())
	}
	e.g = graph.New(gopts...)
	e.adapter = trace.NewAdapter(e.g, trace.WithAdapterLogf(e.logf))
	e.parser = chain.NewParser()
	e.sink = e.adapter

	if e.policyFile != "" {
		src, err := os.ReadFile(e.policyFile)
		if err != nil {
			e.parser.Close()
			return nil, fmt.Errorf("flowgraph: read policy script: %w", err)
		}
		e.policySource = string(src)
	}
	e.policy = policy.New(e.g, e.parser, e.policySource)

	if e.journalPath != "" {
		j, err := journal.Open(e.journalPath)
		if err != nil {
			e.parser.Close()
			return nil, fmt.Errorf("flowgraph: open journal: %w", err)
		}
		if err := j.Migrate(); err != nil {
			j.Close()
			e.parser.Close()
			return nil, fmt.Errorf("flowgraph: migrate journal: %w", err)
		}
		if err := j.BeginSession(e.session); err != nil {
			j.Close()
			e.parser.Close()
			return nil, fmt.Errorf("flowgraph: begin session: %w", err)
		}
		e.journal = j
		e.sink = journal.NewRecorder(j, e.session, e.adapter, func(err error) {
			e.logf("flowgraph: journal: %v", err)
		})
	}

	return e, nil
}

// Close releases the Engine's parser and journal resources.
func (e *Engine) Close() error {
	e.parser.Close()
	if e.journal != nil {
		return e.journal.Close()
	}
	return nil
}

// Events returns the sink the instrumentation layer drives. With a
// journal configured, events are recorded before they hit the graph.
func (e *Engine) Events() Sink {
	return e.sink
}

// Query returns a QueryBuilder over the live graph.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{e: e}
}

// Graph returns the underlying dependency graph for direct access.
func (e *Engine) Graph() *Graph {
	return e.g
}

// Journal returns the configured journal, or nil.
func (e *Engine) Journal() *Journal {
	return e.journal
}

// ReplayFrom drives this engine's adapter with a session recorded in j.
// The replay bypasses this engine's own recorder, so replaying does not
// re-journal the events.
func (e *Engine) ReplayFrom(j *Journal, session string) error {
	if err := j.ReplayInto(session, e.adapter); err != nil {
		return fmt.Errorf("flowgraph: replay session %q: %w", session, err)
	}
	return nil
}

// OpenJournal opens an existing journal for inspection or replay.
func OpenJournal(path string) (*Journal, error) {
	j, err := journal.Open(path)
	if err != nil {
		return nil, err
	}
	if err := j.Migrate(); err != nil {
		j.Close()
		return nil, err
	}
	return j, nil
}

// PlanReexec drains the queued reactive triggers and applies the
// configured policy script, returning the qualified names of the chains
// to re-run, in plan order. Without a script the queue passes through in
// queue order.
func (e *Engine) PlanReexec(ctx context.Context) ([]string, error) {
	queue := e.g.DrainReexec()
	plan, err := e.policy.Plan(ctx, queue)
	if err != nil {
		return nil, fmt.Errorf("flowgraph: plan: %w", err)
	}
	names := make([]string, len(plan))
	for i, id := range plan {
		names[i] = e.g.QualifiedName(id)
	}
	return names, nil
}
