// Package flowgraph tracks fine-grained runtime dependencies between
// program symbols and propagates staleness when their producers change.
package flowgraph
