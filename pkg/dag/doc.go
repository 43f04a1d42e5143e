// Package dag provides the directed graph that holds a resolved set of
// packages and the requirement edges between them.
//
// # Overview
//
// Each node is a package; an edge From→To means From depends on To. The
// resolver builds one graph per resolution session from its final selection,
// checks it for cycles and derives the install order from it. The renderer
// in pkg/render draws the same graph.
//
// # Basic Usage
//
//	g := dag.New(nil)
//	g.AddNode(dag.Node{ID: "app"})
//	g.AddNode(dag.Node{ID: "lib"})
//	g.AddEdge(dag.Edge{From: "app", To: "lib"})
//
//	order, err := g.TopologicalOrder() // [lib app]
//
// # Determinism
//
// Adjacency lists are kept sorted and every multi-node query returns nodes in
// ID order. [DAG.FindCycle] and [DAG.TopologicalOrder] therefore produce the
// same answer for the same graph regardless of insertion order, which is what
// makes install plans reproducible.
//
// # Cycles
//
// [DAG.FindCycle] runs a depth-first search with white/gray/black coloring
// and reports the members of the first back edge it meets. A graph with a
// cycle has no topological order; [DAG.TopologicalOrder] returns a
// [*CycleError] naming the members instead.
//
// # Concurrency
//
// DAG is not safe for concurrent mutation. Once built, concurrent reads are
// safe.
package dag
