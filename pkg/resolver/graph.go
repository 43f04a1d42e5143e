package resolver

import (
	"slices"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/matzehuels/quiver/pkg/dag"
	"github.com/matzehuels/quiver/pkg/deps"
	"github.com/matzehuels/quiver/pkg/semver"
)

// Node is one selected package. Nodes are immutable once the session that
// produced them has finished.
type Node struct {
	Name         string             `json:"name"`
	Version      semver.Version     `json:"version"`
	Requirements []deps.Requirement `json:"-"`
	Dependencies []string           `json:"dependencies,omitempty"` // Selected dependency names, sorted
	Digest       digest.Digest      `json:"digest,omitempty"`       // Published artifact digest, if known
	Root         bool               `json:"root,omitempty"`         // Requested directly by the project
}

// Key returns "name@version".
func (n *Node) Key() string { return deps.Key(n.Name, n.Version) }

// Graph is the final selection: exactly one node per package name, with an
// edge from each node to every package it requires.
type Graph struct {
	dag   *dag.DAG
	nodes map[string]*Node
	roots []string
}

func newGraph(s *snapshot, roots []string) *Graph {
	g := &Graph{
		dag:   dag.New(nil),
		nodes: make(map[string]*Node, len(s.selected)),
		roots: roots,
	}
	for name, sel := range s.selected {
		n := &Node{
			Name:         name,
			Version:      sel.release.Version,
			Requirements: slices.Clone(sel.release.Requirements),
			Digest:       sel.release.Digest,
			Root:         slices.Contains(roots, name),
		}
		g.nodes[name] = n
		_ = g.dag.AddNode(dag.Node{ID: name, Meta: dag.Metadata{"version": n.Version.String()}})
	}
	for name, n := range g.nodes {
		for _, req := range n.Requirements {
			if req.Dev {
				continue
			}
			_ = g.dag.AddEdge(dag.Edge{From: name, To: req.Name, Meta: dag.Metadata{"constraint": req.Constraint.String()}})
		}
		n.Dependencies = slices.Clone(g.dag.Children(name))
	}
	return g
}

// Len returns the number of selected packages.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node selected for name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodes[deps.NormalizeName(name)]
	return n, ok
}

// Nodes returns every node sorted by name.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.dag.Nodes() {
		out = append(out, g.nodes[n.ID])
	}
	return out
}

// Roots returns the root package names, sorted.
func (g *Graph) Roots() []string { return slices.Clone(g.roots) }

// Dependents returns the names of packages that require name, sorted.
func (g *Graph) Dependents(name string) []string {
	return slices.Clone(g.dag.Parents(deps.NormalizeName(name)))
}

// DAG exposes the underlying graph for rendering. Callers must not modify it.
func (g *Graph) DAG() *dag.DAG { return g.dag }

// Plan is an install order: every node appears after all of its
// dependencies, ties broken by package name.
type Plan []*Node

// Names returns "name@version" for each step.
func (p Plan) Names() []string {
	out := make([]string, len(p))
	for i, n := range p {
		out[i] = n.Key()
	}
	return out
}

func (p Plan) String() string { return strings.Join(p.Names(), " ") }

// plan derives the install order with Kahn's algorithm over the graph.
func (g *Graph) plan() (Plan, error) {
	order, err := g.dag.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	p := make(Plan, len(order))
	for i, name := range order {
		p[i] = g.nodes[name]
	}
	return p, nil
}
