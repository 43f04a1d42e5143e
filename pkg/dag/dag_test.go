package dag

import (
	"errors"
	"fmt"
	"slices"
	"testing"
)

func build(t *testing.T, nodes []string, edges [][2]string) *DAG {
	t.Helper()
	g := New(nil)
	for _, id := range nodes {
		if err := g.AddNode(Node{ID: id}); err != nil {
			t.Fatalf("AddNode(%s): %v", id, err)
		}
	}
	for _, e := range edges {
		if err := g.AddEdge(Edge{From: e[0], To: e[1]}); err != nil {
			t.Fatalf("AddEdge(%s, %s): %v", e[0], e[1], err)
		}
	}
	return g
}

func TestAddNodeErrors(t *testing.T) {
	g := New(nil)
	if err := g.AddNode(Node{}); !errors.Is(err, ErrInvalidNodeID) {
		t.Errorf("AddNode(empty) = %v, want ErrInvalidNodeID", err)
	}
	_ = g.AddNode(Node{ID: "a"})
	if err := g.AddNode(Node{ID: "a"}); !errors.Is(err, ErrDuplicateNodeID) {
		t.Errorf("AddNode(dup) = %v, want ErrDuplicateNodeID", err)
	}
	if err := g.AddEdge(Edge{From: "x", To: "a"}); !errors.Is(err, ErrUnknownSourceNode) {
		t.Errorf("AddEdge(unknown from) = %v", err)
	}
	if err := g.AddEdge(Edge{From: "a", To: "x"}); !errors.Is(err, ErrUnknownTargetNode) {
		t.Errorf("AddEdge(unknown to) = %v", err)
	}
	n, _ := g.Node("a")
	if n.Meta == nil {
		t.Error("Meta should be initialized")
	}
}

func TestAdjacencySortedAndDeduplicated(t *testing.T) {
	g := build(t, []string{"app", "zlib", "attrs", "click"}, [][2]string{
		{"app", "zlib"}, {"app", "attrs"}, {"app", "click"}, {"app", "attrs"},
	})

	if got := g.Children("app"); !slices.Equal(got, []string{"attrs", "click", "zlib"}) {
		t.Errorf("Children(app) = %v", got)
	}
	if g.EdgeCount() != 3 {
		t.Errorf("EdgeCount = %d, want 3", g.EdgeCount())
	}
	if got := NodeIDs(g.Sources()); !slices.Equal(got, []string{"app"}) {
		t.Errorf("Sources = %v", got)
	}
	if got := NodeIDs(g.Sinks()); !slices.Equal(got, []string{"attrs", "click", "zlib"}) {
		t.Errorf("Sinks = %v", got)
	}

	g.RemoveEdge("app", "click")
	if g.InDegree("click") != 0 || g.OutDegree("app") != 2 {
		t.Errorf("RemoveEdge left in=%d out=%d", g.InDegree("click"), g.OutDegree("app"))
	}
}

func TestTopologicalOrder(t *testing.T) {
	tests := []struct {
		name  string
		nodes []string
		edges [][2]string
		want  []string
	}{
		{
			name:  "chain",
			nodes: []string{"app", "lib", "core"},
			edges: [][2]string{{"app", "lib"}, {"lib", "core"}},
			want:  []string{"core", "lib", "app"},
		},
		{
			name:  "diamond",
			nodes: []string{"a", "b", "c", "root"},
			edges: [][2]string{{"root", "a"}, {"root", "b"}, {"a", "c"}, {"b", "c"}},
			want:  []string{"c", "a", "b", "root"},
		},
		{
			name:  "ties broken by name",
			nodes: []string{"zeta", "alpha", "mid"},
			want:  []string{"alpha", "mid", "zeta"},
		},
		{
			name:  "ready set reorders",
			nodes: []string{"b", "a", "z", "y"},
			edges: [][2]string{{"b", "z"}, {"a", "y"}},
			want:  []string{"y", "a", "z", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := build(t, tt.nodes, tt.edges)
			got, err := g.TopologicalOrder()
			if err != nil {
				t.Fatalf("TopologicalOrder: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("TopologicalOrder = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTopologicalOrderInsertionIndependent(t *testing.T) {
	edges := [][2]string{{"web", "http"}, {"web", "tmpl"}, {"http", "net"}, {"tmpl", "net"}, {"cli", "net"}}
	first := build(t, []string{"web", "http", "tmpl", "net", "cli"}, edges)

	reversed := slices.Clone(edges)
	slices.Reverse(reversed)
	second := build(t, []string{"net", "cli", "tmpl", "http", "web"}, reversed)

	a, _ := first.TopologicalOrder()
	b, _ := second.TopologicalOrder()
	if !slices.Equal(a, b) {
		t.Errorf("orders differ: %v vs %v", a, b)
	}
}

func TestFindCycle(t *testing.T) {
	tests := []struct {
		name  string
		nodes []string
		edges [][2]string
		want  []string
	}{
		{"acyclic", []string{"a", "b"}, [][2]string{{"a", "b"}}, nil},
		{"two", []string{"a", "b"}, [][2]string{{"a", "b"}, {"b", "a"}}, []string{"a", "b"}},
		{"self", []string{"a"}, [][2]string{{"a", "a"}}, []string{"a"}},
		{"three behind root", []string{"root", "x", "y", "z"}, [][2]string{{"root", "x"}, {"x", "y"}, {"y", "z"}, {"z", "x"}}, []string{"x", "y", "z"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := build(t, tt.nodes, tt.edges)
			if got := g.FindCycle(); !slices.Equal(got, tt.want) {
				t.Errorf("FindCycle = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTopologicalOrderCycle(t *testing.T) {
	g := build(t, []string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "a"}, {"c", "a"}})

	_, err := g.TopologicalOrder()
	if !errors.Is(err, ErrGraphHasCycle) {
		t.Fatalf("err = %v, want ErrGraphHasCycle", err)
	}
	var ce *CycleError
	if !errors.As(err, &ce) || !slices.Equal(ce.Members, []string{"a", "b"}) {
		t.Errorf("CycleError = %v", err)
	}
	if err.Error() != "graph contains a cycle: a -> b -> a" {
		t.Errorf("Error() = %q", err.Error())
	}
	if g.Validate() == nil {
		t.Error("Validate should report the cycle")
	}
}

func TestFindCycleLongChain(t *testing.T) {
	g := New(nil)
	const n = 100000
	for i := range n {
		_ = g.AddNode(Node{ID: fmt.Sprintf("p%06d", i)})
	}
	for i := range n - 1 {
		_ = g.AddEdge(Edge{From: fmt.Sprintf("p%06d", i), To: fmt.Sprintf("p%06d", i+1)})
	}
	if c := g.FindCycle(); c != nil {
		t.Fatalf("FindCycle on chain = %v", c)
	}
	_ = g.AddEdge(Edge{From: fmt.Sprintf("p%06d", n-1), To: "p000000"})
	if c := g.FindCycle(); len(c) != n {
		t.Errorf("len(cycle) = %d, want %d", len(c), n)
	}
}

func TestLevels(t *testing.T) {
	g := build(t, []string{"app", "lib", "core", "util"}, [][2]string{
		{"app", "lib"}, {"lib", "core"}, {"app", "util"},
	})
	levels, err := g.Levels()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{{"core", "util"}, {"lib"}, {"app"}}
	if len(levels) != len(want) {
		t.Fatalf("Levels = %v, want %v", levels, want)
	}
	for i := range want {
		if !slices.Equal(levels[i], want[i]) {
			t.Errorf("level %d = %v, want %v", i, levels[i], want[i])
		}
	}
}
