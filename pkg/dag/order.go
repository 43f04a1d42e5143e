package dag

import (
	"fmt"
	"slices"
	"strings"
)

// CycleError reports the members of a directed cycle in path order: each
// member depends on the next, and the last depends on the first.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	if len(e.Members) == 0 {
		return ErrGraphHasCycle.Error()
	}
	path := append(slices.Clone(e.Members), e.Members[0])
	return fmt.Sprintf("%v: %s", ErrGraphHasCycle, strings.Join(path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrGraphHasCycle }

// FindCycle returns the members of the first directed cycle found by a
// depth-first search, or nil if the graph is acyclic.
//
// The search visits roots in ID order and children in ID order, marking
// nodes white (unvisited), gray (on the current path) and black (finished).
// An edge into a gray node closes a cycle; the members are the gray path
// from that node to the current one. The traversal keeps an explicit stack,
// so long dependency chains cannot exhaust the goroutine stack.
func (d *DAG) FindCycle() []string {
	const (
		white = iota
		gray
		black
	)

	type frame struct {
		id   string
		next int
	}

	color := make(map[string]int, len(d.nodes))
	for _, start := range d.Nodes() {
		if color[start.ID] != white {
			continue
		}

		stack := []frame{{id: start.ID}}
		color[start.ID] = gray
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			children := d.outgoing[top.id]
			if top.next >= len(children) {
				color[top.id] = black
				stack = stack[:len(stack)-1]
				continue
			}
			child := children[top.next]
			top.next++

			switch color[child] {
			case white:
				color[child] = gray
				stack = append(stack, frame{id: child})
			case gray:
				var members []string
				for i := len(stack) - 1; i >= 0; i-- {
					members = append(members, stack[i].id)
					if stack[i].id == child {
						break
					}
				}
				slices.Reverse(members)
				return members
			}
		}
	}
	return nil
}

// TopologicalOrder returns node IDs so that every node appears after all of
// its dependencies. Among nodes whose dependencies are all placed, the
// lexicographically smallest ID goes first, so the order is reproducible.
// Returns a [*CycleError] if the graph has a cycle.
func (d *DAG) TopologicalOrder() ([]string, error) {
	remaining := make(map[string]int, len(d.nodes))
	var ready []string
	for id := range d.nodes {
		remaining[id] = len(d.outgoing[id])
		if remaining[id] == 0 {
			ready = append(ready, id)
		}
	}
	slices.Sort(ready)

	order := make([]string, 0, len(d.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, parent := range d.incoming[id] {
			remaining[parent]--
			if remaining[parent] == 0 {
				ready = insertSorted(ready, parent)
			}
		}
	}

	if len(order) != len(d.nodes) {
		return nil, &CycleError{Members: d.FindCycle()}
	}
	return order, nil
}

// Levels groups node IDs by depth from the leaves: level 0 holds nodes
// without dependencies, level n nodes whose deepest dependency is at level
// n-1. Nodes inside a level are sorted. Returns a [*CycleError] if the graph
// has a cycle.
func (d *DAG) Levels() ([][]string, error) {
	order, err := d.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	depth := make(map[string]int, len(order))
	var levels [][]string
	for _, id := range order {
		lvl := 0
		for _, child := range d.outgoing[id] {
			lvl = max(lvl, depth[child]+1)
		}
		depth[id] = lvl
		for len(levels) <= lvl {
			levels = append(levels, nil)
		}
		levels[lvl] = insertSorted(levels[lvl], id)
	}
	return levels, nil
}
