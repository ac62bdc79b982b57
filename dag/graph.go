package dag

import (
	"fmt"

	"github.com/kbukum/pipekit/errors"
)

// Levels uses Kahn's algorithm to group nodes by dependency level: level 0
// has no dependencies, level k depends only on earlier levels. Order within
// a level follows nodes. Dependencies on nodes outside nodes fail with
// NOT_FOUND; a cycle fails with CYCLE_DETECTED naming the nodes left over.
func Levels(nodes []Node, deps map[Node][]Node) ([][]Node, error) {
	known := NewNodeSet(nodes...)
	inDegree := make(map[Node]int, len(nodes))
	dependents := make(map[Node][]Node)

	for _, n := range nodes {
		for _, d := range deps[n] {
			if !known.Has(d) {
				return nil, errors.NotFound("node", d.key).
					WithDetail("dependent", n.key)
			}
			inDegree[n]++
			dependents[d] = append(dependents[d], n)
		}
	}

	var queue []Node
	for _, n := range nodes {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	var levels [][]Node
	visited := NewNodeSet()
	for len(queue) > 0 {
		levels = append(levels, queue)
		var next []Node
		for _, n := range queue {
			visited.Add(n)
			for _, dep := range dependents[n] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		queue = orderLike(nodes, next)
	}

	if len(visited) != len(nodes) {
		var stuck []string
		for _, n := range nodes {
			if !visited.Has(n) {
				stuck = append(stuck, n.key)
			}
		}
		return nil, errors.CycleDetected(stuck).
			WithDetail("processed", fmt.Sprintf("%d of %d", len(visited), len(nodes)))
	}
	return levels, nil
}

// orderLike returns subset sorted by position in order.
func orderLike(order, subset []Node) []Node {
	if len(subset) < 2 {
		return subset
	}
	in := NewNodeSet(subset...)
	out := make([]Node, 0, len(subset))
	for _, n := range order {
		if in.Has(n) {
			out = append(out, n)
		}
	}
	return out
}
