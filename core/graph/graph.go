// Package graph - Generic directed multigraph
// Nodes and edges keep insertion order; every traversal is deterministic.
// Used by the BOM engine, the rule scheduler and the transfer resolver.
package graph

import (
	"fmt"
	"strings"

	"landed-cost/internal/errors"
)

// DefaultMaxDepth bounds path enumeration on small entity networks
const DefaultMaxDepth = 10

// Edge is a directed edge with algorithm-specific metadata
type Edge[N comparable, M any] struct {
	From N
	To   N
	Meta M
}

// Graph is a directed multigraph. The zero value is not usable; use New.
type Graph[N comparable, M any] struct {
	order []N
	index map[N]int
	adj   map[N][]Edge[N, M]
	edges int
}

// New creates an empty graph
func New[N comparable, M any]() *Graph[N, M] {
	return &Graph[N, M]{
		index: make(map[N]int),
		adj:   make(map[N][]Edge[N, M]),
	}
}

// AddNode inserts a node if absent
func (g *Graph[N, M]) AddNode(n N) {
	if _, ok := g.index[n]; ok {
		return
	}
	g.index[n] = len(g.order)
	g.order = append(g.order, n)
}

// AddEdge adds an edge, inserting both endpoints. Parallel edges are kept.
func (g *Graph[N, M]) AddEdge(from, to N, meta M) {
	g.AddNode(from)
	g.AddNode(to)
	g.adj[from] = append(g.adj[from], Edge[N, M]{From: from, To: to, Meta: meta})
	g.edges++
}

// Neighbors returns the outgoing edges of n in insertion order
func (g *Graph[N, M]) Neighbors(n N) []Edge[N, M] {
	return g.adj[n]
}

// Nodes returns all nodes in insertion order
func (g *Graph[N, M]) Nodes() []N {
	out := make([]N, len(g.order))
	copy(out, g.order)
	return out
}

// HasNode reports whether n is in the graph
func (g *Graph[N, M]) HasNode(n N) bool {
	_, ok := g.index[n]
	return ok
}

// Len returns the number of nodes
func (g *Graph[N, M]) Len() int {
	return len(g.order)
}

// EdgeCount returns the number of edges
func (g *Graph[N, M]) EdgeCount() int {
	return g.edges
}

type color uint8

const (
	white color = iota
	gray
	black
)

// DetectCycles runs a three-colour DFS from every unvisited node. Each
// back-edge to a gray node yields the path from the node's first
// occurrence on the stack through the closing node.
func (g *Graph[N, M]) DetectCycles() [][]N {
	colors := make(map[N]color, len(g.order))
	var cycles [][]N
	var path []N

	var visit func(n N)
	visit = func(n N) {
		colors[n] = gray
		path = append(path, n)
		for _, e := range g.adj[n] {
			switch colors[e.To] {
			case white:
				visit(e.To)
			case gray:
				for i, p := range path {
					if p == e.To {
						cycle := make([]N, 0, len(path)-i+1)
						cycle = append(cycle, path[i:]...)
						cycle = append(cycle, e.To)
						cycles = append(cycles, cycle)
						break
					}
				}
			}
		}
		path = path[:len(path)-1]
		colors[n] = black
	}

	for _, n := range g.order {
		if colors[n] == white {
			visit(n)
		}
	}
	return cycles
}

// TopologicalSort orders nodes so every edge points forward (Kahn).
// Ties resolve in node insertion order. A cycle is a configuration error.
func (g *Graph[N, M]) TopologicalSort() ([]N, error) {
	inDegree := make(map[N]int, len(g.order))
	for _, n := range g.order {
		for _, e := range g.adj[n] {
			inDegree[e.To]++
		}
	}

	queue := make([]N, 0, len(g.order))
	for _, n := range g.order {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	result := make([]N, 0, len(g.order))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		result = append(result, n)
		for _, e := range g.adj[n] {
			inDegree[e.To]--
			if inDegree[e.To] == 0 {
				queue = append(queue, e.To)
			}
		}
	}

	if len(result) < len(g.order) {
		cerr := &CycleError[N]{Cycles: g.DetectCycles()}
		return nil, errors.Config("graph is not acyclic", cerr).
			WithContext("sorted", len(result)).
			WithContext("nodes", len(g.order))
	}
	return result, nil
}

// Path is a walk from Start following Edges
type Path[N comparable, M any] struct {
	Start N
	Edges []Edge[N, M]
}

// Nodes returns the visited nodes including Start
func (p Path[N, M]) Nodes() []N {
	out := make([]N, 0, len(p.Edges)+1)
	out = append(out, p.Start)
	for _, e := range p.Edges {
		out = append(out, e.To)
	}
	return out
}

// Len returns the number of hops
func (p Path[N, M]) Len() int {
	return len(p.Edges)
}

// FindAllPaths enumerates simple paths from start to end of at most
// maxDepth hops, in edge insertion order. The search is exponential in
// the worst case; maxDepth is its only bound.
func (g *Graph[N, M]) FindAllPaths(start, end N, maxDepth int) []Path[N, M] {
	if !g.HasNode(start) || !g.HasNode(end) {
		return nil
	}

	var paths []Path[N, M]
	visited := map[N]bool{start: true}
	var trail []Edge[N, M]

	var dfs func(n N)
	dfs = func(n N) {
		if n == end {
			edges := make([]Edge[N, M], len(trail))
			copy(edges, trail)
			paths = append(paths, Path[N, M]{Start: start, Edges: edges})
			return
		}
		if len(trail) >= maxDepth {
			return
		}
		for _, e := range g.adj[n] {
			if visited[e.To] {
				continue
			}
			visited[e.To] = true
			trail = append(trail, e)
			dfs(e.To)
			trail = trail[:len(trail)-1]
			visited[e.To] = false
		}
	}

	dfs(start)
	return paths
}

// Reverse returns a reversed copy of s
func Reverse[N any](s []N) []N {
	out := make([]N, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

// CycleError lists the cycles found in a graph
type CycleError[N comparable] struct {
	Cycles [][]N
}

func (e *CycleError[N]) Error() string {
	parts := make([]string, 0, len(e.Cycles))
	for _, c := range e.Cycles {
		parts = append(parts, FormatCycle(c))
	}
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(parts, "; "))
}

// FormatCycle renders a cycle as "A -> B -> A"
func FormatCycle[N comparable](cycle []N) string {
	parts := make([]string, len(cycle))
	for i, n := range cycle {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, " -> ")
}
