package graph

import (
	stderrors "errors"
	"reflect"
	"testing"

	"landed-cost/internal/errors"
)

func buildDiamond() *Graph[string, int] {
	g := New[string, int]()
	g.AddEdge("A", "B", 1)
	g.AddEdge("A", "C", 2)
	g.AddEdge("B", "D", 3)
	g.AddEdge("C", "D", 4)
	return g
}

func TestTopologicalSortRespectsEdges(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Graph[string, int]
	}{
		{"diamond", buildDiamond},
		{"chain", func() *Graph[string, int] {
			g := New[string, int]()
			g.AddEdge("C", "B", 0)
			g.AddEdge("B", "A", 0)
			return g
		}},
		{"isolated nodes", func() *Graph[string, int] {
			g := New[string, int]()
			g.AddNode("X")
			g.AddNode("Y")
			g.AddEdge("Y", "X", 0)
			g.AddNode("Z")
			return g
		}},
		{"multigraph", func() *Graph[string, int] {
			g := New[string, int]()
			g.AddEdge("A", "B", 1)
			g.AddEdge("A", "B", 2)
			g.AddEdge("B", "C", 3)
			return g
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := tt.build()
			order, err := g.TopologicalSort()
			if err != nil {
				t.Fatalf("TopologicalSort failed: %v", err)
			}
			if len(order) != g.Len() {
				t.Fatalf("order has %d nodes, graph has %d", len(order), g.Len())
			}
			pos := make(map[string]int)
			for i, n := range order {
				pos[n] = i
			}
			for _, n := range g.Nodes() {
				for _, e := range g.Neighbors(n) {
					if pos[e.From] >= pos[e.To] {
						t.Errorf("edge %s->%s violated in %v", e.From, e.To, order)
					}
				}
			}
		})
	}
}

func TestTopologicalSortDeterministic(t *testing.T) {
	order, err := buildDiamond().TopologicalSort()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"A", "B", "C", "D"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestCycleDetectedAndSortFails(t *testing.T) {
	g := New[string, int]()
	g.AddEdge("A", "B", 0)
	g.AddEdge("B", "C", 0)
	g.AddEdge("C", "A", 0)
	g.AddEdge("C", "D", 0)

	cycles := g.DetectCycles()
	if len(cycles) == 0 {
		t.Fatal("expected a cycle")
	}
	want := []string{"A", "B", "C", "A"}
	if !reflect.DeepEqual(cycles[0], want) {
		t.Errorf("cycle = %v, want %v", cycles[0], want)
	}

	_, err := g.TopologicalSort()
	if err == nil {
		t.Fatal("expected TopologicalSort to fail")
	}
	if !errors.IsType(err, errors.TypeConfig) {
		t.Errorf("expected config error, got %v", err)
	}
	var cerr *CycleError[string]
	if !stderrors.As(err, &cerr) || len(cerr.Cycles) == 0 {
		t.Errorf("expected wrapped CycleError, got %v", err)
	}
}

func TestDetectCyclesSelfLoop(t *testing.T) {
	g := New[string, int]()
	g.AddEdge("A", "A", 0)
	cycles := g.DetectCycles()
	if len(cycles) != 1 || !reflect.DeepEqual(cycles[0], []string{"A", "A"}) {
		t.Errorf("cycles = %v", cycles)
	}
}

func TestDetectCyclesAcyclic(t *testing.T) {
	if cycles := buildDiamond().DetectCycles(); len(cycles) != 0 {
		t.Errorf("unexpected cycles: %v", cycles)
	}
}

func TestFindAllPaths(t *testing.T) {
	g := buildDiamond()
	g.AddEdge("A", "D", 5)

	paths := g.FindAllPaths("A", "D", DefaultMaxDepth)
	if len(paths) != 3 {
		t.Fatalf("got %d paths, want 3", len(paths))
	}
	got := make([][]string, len(paths))
	for i, p := range paths {
		got[i] = p.Nodes()
	}
	want := [][]string{{"A", "B", "D"}, {"A", "C", "D"}, {"A", "D"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("paths = %v, want %v", got, want)
	}
	if paths[0].Edges[1].Meta != 3 {
		t.Errorf("incoming metadata = %d, want 3", paths[0].Edges[1].Meta)
	}
}

func TestFindAllPathsDepthBound(t *testing.T) {
	g := buildDiamond()
	g.AddEdge("A", "D", 5)

	paths := g.FindAllPaths("A", "D", 1)
	if len(paths) != 1 || paths[0].Len() != 1 {
		t.Errorf("expected only the direct path, got %d paths", len(paths))
	}
}

func TestFindAllPathsMultiEdgesAndCycles(t *testing.T) {
	g := New[string, string]()
	g.AddEdge("A", "B", "first")
	g.AddEdge("A", "B", "second")
	g.AddEdge("B", "A", "back")

	paths := g.FindAllPaths("A", "B", DefaultMaxDepth)
	if len(paths) != 2 {
		t.Fatalf("got %d paths, want 2", len(paths))
	}
	if paths[0].Edges[0].Meta != "first" || paths[1].Edges[0].Meta != "second" {
		t.Errorf("unexpected edge order: %+v", paths)
	}
	if got := g.FindAllPaths("A", "missing", DefaultMaxDepth); got != nil {
		t.Errorf("expected nil for unknown node, got %v", got)
	}
}

func TestReverse(t *testing.T) {
	if got := Reverse([]int{1, 2, 3}); !reflect.DeepEqual(got, []int{3, 2, 1}) {
		t.Errorf("Reverse = %v", got)
	}
}
