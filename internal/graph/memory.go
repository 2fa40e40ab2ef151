package graph

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrVertexNotFound is returned when an edge references an unknown vertex.
	ErrVertexNotFound = errors.New("vertex not found")
	// ErrSelfEdge is returned when an edge would connect a vertex to itself.
	ErrSelfEdge = errors.New("self-referential edge not allowed")
	// ErrDuplicateEdge is returned when the same directed edge is added twice.
	ErrDuplicateEdge = errors.New("duplicate edge")
)

// Memory is an in-memory Graph backed by flat slices indexed by vertex and
// edge id. It is built from a single goroutine and then shared read-only
// (structurally) with the engine.
type Memory[V, E any] struct {
	vertices []V
	colors   []uint32
	edges    []E
	sources  []VertexID
	targets  []VertexID
	inEdges  [][]EdgeID
	outEdges [][]EdgeID
	sorted   bool
}

// NewMemory creates an empty graph with room for the given number of vertices.
func NewMemory[V, E any](vertexHint int) *Memory[V, E] {
	return &Memory[V, E]{
		vertices: make([]V, 0, vertexHint),
		colors:   make([]uint32, 0, vertexHint),
		inEdges:  make([][]EdgeID, 0, vertexHint),
		outEdges: make([][]EdgeID, 0, vertexHint),
	}
}

// AddVertex appends a vertex and returns its id.
func (g *Memory[V, E]) AddVertex(data V) VertexID {
	id := VertexID(len(g.vertices))
	g.vertices = append(g.vertices, data)
	g.colors = append(g.colors, 0)
	g.inEdges = append(g.inEdges, nil)
	g.outEdges = append(g.outEdges, nil)
	return id
}

// AddEdge appends the directed edge source->target and returns its id.
func (g *Memory[V, E]) AddEdge(source, target VertexID, data E) (EdgeID, error) {
	if !g.valid(source) {
		return InvalidEdge, fmt.Errorf("edge source %d: %w", source, ErrVertexNotFound)
	}
	if !g.valid(target) {
		return InvalidEdge, fmt.Errorf("edge target %d: %w", target, ErrVertexNotFound)
	}
	if source == target {
		return InvalidEdge, fmt.Errorf("edge %d->%d: %w", source, target, ErrSelfEdge)
	}
	if _, ok := g.Find(source, target); ok {
		return InvalidEdge, fmt.Errorf("edge %d->%d: %w", source, target, ErrDuplicateEdge)
	}

	id := EdgeID(len(g.edges))
	g.edges = append(g.edges, data)
	g.sources = append(g.sources, source)
	g.targets = append(g.targets, target)
	g.outEdges[source] = append(g.outEdges[source], id)
	g.inEdges[target] = append(g.inEdges[target], id)
	g.sorted = false
	return id, nil
}

func (g *Memory[V, E]) valid(v VertexID) bool {
	return int(v) < len(g.vertices)
}

func (g *Memory[V, E]) NumVertices() int { return len(g.vertices) }
func (g *Memory[V, E]) NumEdges() int    { return len(g.edges) }

// Finalize sorts every adjacency list by neighbor id.
func (g *Memory[V, E]) Finalize() {
	if g.sorted {
		return
	}
	for v := range g.vertices {
		slices.SortFunc(g.inEdges[v], func(a, b EdgeID) int {
			return int(g.sources[a]) - int(g.sources[b])
		})
		slices.SortFunc(g.outEdges[v], func(a, b EdgeID) int {
			return int(g.targets[a]) - int(g.targets[b])
		})
	}
	g.sorted = true
}

func (g *Memory[V, E]) VertexData(v VertexID) *V { return &g.vertices[v] }
func (g *Memory[V, E]) EdgeData(e EdgeID) *E     { return &g.edges[e] }
func (g *Memory[V, E]) InEdges(v VertexID) []EdgeID {
	return g.inEdges[v]
}
func (g *Memory[V, E]) OutEdges(v VertexID) []EdgeID {
	return g.outEdges[v]
}
func (g *Memory[V, E]) Source(e EdgeID) VertexID { return g.sources[e] }
func (g *Memory[V, E]) Target(e EdgeID) VertexID { return g.targets[e] }
func (g *Memory[V, E]) Color(v VertexID) uint32  { return g.colors[v] }

// SetColor assigns a color to v.
func (g *Memory[V, E]) SetColor(v VertexID, c uint32) { g.colors[v] = c }

// Find returns the id of the edge source->target.
func (g *Memory[V, E]) Find(source, target VertexID) (EdgeID, bool) {
	if !g.valid(source) || !g.valid(target) {
		return InvalidEdge, false
	}
	// Scan the shorter of the two lists.
	if len(g.outEdges[source]) <= len(g.inEdges[target]) {
		for _, e := range g.outEdges[source] {
			if g.targets[e] == target {
				return e, true
			}
		}
		return InvalidEdge, false
	}
	for _, e := range g.inEdges[target] {
		if g.sources[e] == source {
			return e, true
		}
	}
	return InvalidEdge, false
}

// ComputeColoring assigns every vertex the smallest color not used by any of
// its neighbors, visiting vertices in id order, and returns the number of
// colors used. Two adjacent vertices never share a color.
func (g *Memory[V, E]) ComputeColoring() int {
	numColors := 0
	var used []bool
	for v := range g.vertices {
		used = used[:0]
		mark := func(u VertexID) {
			if int(u) >= v {
				return
			}
			c := int(g.colors[u])
			for len(used) <= c {
				used = append(used, false)
			}
			used[c] = true
		}
		for _, e := range g.inEdges[v] {
			mark(g.sources[e])
		}
		for _, e := range g.outEdges[v] {
			mark(g.targets[e])
		}
		c := 0
		for c < len(used) && used[c] {
			c++
		}
		g.colors[v] = uint32(c)
		if c+1 > numColors {
			numColors = c + 1
		}
	}
	return numColors
}

// Neighbors returns the deduplicated, ascending set of vertices adjacent to
// v in either direction.
func Neighbors[V, E any](g Graph[V, E], v VertexID) []VertexID {
	in, out := g.InEdges(v), g.OutEdges(v)
	ids := make([]VertexID, 0, len(in)+len(out))
	for _, e := range in {
		ids = append(ids, g.Source(e))
	}
	for _, e := range out {
		ids = append(ids, g.Target(e))
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
