// Package scope grants update functions exclusive or shared access to a
// vertex and its neighborhood.
//
// The Manager keeps one reader/writer lock per vertex. Every lock set is
// sorted by vertex id and acquired in ascending order, and range locks follow
// the same order, so no two holders can wait on each other in a cycle.
package scope

import (
	"fmt"

	"github.com/vk/burstgraph/internal/graph"
)

type lockToken struct {
	v     graph.VertexID
	write bool
}

// Scope is the lease an update function receives. It is valid only until the
// Manager releases it.
type Scope[V, E any] struct {
	g           graph.Graph[V, E]
	vertex      graph.VertexID
	consistency Consistency
	worker      int
	locks       []lockToken
	commits     []func()
}

// Vertex returns the center vertex.
func (s *Scope[V, E]) Vertex() graph.VertexID { return s.vertex }

// Consistency returns the level the scope was granted at.
func (s *Scope[V, E]) Consistency() Consistency { return s.consistency }

// Worker returns the id of the worker or syncer that holds the scope.
func (s *Scope[V, E]) Worker() int { return s.worker }

// VertexData returns the center vertex data.
func (s *Scope[V, E]) VertexData() *V { return s.g.VertexData(s.vertex) }

// NeighborData returns the data of v, which must be the center or one of
// its neighbors. Under Vertex consistency only the center is accessible; under
// Null consistency nothing is synchronized and the caller owns the race.
func (s *Scope[V, E]) NeighborData(v graph.VertexID) *V {
	if v != s.vertex && s.consistency == Vertex {
		panic(fmt.Sprintf("scope: vertex %d is outside the vertex-consistency scope of %d", v, s.vertex))
	}
	return s.g.VertexData(v)
}

// EdgeData returns the data of edge e.
func (s *Scope[V, E]) EdgeData(e graph.EdgeID) *E { return s.g.EdgeData(e) }

// InEdges returns the edges pointing at the center.
func (s *Scope[V, E]) InEdges() []graph.EdgeID { return s.g.InEdges(s.vertex) }

// OutEdges returns the edges leaving the center.
func (s *Scope[V, E]) OutEdges() []graph.EdgeID { return s.g.OutEdges(s.vertex) }

func (s *Scope[V, E]) Source(e graph.EdgeID) graph.VertexID { return s.g.Source(e) }
func (s *Scope[V, E]) Target(e graph.EdgeID) graph.VertexID { return s.g.Target(e) }

// NumVertices returns the size of the underlying graph.
func (s *Scope[V, E]) NumVertices() int { return s.g.NumVertices() }

// OnCommit registers fn to run when the scope is released normally, while
// its locks are still held.
func (s *Scope[V, E]) OnCommit(fn func()) {
	s.commits = append(s.commits, fn)
}
