package graph

import "math"

// VertexID is the dense index of a vertex in [0, NumVertices).
type VertexID uint32

// EdgeID is the dense index of an edge in [0, NumEdges).
type EdgeID uint32

// InvalidVertex marks an empty or deleted task slot and an open upper bound
// in vertex ranges.
const InvalidVertex VertexID = math.MaxUint32

// InvalidEdge is returned by lookups that found no edge.
const InvalidEdge EdgeID = math.MaxUint32

// Graph is the collaborator interface the engine computes over. V is the
// per-vertex data type and E the per-edge data type.
//
// # Usage Patterns
//
// **Scope manager** uses Graph to:
//   - Enumerate neighbors when building lock sets: InEdges(), OutEdges(), Source(), Target()
//   - Hand out data pointers to update functions: VertexData(), EdgeData()
//
// **Engine** uses Graph to:
//   - Prepare the structure before a run: Finalize()
//   - Split vertex ranges across syncers and report metrics: NumVertices(), NumEdges()
//
// **Schedulers** use Graph to:
//   - Size per-vertex task tables: NumVertices()
//
// # Thread-Safety
//
// Structural methods (NumVertices, InEdges, Source, ...) must be safe to call
// concurrently once Finalize has returned. The data returned by VertexData
// and EdgeData is NOT synchronized by the graph; callers must hold a scope
// that covers it.
type Graph[V, E any] interface {
	// NumVertices returns the number of vertices.
	NumVertices() int

	// NumEdges returns the number of edges.
	NumEdges() int

	// Finalize prepares the structure for a run. It must be idempotent.
	Finalize()

	// VertexData returns a pointer to the data of vertex v.
	VertexData(v VertexID) *V

	// EdgeData returns a pointer to the data of edge e.
	EdgeData(e EdgeID) *E

	// InEdges returns the ids of the edges whose target is v, sorted by source.
	//
	// The returned slice is owned by the graph and must not be modified.
	InEdges(v VertexID) []EdgeID

	// OutEdges returns the ids of the edges whose source is v, sorted by target.
	//
	// The returned slice is owned by the graph and must not be modified.
	OutEdges(v VertexID) []EdgeID

	// Source returns the source vertex of edge e.
	Source(e EdgeID) VertexID

	// Target returns the target vertex of edge e.
	Target(e EdgeID) VertexID

	// Find returns the id of the edge source->target, if one exists.
	Find(source, target VertexID) (EdgeID, bool)

	// Color returns the color assigned to v, or 0 if the graph is uncolored.
	Color(v VertexID) uint32
}
