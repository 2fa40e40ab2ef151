// Package graph defines the data graph the engine computes over and provides
// Memory, an in-memory index-arena implementation of it.
//
// # Why Graph Package Exists
//
// The engine, the scope manager and the schedulers never hold pointers into
// user data structures. They address vertices and edges by dense integer ids
// and ask the Graph for the data behind an id only while the corresponding
// scope is held. This keeps the locking model simple: a lock on vertex id v
// guards exactly the value returned by VertexData(v).
//
// # Layout
//
// Memory stores vertex data, edge data and adjacency lists in flat slices
// indexed by id:
//   - vertices[v]   holds the user value of vertex v
//   - edges[e]      holds the user value of edge e
//   - sources[e], targets[e] record the direction of edge e
//   - inEdges[v], outEdges[v] list edge ids sorted by neighbor id
//
// # Lifecycle
//
//  1. **Built** by the application with AddVertex and AddEdge from a single goroutine
//  2. **Finalized** by the engine at the start of every run (sorts adjacency)
//  3. **Read and mutated** through scopes while a run is in progress
//  4. **Reused** across runs; the structure must not change while a run is active
package graph
