package apps

import (
	"fmt"
	"math"

	"github.com/vk/burstgraph/internal/graph"
	"github.com/vk/burstgraph/internal/monitor"
	"github.com/vk/burstgraph/internal/scheduler"
	"github.com/vk/burstgraph/internal/scope"
	"github.com/vk/burstgraph/internal/shared"
)

// PageRank computes vertex ranks with dynamic scheduling: a vertex whose
// rank moved by more than Tolerance reschedules its out-neighbors, with the
// change as priority.
type PageRank struct {
	Damping   float64
	Tolerance float64

	total  *shared.Value[float64]
	colors int
}

// NewPageRank returns PageRank with a damping of 0.85 and a tolerance of 1e-3.
func NewPageRank() *PageRank {
	return &PageRank{
		Damping:   0.85,
		Tolerance: 1e-3,
		total:     shared.New("total_rank", 0.0),
	}
}

func (p *PageRank) Name() string { return "pagerank" }

func (p *PageRank) Description() string {
	return "dynamic PageRank over a synthetic graph"
}

func (p *PageRank) MinScope() scope.Consistency { return scope.Edge }

// Build links every vertex i to i+1 and 3i+1 (mod n) and weighs out-edges
// uniformly. The graph is colored before it is returned.
func (p *PageRank) Build(n int) (*Graph, error) {
	if n < 1 {
		return nil, fmt.Errorf("pagerank needs at least one vertex, got %d", n)
	}
	g := graph.NewMemory[Vertex, Edge](n)
	for i := 0; i < n; i++ {
		g.AddVertex(Vertex{Value: 1 / float64(n)})
	}
	for i := 0; i < n; i++ {
		src := graph.VertexID(i)
		for _, dst := range []graph.VertexID{graph.VertexID((i + 1) % n), graph.VertexID((3*i + 1) % n)} {
			if dst == src {
				continue
			}
			if _, ok := g.Find(src, dst); ok {
				continue
			}
			if _, err := g.AddEdge(src, dst, Edge{}); err != nil {
				return nil, err
			}
		}
	}
	g.Finalize()
	for v := 0; v < n; v++ {
		out := g.OutEdges(graph.VertexID(v))
		for _, e := range out {
			g.EdgeData(e).Weight = 1 / float64(len(out))
		}
	}
	p.colors = g.ComputeColoring()
	return g, nil
}

func (p *PageRank) Setup(e *Engine, mon monitor.Monitor) error {
	if mon == nil {
		mon = monitor.Nop{}
	}
	mon.SetVertexValueScale(0, 1)
	n := uint64(max(e.Workers(), 1))
	if err := e.SetSync(sumSync(p.total, n*1024)); err != nil {
		return err
	}
	e.Tasks().AddTaskToAll(p.update(mon), 1)
	return nil
}

func (p *PageRank) update(mon monitor.Monitor) scheduler.UpdateFunc[Vertex, Edge] {
	var fn scheduler.UpdateFunc[Vertex, Edge]
	fn = func(s *scope.Scope[Vertex, Edge], cb scheduler.Callback[Vertex, Edge]) {
		var sum float64
		for _, e := range s.InEdges() {
			sum += s.EdgeData(e).Weight * s.NeighborData(s.Source(e)).Value
		}
		v := s.VertexData()
		next := (1-p.Damping)/float64(s.NumVertices()) + p.Damping*sum
		delta := math.Abs(next - v.Value)
		v.Value = next
		mon.SetVertexValue(s.Vertex(), next)

		if delta <= p.Tolerance {
			return
		}
		for _, e := range s.OutEdges() {
			cb.AddTask(s.Target(e), fn, delta)
		}
	}
	return fn
}

// TotalRank returns the last published sum of all ranks.
func (p *PageRank) TotalRank() float64 { return p.total.Get() }

func (p *PageRank) Summary(g *Graph) []any {
	best, bestRank := graph.InvalidVertex, -1.0
	for v := 0; v < g.NumVertices(); v++ {
		if r := g.VertexData(graph.VertexID(v)).Value; r > bestRank {
			best, bestRank = graph.VertexID(v), r
		}
	}
	return []any{"total_rank", p.TotalRank(), "top_vertex", best, "top_rank", bestRank, "colors", p.colors}
}
