package apps

import (
	"fmt"

	"github.com/vk/burstgraph/internal/graph"
	"github.com/vk/burstgraph/internal/monitor"
	"github.com/vk/burstgraph/internal/scheduler"
	"github.com/vk/burstgraph/internal/scope"
	"github.com/vk/burstgraph/internal/shared"
)

// Chain walks a path graph from its head: each vertex becomes one more than
// its predecessor and schedules its successor. Vertex i ends up holding i+1.
type Chain struct {
	sum *shared.Value[float64]
}

func NewChain() *Chain {
	return &Chain{sum: shared.New("chain_sum", 0.0)}
}

func (c *Chain) Name() string                { return "chain" }
func (c *Chain) Description() string         { return "accumulate values along a path graph" }
func (c *Chain) MinScope() scope.Consistency { return scope.Edge }

func (c *Chain) Build(n int) (*Graph, error) {
	if n < 1 {
		return nil, fmt.Errorf("chain needs at least one vertex, got %d", n)
	}
	g := graph.NewMemory[Vertex, Edge](n)
	for i := 0; i < n; i++ {
		g.AddVertex(Vertex{})
	}
	for i := 1; i < n; i++ {
		if _, err := g.AddEdge(graph.VertexID(i-1), graph.VertexID(i), Edge{Weight: 1}); err != nil {
			return nil, err
		}
	}
	g.Finalize()
	return g, nil
}

func (c *Chain) Setup(e *Engine, mon monitor.Monitor) error {
	if mon == nil {
		mon = monitor.Nop{}
	}
	if err := e.SetSync(sumSync(c.sum, 0)); err != nil {
		return err
	}
	e.Tasks().AddTask(0, c.update(mon), 1)
	return nil
}

func (c *Chain) update(mon monitor.Monitor) scheduler.UpdateFunc[Vertex, Edge] {
	var fn scheduler.UpdateFunc[Vertex, Edge]
	fn = func(s *scope.Scope[Vertex, Edge], cb scheduler.Callback[Vertex, Edge]) {
		next := 1.0
		for _, e := range s.InEdges() {
			next += s.EdgeData(e).Weight * s.NeighborData(s.Source(e)).Value
		}
		s.VertexData().Value = next
		mon.SetVertexValue(s.Vertex(), next)
		for _, e := range s.OutEdges() {
			cb.AddTask(s.Target(e), fn, 1)
		}
	}
	return fn
}

// Sum returns the last published sum of all vertex values.
func (c *Chain) Sum() float64 { return c.sum.Get() }

func (c *Chain) Summary(g *Graph) []any {
	n := float64(g.NumVertices())
	return []any{"sum", c.Sum(), "expected", n * (n + 1) / 2}
}
