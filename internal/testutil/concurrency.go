package testutil

import (
	"sync"
	"time"

	"github.com/vk/burstgraph/internal/graph"
)

// Probe records when updates run on each vertex so tests can check which
// updates overlapped in time.
type Probe struct {
	mu      sync.Mutex
	active  map[graph.VertexID]int
	records map[graph.VertexID][]ExecutionRecord
	// conflicts counts Enter calls that found an adjacent vertex active.
	conflicts int
	adjacent  func(v graph.VertexID) []graph.VertexID
}

// NewProbe creates a probe that treats adjacent(v) as the vertices that must
// not run together with v.
func NewProbe(adjacent func(v graph.VertexID) []graph.VertexID) *Probe {
	return &Probe{
		active:   make(map[graph.VertexID]int),
		records:  make(map[graph.VertexID][]ExecutionRecord),
		adjacent: adjacent,
	}
}

// Enter marks v as running and returns the start time to pass to Exit.
func (p *Probe) Enter(v graph.VertexID) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active[v] > 0 {
		p.conflicts++
	}
	for _, u := range p.adjacent(v) {
		if p.active[u] > 0 {
			p.conflicts++
		}
	}
	p.active[v]++
	return time.Now()
}

// Exit marks v as finished.
func (p *Probe) Exit(v graph.VertexID, start time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active[v]--
	p.records[v] = append(p.records[v], ExecutionRecord{Start: start, End: time.Now()})
}

// Conflicts returns how often an update started while v itself or one of its
// adjacent vertices was running.
func (p *Probe) Conflicts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conflicts
}

// Records returns the executions recorded for v.
func (p *Probe) Records(v graph.VertexID) []ExecutionRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ExecutionRecord(nil), p.records[v]...)
}
