// Package monitor defines the observer hooks the engine and schedulers call
// while a run is in progress, plus a few ready-made observers.
package monitor

import "github.com/vk/burstgraph/internal/graph"

// Monitor receives engine and scheduler events. Hooks are called from worker
// goroutines and must be safe for concurrent use. They run on the hot path,
// so implementations should return quickly.
type Monitor interface {
	TaskStart(worker int, v graph.VertexID)
	TaskFinish(worker int, v graph.VertexID)
	WorkerStart(worker int)
	WorkerExit(worker int, updates uint64)

	TaskAdded(v graph.VertexID, priority float64)
	TaskPromoted(v graph.VertexID, diff, total float64)
	TaskScheduled(v graph.VertexID, priority float64)
	TaskPruned(v graph.VertexID)

	SetVertexValue(v graph.VertexID, value float64)
	SetVertexValueScale(min, max float64)
}

// Nop ignores every event. Embed it to implement only some hooks.
type Nop struct{}

func (Nop) TaskStart(int, graph.VertexID)                 {}
func (Nop) TaskFinish(int, graph.VertexID)                {}
func (Nop) WorkerStart(int)                               {}
func (Nop) WorkerExit(int, uint64)                        {}
func (Nop) TaskAdded(graph.VertexID, float64)             {}
func (Nop) TaskPromoted(graph.VertexID, float64, float64) {}
func (Nop) TaskScheduled(graph.VertexID, float64)         {}
func (Nop) TaskPruned(graph.VertexID)                     {}
func (Nop) SetVertexValue(graph.VertexID, float64)        {}
func (Nop) SetVertexValueScale(float64, float64)          {}

// Multiplexer forwards every event to each of its children in order.
type Multiplexer struct {
	children []Monitor
}

// NewMultiplexer returns a Multiplexer over the non-nil children.
func NewMultiplexer(children ...Monitor) *Multiplexer {
	m := &Multiplexer{}
	for _, c := range children {
		m.Add(c)
	}
	return m
}

// Add appends a child. It must not be called while a run is in progress.
func (m *Multiplexer) Add(c Monitor) {
	if c != nil {
		m.children = append(m.children, c)
	}
}

// Len returns the number of children.
func (m *Multiplexer) Len() int { return len(m.children) }

func (m *Multiplexer) TaskStart(w int, v graph.VertexID) {
	for _, c := range m.children {
		c.TaskStart(w, v)
	}
}

func (m *Multiplexer) TaskFinish(w int, v graph.VertexID) {
	for _, c := range m.children {
		c.TaskFinish(w, v)
	}
}

func (m *Multiplexer) WorkerStart(w int) {
	for _, c := range m.children {
		c.WorkerStart(w)
	}
}

func (m *Multiplexer) WorkerExit(w int, updates uint64) {
	for _, c := range m.children {
		c.WorkerExit(w, updates)
	}
}

func (m *Multiplexer) TaskAdded(v graph.VertexID, p float64) {
	for _, c := range m.children {
		c.TaskAdded(v, p)
	}
}

func (m *Multiplexer) TaskPromoted(v graph.VertexID, diff, total float64) {
	for _, c := range m.children {
		c.TaskPromoted(v, diff, total)
	}
}

func (m *Multiplexer) TaskScheduled(v graph.VertexID, p float64) {
	for _, c := range m.children {
		c.TaskScheduled(v, p)
	}
}

func (m *Multiplexer) TaskPruned(v graph.VertexID) {
	for _, c := range m.children {
		c.TaskPruned(v)
	}
}

func (m *Multiplexer) SetVertexValue(v graph.VertexID, value float64) {
	for _, c := range m.children {
		c.SetVertexValue(v, value)
	}
}

func (m *Multiplexer) SetVertexValueScale(min, max float64) {
	for _, c := range m.children {
		c.SetVertexValueScale(min, max)
	}
}
