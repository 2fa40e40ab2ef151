package engine

import (
	"sync"

	"github.com/vk/burstgraph/internal/graph"
	"github.com/vk/burstgraph/internal/scheduler"
)

type pendingTasks[V, E any] struct {
	all      bool
	vertices []graph.VertexID
	fn       scheduler.UpdateFunc[V, E]
	priority float64
}

// TaskBuffer collects the tasks that seed the next run. The scheduler only
// exists while a run is in progress, so tasks added before Start are kept
// here and handed to it when the run begins. The buffer is emptied by Start.
type TaskBuffer[V, E any] struct {
	mu      sync.Mutex
	entries []pendingTasks[V, E]
}

// AddTask schedules fn on v for the next run.
func (b *TaskBuffer[V, E]) AddTask(v graph.VertexID, fn scheduler.UpdateFunc[V, E], priority float64) {
	b.AddTasks([]graph.VertexID{v}, fn, priority)
}

// AddTaskToAll schedules fn on every vertex for the next run.
func (b *TaskBuffer[V, E]) AddTaskToAll(fn scheduler.UpdateFunc[V, E], priority float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, pendingTasks[V, E]{all: true, fn: fn, priority: priority})
}

// AddTasks schedules fn on each of the given vertices for the next run.
func (b *TaskBuffer[V, E]) AddTasks(vertices []graph.VertexID, fn scheduler.UpdateFunc[V, E], priority float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, pendingTasks[V, E]{
		vertices: append([]graph.VertexID(nil), vertices...),
		fn:       fn,
		priority: priority,
	})
}

// Len returns the number of buffered AddTask* calls.
func (b *TaskBuffer[V, E]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *TaskBuffer[V, E]) take() []pendingTasks[V, E] {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.entries
	b.entries = nil
	return out
}

// restore puts entries back in front of anything added since take.
func (b *TaskBuffer[V, E]) restore(entries []pendingTasks[V, E]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(entries, b.entries...)
}
