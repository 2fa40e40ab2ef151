package scheduler

import (
	"errors"

	"github.com/vk/burstgraph/internal/graph"
	"github.com/vk/burstgraph/internal/scope"
	"github.com/vk/burstgraph/internal/termination"
)

// ErrInvalidConfig is returned for unknown scheduler names and bad options.
var ErrInvalidConfig = errors.New("invalid scheduler configuration")

// UpdateFunc is a user update function. It reads and writes data through the
// scope and may schedule further tasks through the callback.
type UpdateFunc[V, E any] func(s *scope.Scope[V, E], cb Callback[V, E])

// Task is a unit of work: run Func on Vertex.
type Task[V, E any] struct {
	Vertex graph.VertexID
	Func   UpdateFunc[V, E]
}

// Valid reports whether t refers to a vertex and has a function.
func (t Task[V, E]) Valid() bool {
	return t.Vertex != graph.InvalidVertex && t.Func != nil
}

// Status is the outcome of NextTask.
type Status int

const (
	// Empty means no task is available for this worker right now.
	Empty Status = iota
	// NewTask means a task was returned.
	NewTask
)

func (s Status) String() string {
	if s == NewTask {
		return "new_task"
	}
	return "empty"
}

// Callback is handed to update functions so they can schedule tasks.
type Callback[V, E any] interface {
	AddTask(v graph.VertexID, fn UpdateFunc[V, E], priority float64)
}

// Scheduler hands tasks to the engine's workers.
//
// # Lifecycle
//
//  1. **Created** by New for a single run
//  2. **Configured** with SetOptions and seeded with AddTask, AddTaskToAll or AddTasks
//  3. **Started** once with Start
//  4. **Drained** by workers calling NextTask and CompletedTask until the
//     Terminator reports the end of the run
//
// # Thread-Safety
//
// After Start, NextTask, CompletedTask, AddTask and the callbacks are called
// concurrently from every worker. NextTask and CompletedTask for a given
// workerID are only ever called from that worker's goroutine.
type Scheduler[V, E any] interface {
	// Start is called once, after seeding and before the first NextTask.
	Start()

	// AddTask schedules t with an advisory priority.
	AddTask(t Task[V, E], priority float64)

	// AddTaskToAll schedules fn on every vertex.
	AddTaskToAll(fn UpdateFunc[V, E], priority float64)

	// AddTasks schedules fn on each of the given vertices.
	AddTasks(vertices []graph.VertexID, fn UpdateFunc[V, E], priority float64)

	// NextTask returns the next task for workerID, or Empty.
	NextTask(workerID int) (Task[V, E], Status)

	// CompletedTask is called after the update function of t returned.
	CompletedTask(workerID int, t Task[V, E])

	// Callback returns the callback handed to update functions run by workerID.
	Callback(workerID int) Callback[V, E]

	// Terminator returns the termination detector paired with this scheduler.
	Terminator() termination.Terminator

	// SetOptions applies scheduler-specific options. Unknown keys and values
	// of the wrong type are configuration errors.
	SetOptions(opts Options) error
}

// IterationCounter is implemented by schedulers that sweep the graph in
// iterations.
type IterationCounter interface {
	Iterations() uint64
}

type callback[V, E any] struct {
	s Scheduler[V, E]
}

func (c callback[V, E]) AddTask(v graph.VertexID, fn UpdateFunc[V, E], priority float64) {
	c.s.AddTask(Task[V, E]{Vertex: v, Func: fn}, priority)
}
