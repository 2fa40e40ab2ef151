package scheduler

import (
	"sync"

	"github.com/vk/burstgraph/internal/graph"
	"github.com/vk/burstgraph/internal/monitor"
	"github.com/vk/burstgraph/internal/termination"
)

// FIFO runs tasks in insertion order from one shared queue. A vertex has at
// most one pending task; adding another while one is queued is a no-op
// reported to the monitor as pruned. The pending mark is cleared when the
// task is handed out, so an update function may reschedule its own vertex.
type FIFO[V, E any] struct {
	n    int
	mon  monitor.Monitor
	term *termination.Shared

	mu     sync.Mutex
	queue  []Task[V, E]
	head   int
	queued []bool
}

// NewFIFO creates a FIFO scheduler over g.
func NewFIFO[V, E any](g graph.Graph[V, E], workers int, mon monitor.Monitor) *FIFO[V, E] {
	return &FIFO[V, E]{
		n:      g.NumVertices(),
		mon:    mon,
		term:   termination.NewShared(workers),
		queued: make([]bool, g.NumVertices()),
	}
}

func (s *FIFO[V, E]) Start() {}

func (s *FIFO[V, E]) AddTask(t Task[V, E], priority float64) {
	checkVertex(s.n, t.Vertex)
	s.mu.Lock()
	if s.queued[t.Vertex] {
		s.mu.Unlock()
		s.mon.TaskPruned(t.Vertex)
		return
	}
	s.queued[t.Vertex] = true
	s.queue = append(s.queue, t)
	s.mu.Unlock()

	s.mon.TaskAdded(t.Vertex, priority)
	s.term.NewJob()
}

func (s *FIFO[V, E]) AddTaskToAll(fn UpdateFunc[V, E], priority float64) {
	for v := 0; v < s.n; v++ {
		s.AddTask(Task[V, E]{Vertex: graph.VertexID(v), Func: fn}, priority)
	}
}

func (s *FIFO[V, E]) AddTasks(vertices []graph.VertexID, fn UpdateFunc[V, E], priority float64) {
	for _, v := range vertices {
		s.AddTask(Task[V, E]{Vertex: v, Func: fn}, priority)
	}
}

func (s *FIFO[V, E]) NextTask(int) (Task[V, E], Status) {
	s.mu.Lock()
	if s.head == len(s.queue) {
		s.mu.Unlock()
		return Task[V, E]{Vertex: graph.InvalidVertex}, Empty
	}
	t := s.queue[s.head]
	s.queue[s.head] = Task[V, E]{}
	s.head++
	if s.head == len(s.queue) {
		s.queue = s.queue[:0]
		s.head = 0
	}
	s.queued[t.Vertex] = false
	s.mu.Unlock()

	s.mon.TaskScheduled(t.Vertex, 0)
	return t, NewTask
}

func (s *FIFO[V, E]) CompletedTask(int, Task[V, E]) { s.term.CompletedJob() }

func (s *FIFO[V, E]) Callback(int) Callback[V, E] { return callback[V, E]{s: s} }

func (s *FIFO[V, E]) Terminator() termination.Terminator { return s.term }

func (s *FIFO[V, E]) SetOptions(opts Options) error {
	return opts.checkKeys(NameFIFO)
}

// Len returns the number of queued tasks.
func (s *FIFO[V, E]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) - s.head
}
