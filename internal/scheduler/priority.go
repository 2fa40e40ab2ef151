package scheduler

import (
	"container/heap"
	"sync"

	"github.com/vk/burstgraph/internal/graph"
	"github.com/vk/burstgraph/internal/monitor"
	"github.com/vk/burstgraph/internal/termination"
)

type pqItem[V, E any] struct {
	task     Task[V, E]
	priority float64
	index    int
}

// taskHeap is a max-heap on priority; ties go to the lower vertex id.
type taskHeap[V, E any] []*pqItem[V, E]

func (h taskHeap[V, E]) Len() int { return len(h) }
func (h taskHeap[V, E]) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].task.Vertex < h[j].task.Vertex
}
func (h taskHeap[V, E]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *taskHeap[V, E]) Push(x any) {
	item := x.(*pqItem[V, E])
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *taskHeap[V, E]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// Priority always hands out the pending task with the highest priority. A
// vertex has at most one pending task; adding it again with a higher
// priority promotes the pending task, otherwise the addition is pruned.
type Priority[V, E any] struct {
	n    int
	mon  monitor.Monitor
	term *termination.Shared

	mu       sync.Mutex
	h        taskHeap[V, E]
	byVertex []*pqItem[V, E]
}

// NewPriority creates a priority scheduler over g.
func NewPriority[V, E any](g graph.Graph[V, E], workers int, mon monitor.Monitor) *Priority[V, E] {
	return &Priority[V, E]{
		n:        g.NumVertices(),
		mon:      mon,
		term:     termination.NewShared(workers),
		byVertex: make([]*pqItem[V, E], g.NumVertices()),
	}
}

func (s *Priority[V, E]) Start() {}

func (s *Priority[V, E]) AddTask(t Task[V, E], priority float64) {
	checkVertex(s.n, t.Vertex)
	s.mu.Lock()
	if item := s.byVertex[t.Vertex]; item != nil {
		if priority <= item.priority {
			s.mu.Unlock()
			s.mon.TaskPruned(t.Vertex)
			return
		}
		diff := priority - item.priority
		item.priority = priority
		heap.Fix(&s.h, item.index)
		s.mu.Unlock()
		s.mon.TaskPromoted(t.Vertex, diff, priority)
		return
	}
	item := &pqItem[V, E]{task: t, priority: priority}
	heap.Push(&s.h, item)
	s.byVertex[t.Vertex] = item
	s.mu.Unlock()

	s.mon.TaskAdded(t.Vertex, priority)
	s.term.NewJob()
}

func (s *Priority[V, E]) AddTaskToAll(fn UpdateFunc[V, E], priority float64) {
	for v := 0; v < s.n; v++ {
		s.AddTask(Task[V, E]{Vertex: graph.VertexID(v), Func: fn}, priority)
	}
}

func (s *Priority[V, E]) AddTasks(vertices []graph.VertexID, fn UpdateFunc[V, E], priority float64) {
	for _, v := range vertices {
		s.AddTask(Task[V, E]{Vertex: v, Func: fn}, priority)
	}
}

func (s *Priority[V, E]) NextTask(int) (Task[V, E], Status) {
	s.mu.Lock()
	if s.h.Len() == 0 {
		s.mu.Unlock()
		return Task[V, E]{Vertex: graph.InvalidVertex}, Empty
	}
	item := heap.Pop(&s.h).(*pqItem[V, E])
	s.byVertex[item.task.Vertex] = nil
	s.mu.Unlock()

	s.mon.TaskScheduled(item.task.Vertex, item.priority)
	return item.task, NewTask
}

func (s *Priority[V, E]) CompletedTask(int, Task[V, E]) { s.term.CompletedJob() }

func (s *Priority[V, E]) Callback(int) Callback[V, E] { return callback[V, E]{s: s} }

func (s *Priority[V, E]) Terminator() termination.Terminator { return s.term }

func (s *Priority[V, E]) SetOptions(opts Options) error {
	return opts.checkKeys(NamePriority)
}

// Len returns the number of queued tasks.
func (s *Priority[V, E]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.Len()
}
