package scheduler

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/vk/burstgraph/internal/graph"
	"github.com/vk/burstgraph/internal/monitor"
	"github.com/vk/burstgraph/internal/termination"
)

const finishedBlock = ^uint64(0)

// workerCursor is owned by a single worker; only done is read by others.
type workerCursor struct {
	blockBegin uint64
	remaining  uint64
	done       atomic.Bool
	_          [40]byte
}

// RoundRobin sweeps every vertex in a fixed order. Task ids are handed out in
// contiguous blocks from a shared atomic counter, and task id t maps to
// vertex (t*step) mod n. The sweep starts at start_vertex and stops after
// max_iterations full passes over the graph; 0 means it never stops on its
// own. Each vertex holds at most one task, and the same task runs every pass.
//
// Tasks must be added before Start; update functions cannot schedule new work.
type RoundRobin[V, E any] struct {
	n       uint64
	workers int
	mon     monitor.Monitor
	logger  *slog.Logger
	term    *termination.Controlled

	tasks   []Task[V, E]
	cursors []workerCursor

	maxIterations uint64
	startVertex   uint64
	step          uint64
	blockSize     uint64
	endTask       uint64

	curTask    atomic.Uint64
	iterations atomic.Uint64
	started    atomic.Bool
}

// NewRoundRobin creates a round-robin scheduler over g.
func NewRoundRobin[V, E any](g graph.Graph[V, E], workers int, mon monitor.Monitor, logger *slog.Logger) *RoundRobin[V, E] {
	return &RoundRobin[V, E]{
		n:       uint64(g.NumVertices()),
		workers: workers,
		mon:     mon,
		logger:  logger,
		term:    termination.NewControlled(),
		tasks:   make([]Task[V, E], g.NumVertices()),
		cursors: make([]workerCursor, workers),
		step:    1,
	}
}

func (s *RoundRobin[V, E]) SetOptions(opts Options) error {
	if err := opts.checkKeys(NameRoundRobin, "max_iterations", "start_vertex", "step", "block_size"); err != nil {
		return err
	}
	maxIter, err := opts.Int("max_iterations", int64(s.maxIterations))
	if err != nil {
		return err
	}
	start, err := opts.Int("start_vertex", int64(s.startVertex))
	if err != nil {
		return err
	}
	step, err := opts.Int("step", int64(s.step))
	if err != nil {
		return err
	}
	block, err := opts.Int("block_size", int64(s.blockSize))
	if err != nil {
		return err
	}

	switch {
	case maxIter < 0:
		return fmt.Errorf("%w: max_iterations must not be negative", ErrInvalidConfig)
	case start < 0 || (s.n > 0 && uint64(start) >= s.n):
		return fmt.Errorf("%w: start_vertex %d out of range [0, %d)", ErrInvalidConfig, start, s.n)
	case step < 1:
		return fmt.Errorf("%w: step must be at least 1", ErrInvalidConfig)
	case s.n > 0 && gcd(uint64(step), s.n) != 1:
		return fmt.Errorf("%w: step %d must be coprime with the vertex count %d", ErrInvalidConfig, step, s.n)
	case block < 0:
		return fmt.Errorf("%w: block_size must not be negative", ErrInvalidConfig)
	case s.n > 0 && uint64(maxIter) > (math.MaxUint64-uint64(start))/s.n:
		return fmt.Errorf("%w: max_iterations %d is too large for %d vertices", ErrInvalidConfig, maxIter, s.n)
	}

	s.maxIterations = uint64(maxIter)
	s.startVertex = uint64(start)
	s.step = uint64(step)
	s.blockSize = uint64(block)
	return nil
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func (s *RoundRobin[V, E]) AddTask(t Task[V, E], priority float64) {
	if s.started.Load() {
		// The task table is read without locks once the sweep is running.
		s.mon.TaskPruned(t.Vertex)
		return
	}
	checkVertex(int(s.n), t.Vertex)
	if s.tasks[t.Vertex].Func != nil {
		s.logger.Warn("Round robin slot already occupied, replacing task.", "vertex", t.Vertex)
	}
	s.tasks[t.Vertex] = t
	s.mon.TaskAdded(t.Vertex, priority)
}

func (s *RoundRobin[V, E]) AddTaskToAll(fn UpdateFunc[V, E], priority float64) {
	for v := uint64(0); v < s.n; v++ {
		s.AddTask(Task[V, E]{Vertex: graph.VertexID(v), Func: fn}, priority)
	}
}

func (s *RoundRobin[V, E]) AddTasks(vertices []graph.VertexID, fn UpdateFunc[V, E], priority float64) {
	for _, v := range vertices {
		s.AddTask(Task[V, E]{Vertex: v, Func: fn}, priority)
	}
}

func (s *RoundRobin[V, E]) Start() {
	if s.blockSize == 0 {
		s.blockSize = s.n / uint64(4*s.workers)
		if s.blockSize < 1 {
			s.blockSize = 1
		}
	}
	if s.n > 1 {
		s.step %= s.n
	}
	s.curTask.Store(s.startVertex)
	s.endTask = s.startVertex + s.maxIterations*s.n
	s.iterations.Store(0)
	for i := range s.cursors {
		s.cursors[i].blockBegin = 0
		s.cursors[i].remaining = 0
		s.cursors[i].done.Store(false)
	}
	s.term.Reset()
	s.started.Store(true)

	s.logger.Debug("Round robin scheduler started.",
		"vertices", s.n, "block_size", s.blockSize, "step", s.step,
		"start_vertex", s.startVertex, "max_iterations", s.maxIterations)

	if s.n == 0 || (s.maxIterations == 0 && !s.hasTasks()) {
		s.term.Complete()
	}
}

func (s *RoundRobin[V, E]) hasTasks() bool {
	for i := range s.tasks {
		if s.tasks[i].Func != nil {
			return true
		}
	}
	return false
}

// NextTask gives up with Empty after walking n task ids without finding a
// live slot, so a sparse or empty task table never traps the caller. The
// cursor keeps its position for the next call.
func (s *RoundRobin[V, E]) NextTask(workerID int) (Task[V, E], Status) {
	if s.n == 0 {
		return Task[V, E]{Vertex: graph.InvalidVertex}, Empty
	}
	c := &s.cursors[workerID]
	var scanned uint64
	for {
		if c.blockBegin == finishedBlock {
			return Task[V, E]{Vertex: graph.InvalidVertex}, Empty
		}
		for c.remaining > 0 {
			if scanned >= s.n {
				return Task[V, E]{Vertex: graph.InvalidVertex}, Empty
			}
			scanned++
			v := c.blockBegin
			c.blockBegin += s.step
			if c.blockBegin >= s.n {
				c.blockBegin -= s.n
			}
			c.remaining--
			t := s.tasks[v]
			if t.Func == nil {
				continue
			}
			s.mon.TaskScheduled(t.Vertex, 0)
			return t, NewTask
		}

		taskID := s.curTask.Add(s.blockSize) - s.blockSize
		if taskID%s.n+s.blockSize >= s.n {
			s.iterations.Add(1)
		}
		c.blockBegin = (taskID * s.step) % s.n

		if s.maxIterations != 0 && taskID+s.blockSize >= s.endTask {
			c.remaining = 0
			if s.endTask > taskID {
				c.remaining = s.endTask - taskID
			}
			if c.remaining == 0 {
				c.blockBegin = finishedBlock
				c.done.Store(true)
				s.checkAllDone()
			}
			continue
		}
		c.remaining = s.blockSize
	}
}

func (s *RoundRobin[V, E]) checkAllDone() {
	for i := range s.cursors {
		if !s.cursors[i].done.Load() {
			return
		}
	}
	s.term.Complete()
}

func (s *RoundRobin[V, E]) CompletedTask(int, Task[V, E]) {}

func (s *RoundRobin[V, E]) Callback(int) Callback[V, E] { return roundRobinCallback[V, E]{s: s} }

func (s *RoundRobin[V, E]) Terminator() termination.Terminator { return s.term }

// Iterations returns the number of completed passes over the graph.
func (s *RoundRobin[V, E]) Iterations() uint64 { return s.iterations.Load() }

type roundRobinCallback[V, E any] struct {
	s *RoundRobin[V, E]
}

func (c roundRobinCallback[V, E]) AddTask(v graph.VertexID, _ UpdateFunc[V, E], _ float64) {
	c.s.mon.TaskPruned(v)
}
