package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/burstgraph/internal/graph"
	"github.com/vk/burstgraph/internal/monitor"
	"github.com/vk/burstgraph/internal/scheduler"
	"github.com/vk/burstgraph/internal/scope"
	"github.com/vk/burstgraph/internal/testutil"
)

type (
	cb = scheduler.Callback[int, int]
	sc = scope.Scope[int, int]
)

func newEngine(t *testing.T, g graph.Graph[int, int], cfg Config) *Engine[int, int] {
	t.Helper()
	e, err := New(context.Background(), g, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func increment(s *sc, _ cb) { *s.VertexData()++ }

// forever reschedules its own vertex until the run is ended from outside.
func forever(s *sc, c cb) { c.AddTask(s.Vertex(), forever, 1) }

func TestEngine_StaticTasks(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"fifo", "priority"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			// --- Arrange ---
			const n = 500
			g := testutil.Chain(t, n)
			e := newEngine(t, g, Config{Workers: 4, Scheduler: name})
			e.Tasks().AddTaskToAll(increment, 1)

			// --- Act ---
			err := e.Start(context.Background())

			// --- Assert ---
			require.NoError(t, err)
			assert.Equal(t, TaskDepletion, e.LastExecStatus())
			assert.Equal(t, uint64(n), e.LastUpdateCount())
			for v := 0; v < n; v++ {
				assert.Equal(t, v+1, *g.VertexData(graph.VertexID(v)))
			}

			m := e.Metrics()
			assert.NotEmpty(t, m.RunID)
			assert.Equal(t, uint64(n), m.Updates)
			assert.Len(t, m.UpdateCounts, 4)
			assert.Equal(t, TaskDepletion, m.TerminationReason)
			assert.Equal(t, n, m.NumVertices)
			assert.Equal(t, n-1, m.NumEdges)
			assert.Equal(t, 0, e.Tasks().Len())
		})
	}
}

func TestEngine_DynamicChain(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	const n = 200
	g := testutil.Chain(t, n)
	e := newEngine(t, g, Config{Workers: 3})
	var step scheduler.UpdateFunc[int, int]
	step = func(s *sc, c cb) {
		*s.VertexData() = -1
		for _, eid := range s.OutEdges() {
			c.AddTask(s.Target(eid), step, 1)
		}
	}
	e.Tasks().AddTask(0, step, 1)

	// --- Act ---
	err := e.Start(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, uint64(n), e.LastUpdateCount())
	for v := 0; v < n; v++ {
		assert.Equal(t, -1, *g.VertexData(graph.VertexID(v)))
	}
}

func TestEngine_NeighboursNeverRunTogether(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		level string
		graph func(t *testing.T, n int) *graph.Memory[int, int]
	}{
		{name: "edge scope on a ring", level: "edge", graph: testutil.Ring},
		{name: "full scope on a ring", level: "full", graph: testutil.Ring},
		{name: "edge scope on a star", level: "edge", graph: testutil.Star},
		{name: "full scope on a star", level: "full", graph: testutil.Star},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			// --- Arrange ---
			const n, rounds = 64, 20
			g := tc.graph(t, n)
			e := newEngine(t, g, Config{Workers: 8, Scope: tc.level})
			probe := testutil.NewProbe(func(v graph.VertexID) []graph.VertexID {
				return graph.Neighbors[int, int](g, v)
			})

			var update scheduler.UpdateFunc[int, int]
			update = func(s *sc, c cb) {
				v := s.Vertex()
				began := probe.Enter(v)
				runtime.Gosched()
				*s.VertexData()++
				probe.Exit(v, began)
				if *s.VertexData() < rounds {
					c.AddTask(v, update, 1)
				}
			}
			for v := 0; v < n; v++ {
				*g.VertexData(graph.VertexID(v)) = 0
			}
			e.Tasks().AddTaskToAll(update, 1)

			// --- Act ---
			err := e.Start(context.Background())

			// --- Assert ---
			require.NoError(t, err)
			assert.Zero(t, probe.Conflicts())
			assert.Equal(t, uint64(n*rounds), e.LastUpdateCount())
			assert.Len(t, probe.Records(0), rounds)
		})
	}
}

func TestEngine_RoundRobin(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	const n, iterations = 50, 3
	g := testutil.Chain(t, n)
	start := rand.IntN(n)
	e := newEngine(t, g, Config{Workers: 4})
	require.NoError(t, e.SetScheduler("round_robin(max_iterations=3, start_vertex="+strconv.Itoa(start)+")"))

	skip := map[graph.VertexID]bool{0: true, 7: true, 13: true, 21: true, 49: true}
	var vertices []graph.VertexID
	for v := 0; v < n; v++ {
		if !skip[graph.VertexID(v)] {
			vertices = append(vertices, graph.VertexID(v))
		}
	}
	e.Tasks().AddTasks(vertices, increment, 0)

	// --- Act ---
	err := e.Start(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, TaskDepletion, e.LastExecStatus())
	assert.Equal(t, uint64(iterations*(n-len(skip))), e.LastUpdateCount())
	for v := 0; v < n; v++ {
		want := v + iterations
		if skip[graph.VertexID(v)] {
			want = v
		}
		assert.Equal(t, want, *g.VertexData(graph.VertexID(v)), "vertex %d", v)
	}
	assert.NotZero(t, e.Metrics().Iterations)
}

func TestEngine_TerminationReasons(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		prepare func(e *Engine[int, int]) context.Context
		want    ExecStatus
	}{
		{
			name: "timeout",
			prepare: func(e *Engine[int, int]) context.Context {
				e.SetTimeout(200 * time.Millisecond)
				return context.Background()
			},
			want: Timeout,
		},
		{
			name: "task budget",
			prepare: func(e *Engine[int, int]) context.Context {
				e.SetTaskBudget(5000)
				return context.Background()
			},
			want: TaskBudgetExceeded,
		},
		{
			name: "terminator",
			prepare: func(e *Engine[int, int]) context.Context {
				e.AddTerminator(func() bool { return e.LastUpdateCount() >= 1000 })
				return context.Background()
			},
			want: TermFunction,
		},
		{
			name: "context cancelled",
			prepare: func(e *Engine[int, int]) context.Context {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				go func() {
					<-ctx.Done()
					cancel()
				}()
				return ctx
			},
			want: ForcedAbort,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			// --- Arrange ---
			e := newEngine(t, testutil.Chain(t, 16), Config{Workers: 4})
			e.Tasks().AddTaskToAll(forever, 1)
			ctx := tc.prepare(e)

			// --- Act ---
			began := time.Now()
			err := e.Start(ctx)

			// --- Assert ---
			require.NoError(t, err)
			assert.Equal(t, tc.want, e.LastExecStatus())
			assert.Equal(t, tc.want, e.Metrics().TerminationReason)
			assert.Less(t, time.Since(began), 10*time.Second)
		})
	}
}

func TestEngine_TaskBudgetIsExceededNotMet(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	e := newEngine(t, testutil.Chain(t, 4), Config{Workers: 2})
	e.SetTaskBudget(300)
	e.Tasks().AddTaskToAll(forever, 1)

	// --- Act ---
	require.NoError(t, e.Start(context.Background()))

	// --- Assert ---
	assert.Equal(t, TaskBudgetExceeded, e.LastExecStatus())
	assert.Greater(t, e.LastUpdateCount(), uint64(300))
}

func TestEngine_Stop(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	e := newEngine(t, testutil.Chain(t, 8), Config{Workers: 4})
	var once sync.Once
	var update scheduler.UpdateFunc[int, int]
	update = func(s *sc, c cb) {
		if e.LastUpdateCount() > 100 {
			once.Do(e.Stop)
		}
		c.AddTask(s.Vertex(), update, 1)
	}
	e.Tasks().AddTaskToAll(update, 1)

	// --- Act ---
	err := e.Start(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, ForcedAbort, e.LastExecStatus())
}

func TestEngine_StopWhileIdleIsIgnored(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	e := newEngine(t, testutil.Chain(t, 8), Config{Workers: 2})
	e.Stop()
	e.Tasks().AddTaskToAll(increment, 1)

	// --- Act ---
	err := e.Start(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, TaskDepletion, e.LastExecStatus())
	assert.Equal(t, uint64(8), e.LastUpdateCount())
}

func TestEngine_UpdatePanic(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	g := testutil.Chain(t, 32)
	e := newEngine(t, g, Config{Workers: 4})
	e.Tasks().AddTaskToAll(func(s *sc, c cb) {
		if s.Vertex() == 7 {
			panic("boom")
		}
		c.AddTask(s.Vertex(), forever, 1)
	}, 1)

	// --- Act ---
	err := e.Start(context.Background())

	// --- Assert ---
	var uerr *UpdateError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, graph.VertexID(7), uerr.Vertex)
	assert.Equal(t, "boom", uerr.Payload)
	assert.NotEmpty(t, uerr.Stack)
	assert.Equal(t, Exception, e.LastExecStatus())

	t.Run("engine is reusable", func(t *testing.T) {
		// --- Arrange ---
		e.Tasks().AddTaskToAll(increment, 1)

		// --- Act ---
		err := e.Start(context.Background())

		// --- Assert ---
		require.NoError(t, err)
		assert.Equal(t, TaskDepletion, e.LastExecStatus())
		assert.Equal(t, uint64(32), e.LastUpdateCount())
	})
}

func TestEngine_PanicWithErrorPayloadUnwraps(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	sentinel := errors.New("vertex exploded")
	e := newEngine(t, testutil.Chain(t, 4), Config{Workers: 1})
	e.Tasks().AddTask(2, func(*sc, cb) { panic(sentinel) }, 1)

	// --- Act ---
	err := e.Start(context.Background())

	// --- Assert ---
	require.ErrorIs(t, err, sentinel)
}

func TestEngine_ConfigErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		cfg  Config
	}{
		{name: "negative workers", cfg: Config{Workers: -1}},
		{name: "unknown scheduler", cfg: Config{Scheduler: "lifo"}},
		{name: "malformed scheduler spec", cfg: Config{Scheduler: "fifo(a"}},
		{name: "unknown scope", cfg: Config{Scope: "galaxy"}},
		{name: "negative timeout", cfg: Config{Timeout: -time.Second}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			// --- Act ---
			_, err := New(context.Background(), testutil.Chain(t, 2), tc.cfg)

			// --- Assert ---
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestEngine_StartErrorsKeepTasks(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		prepare func(e *Engine[int, int])
	}{
		{
			name: "option not coprime with vertex count",
			prepare: func(e *Engine[int, int]) {
				require.NoError(t, e.SetScheduler("round_robin(step=2)"))
				e.Tasks().AddTaskToAll(increment, 1)
			},
		},
		{
			name: "unknown option",
			prepare: func(e *Engine[int, int]) {
				require.NoError(t, e.SetScheduler("fifo(speed=3)"))
				e.Tasks().AddTaskToAll(increment, 1)
			},
		},
		{
			name: "vertex out of range",
			prepare: func(e *Engine[int, int]) {
				e.Tasks().AddTask(99, increment, 1)
			},
		},
		{
			name: "missing update function",
			prepare: func(e *Engine[int, int]) {
				e.Tasks().AddTask(1, nil, 1)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			// --- Arrange ---
			e := newEngine(t, testutil.Chain(t, 10), Config{Workers: 2})
			tc.prepare(e)

			// --- Act ---
			err := e.Start(context.Background())

			// --- Assert ---
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Equal(t, 1, e.Tasks().Len())
		})
	}
}

func TestEngine_StartWhileRunning(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	e := newEngine(t, testutil.Chain(t, 4), Config{Workers: 2})
	errs := make(chan error, 1)
	var once sync.Once
	var update scheduler.UpdateFunc[int, int]
	update = func(s *sc, c cb) {
		once.Do(func() {
			errs <- e.Start(context.Background())
			e.Stop()
		})
		c.AddTask(s.Vertex(), update, 1)
	}
	e.Tasks().AddTaskToAll(update, 1)

	// --- Act ---
	err := e.Start(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	require.ErrorIs(t, <-errs, ErrRunning)
	require.NoError(t, e.RegisterMonitor(monitor.Nop{}))
}

func TestEngine_Close(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	e, err := New(context.Background(), testutil.Chain(t, 4), Config{Workers: 2})
	require.NoError(t, err)

	// --- Act ---
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	// --- Assert ---
	require.ErrorIs(t, e.Start(context.Background()), ErrClosed)
}

type workerMonitor struct {
	monitor.Nop
	starts, exits, taskStarts, taskFinishes atomic.Int64
	exitUpdates                             atomic.Uint64
}

func (m *workerMonitor) WorkerStart(int)                { m.starts.Add(1) }
func (m *workerMonitor) TaskStart(int, graph.VertexID)  { m.taskStarts.Add(1) }
func (m *workerMonitor) TaskFinish(int, graph.VertexID) { m.taskFinishes.Add(1) }
func (m *workerMonitor) WorkerExit(_ int, updates uint64) {
	m.exits.Add(1)
	m.exitUpdates.Add(updates)
}

func TestEngine_Monitor(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	const n, workers = 100, 3
	e := newEngine(t, testutil.Chain(t, n), Config{Workers: workers})
	mon := &workerMonitor{}
	require.NoError(t, e.RegisterMonitor(mon))
	e.Tasks().AddTaskToAll(increment, 1)

	// --- Act ---
	require.NoError(t, e.Start(context.Background()))

	// --- Assert ---
	assert.Equal(t, int64(workers), mon.starts.Load())
	assert.Equal(t, int64(workers), mon.exits.Load())
	assert.Equal(t, int64(n), mon.taskStarts.Load())
	assert.Equal(t, int64(n), mon.taskFinishes.Load())
	assert.Equal(t, uint64(n), mon.exitUpdates.Load())
}

func TestEngine_CommitHooksRunOnRelease(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	const n = 20
	e := newEngine(t, testutil.Chain(t, n), Config{Workers: 2, Scope: "vertex", CPUAffinity: true})
	var commits atomic.Int64
	e.Tasks().AddTaskToAll(func(s *sc, _ cb) {
		s.OnCommit(func() { commits.Add(1) })
	}, 1)

	// --- Act ---
	require.NoError(t, e.Start(context.Background()))

	// --- Assert ---
	assert.Equal(t, int64(n), commits.Load())
}

func TestEngine_ApproximateCount(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	e := newEngine(t, testutil.Chain(t, 1), Config{Workers: 1})
	e.SetTaskBudget(10 * approxBatch)
	e.Tasks().AddTask(0, forever, 1)

	// --- Act ---
	require.NoError(t, e.Start(context.Background()))

	// --- Assert ---
	exact := e.LastUpdateCount()
	approx := e.ApproximateLastUpdateCount()
	assert.LessOrEqual(t, approx, exact)
	assert.Less(t, exact-approx, uint64(approxBatch))
}

func TestEngine_SequentialConsistency(t *testing.T) {
	t.Parallel()

	const n = 300
	schedulers := []struct {
		spec   string
		passes int
	}{
		{spec: "fifo", passes: 1},
		{spec: "priority", passes: 1},
		{spec: "round_robin(max_iterations=2)", passes: 2},
	}

	for _, sched := range schedulers {
		for _, level := range []string{"edge", "full"} {
			t.Run(sched.spec+"/"+level, func(t *testing.T) {
				t.Parallel()
				// --- Arrange ---
				g := testutil.Path(t, n)
				for v := 0; v < n; v++ {
					*g.VertexData(graph.VertexID(v)) = 0
				}
				e := newEngine(t, g, Config{Workers: 4, Scheduler: sched.spec, Scope: level})
				e.Tasks().AddTaskToAll(func(s *sc, _ cb) {
					val := *s.VertexData() + 1
					for _, eid := range s.InEdges() {
						val += *s.NeighborData(s.Source(eid))
					}
					*s.VertexData() = val
				}, 1)

				// --- Act ---
				err := e.Start(context.Background())

				// --- Assert ---
				require.NoError(t, err)
				assert.Equal(t, uint64(n*sched.passes), e.LastUpdateCount())
				for v := 1; v < n; v++ {
					assert.NotEqual(t, *g.VertexData(graph.VertexID(v-1)), *g.VertexData(graph.VertexID(v)),
						"vertices %d and %d saw each other's update half done", v-1, v)
				}
			})
		}
	}
}

func TestEngine_TimeoutIsAccurate(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"fifo", "round_robin"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			// --- Arrange ---
			e := newEngine(t, testutil.Chain(t, 64), Config{Workers: 4, Scheduler: name, Timeout: time.Second})
			if name == "fifo" {
				e.Tasks().AddTaskToAll(forever, 1)
			} else {
				e.Tasks().AddTaskToAll(increment, 1)
			}

			// --- Act ---
			began := time.Now()
			err := e.Start(context.Background())
			elapsed := time.Since(began)

			// --- Assert ---
			require.NoError(t, err)
			assert.Equal(t, Timeout, e.LastExecStatus())
			assert.GreaterOrEqual(t, elapsed, time.Second)
			assert.Less(t, elapsed, 1500*time.Millisecond)
		})
	}
}

// startAsync runs e.Start on its own goroutine.
func startAsync(e *Engine[int, int]) <-chan error {
	done := make(chan error, 1)
	go func() { done <- e.Start(context.Background()) }()
	return done
}

func waitStart(t *testing.T, done <-chan error, deadline time.Duration) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(deadline):
		t.Fatalf("Start did not return within %s", deadline)
		return nil
	}
}

func TestEngine_RoundRobinWithoutWorkReturns(t *testing.T) {
	t.Parallel()

	t.Run("no tasks", func(t *testing.T) {
		t.Parallel()
		// --- Arrange ---
		e := newEngine(t, testutil.Chain(t, 32), Config{Workers: 2, Scheduler: "round_robin", Timeout: 200 * time.Millisecond})

		// --- Act ---
		err := waitStart(t, startAsync(e), 5*time.Second)

		// --- Assert ---
		require.NoError(t, err)
		assert.Equal(t, TaskDepletion, e.LastExecStatus())
		assert.Zero(t, e.LastUpdateCount())
	})

	t.Run("sparse tasks honour the timeout", func(t *testing.T) {
		t.Parallel()
		// --- Arrange ---
		e := newEngine(t, testutil.Chain(t, 100), Config{Workers: 4, Scheduler: "round_robin", Timeout: 100 * time.Millisecond})
		e.Tasks().AddTask(0, increment, 1)

		// --- Act ---
		err := waitStart(t, startAsync(e), 5*time.Second)

		// --- Assert ---
		require.NoError(t, err)
		assert.Equal(t, Timeout, e.LastExecStatus())
		assert.Positive(t, e.LastUpdateCount())
	})

	t.Run("sparse tasks honour stop", func(t *testing.T) {
		t.Parallel()
		// --- Arrange ---
		e := newEngine(t, testutil.Chain(t, 100), Config{Workers: 4, Scheduler: "round_robin"})
		e.Tasks().AddTask(0, increment, 1)
		done := startAsync(e)

		// --- Act ---
		require.Eventually(t, func() bool { return e.LastUpdateCount() > 0 }, 5*time.Second, time.Millisecond)
		e.Stop()
		err := waitStart(t, done, 5*time.Second)

		// --- Assert ---
		require.NoError(t, err)
		assert.Equal(t, ForcedAbort, e.LastExecStatus())
	})
}

func TestEngine_TerminatorsAreThrottledWhileIdle(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	e := newEngine(t, testutil.Chain(t, 100), Config{Workers: 4, Scheduler: "round_robin", Timeout: 300 * time.Millisecond})
	e.Tasks().AddTask(0, increment, 1)
	var calls atomic.Int64
	e.AddTerminator(func() bool {
		calls.Add(1)
		return false
	})

	// --- Act ---
	require.NoError(t, e.Start(context.Background()))

	// --- Assert ---
	assert.Equal(t, Timeout, e.LastExecStatus())
	// At most one evaluation per millisecond, with slack for the final one.
	assert.LessOrEqual(t, calls.Load(), int64(e.Metrics().Runtime.Milliseconds())+2)
}

func TestEngine_TerminatorPanic(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	e := newEngine(t, testutil.Chain(t, 16), Config{Workers: 4})
	e.Tasks().AddTaskToAll(forever, 1)
	e.AddTerminator(func() bool { panic("bad predicate") })

	// --- Act ---
	err := e.Start(context.Background())

	// --- Assert ---
	var uerr *UpdateError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, graph.InvalidVertex, uerr.Vertex)
	assert.Equal(t, "bad predicate", uerr.Payload)
	assert.Contains(t, err.Error(), "terminator function panicked")
	assert.Equal(t, Exception, e.LastExecStatus())
}
