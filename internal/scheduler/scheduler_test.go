package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/burstgraph/internal/graph"
	"github.com/vk/burstgraph/internal/monitor"
	"github.com/vk/burstgraph/internal/scope"
)

func noop(*scope.Scope[int, int], Callback[int, int]) {}

func line(n int) *graph.Memory[int, int] {
	g := graph.NewMemory[int, int](n)
	for i := 0; i < n; i++ {
		g.AddVertex(i)
	}
	return g
}

type countingMonitor struct {
	monitor.Nop
	added, pruned, promoted, scheduled atomic.Int64
	lastPromotion                      atomic.Value
}

func (m *countingMonitor) TaskAdded(graph.VertexID, float64)     { m.added.Add(1) }
func (m *countingMonitor) TaskPruned(graph.VertexID)             { m.pruned.Add(1) }
func (m *countingMonitor) TaskScheduled(graph.VertexID, float64) { m.scheduled.Add(1) }
func (m *countingMonitor) TaskPromoted(_ graph.VertexID, diff, total float64) {
	m.promoted.Add(1)
	m.lastPromotion.Store([2]float64{diff, total})
}

func TestParseSpec(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		spec     string
		wantName string
		wantOpts string
		wantErr  bool
	}{
		{name: "bare name", spec: "fifo", wantName: "fifo"},
		{name: "upper case name", spec: " Round_Robin ", wantName: "round_robin"},
		{name: "comma separated", spec: "round_robin(max_iterations=3, step=7)", wantName: "round_robin", wantOpts: "max_iterations=3, step=7"},
		{name: "semicolon separated", spec: "round_robin(step=7;start_vertex=2)", wantName: "round_robin", wantOpts: "start_vertex=2, step=7"},
		{name: "string and bool values", spec: "x(mode=fast, on=true)", wantName: "x", wantOpts: "mode=fast, on=true"},
		{name: "empty options", spec: "fifo()", wantName: "fifo"},
		{name: "missing paren", spec: "fifo(a=1", wantErr: true},
		{name: "missing equals", spec: "fifo(a)", wantErr: true},
		{name: "missing name", spec: "(a=1)", wantErr: true},
		{name: "stray separator", spec: "fifo,a=1", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			name, opts, err := ParseSpec(tc.spec)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantName, name)
			assert.Equal(t, tc.wantOpts, opts.String())
		})
	}
}

func TestFormatSpec_RoundTrips(t *testing.T) {
	t.Parallel()

	opts := NewOptions()
	opts.SetInt("max_iterations", 4)
	opts.Set("step", cty.NumberIntVal(3))
	spec := FormatSpec("round_robin", opts)
	assert.Equal(t, "round_robin(max_iterations=4, step=3)", spec)

	name, parsed, err := ParseSpec(spec)
	require.NoError(t, err)
	assert.Equal(t, "round_robin", name)
	assert.Equal(t, opts.String(), parsed.String())
	assert.Equal(t, "fifo", FormatSpec("fifo", NewOptions()))
}

func TestOptions_TypedGetters(t *testing.T) {
	t.Parallel()

	_, opts, err := ParseSpec("x(i=12, f=0.5, s=abc, q=\"7\")")
	require.NoError(t, err)

	i, err := opts.Int("i", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(12), i)

	f, err := opts.Float("f", 0)
	require.NoError(t, err)
	assert.Equal(t, 0.5, f)

	s, err := opts.Text("s", "")
	require.NoError(t, err)
	assert.Equal(t, "abc", s)

	d, err := opts.Int("missing", 9)
	require.NoError(t, err)
	assert.Equal(t, int64(9), d)

	_, err = opts.Int("f", 0)
	require.ErrorIs(t, err, ErrInvalidConfig, "0.5 is not an integer")
	_, err = opts.Int("s", 0)
	require.ErrorIs(t, err, ErrInvalidConfig)

	merged := opts.Merge(func() Options { o := NewOptions(); o.SetInt("i", 1); return o }())
	i, err = merged.Int("i", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), i)
	assert.Len(t, merged.Keys(), 4)
}

func TestNew(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := line(4)

	for _, name := range Names() {
		s, err := New[int, int](ctx, name, g, 2, nil)
		require.NoError(t, err, name)
		require.NotNil(t, s.Terminator())
		assert.True(t, Known(name))
	}

	_, err := New[int, int](ctx, "sweep", g, 2, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.False(t, Known("sweep"))

	_, err = New[int, int](ctx, NameFIFO, g, 0, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSetOptions_RejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, opts, err := ParseSpec("x(bogus=1)")
	require.NoError(t, err)

	for _, name := range Names() {
		s, err := New[int, int](ctx, name, line(4), 1, nil)
		require.NoError(t, err)
		require.ErrorIs(t, s.SetOptions(opts), ErrInvalidConfig, name)
	}
}

func TestFIFO(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	mon := &countingMonitor{}
	s := NewFIFO[int, int](line(5), 1, mon)
	s.AddTasks([]graph.VertexID{3, 1, 4}, noop, 0)
	s.AddTask(Task[int, int]{Vertex: 1, Func: noop}, 0) // pruned

	// --- Act ---
	s.Start()
	var order []graph.VertexID
	for {
		task, st := s.NextTask(0)
		if st == Empty {
			break
		}
		order = append(order, task.Vertex)
		s.CompletedTask(0, task)
		if task.Vertex == 3 {
			s.Callback(0).AddTask(3, noop, 0) // allowed again once dequeued
		}
	}

	// --- Assert ---
	assert.Equal(t, []graph.VertexID{3, 1, 4, 3}, order)
	assert.Equal(t, int64(4), mon.added.Load())
	assert.Equal(t, int64(1), mon.pruned.Load())
	assert.Equal(t, int64(4), mon.scheduled.Load())
	assert.Zero(t, s.Len())
	assert.Panics(t, func() { s.AddTask(Task[int, int]{Vertex: 5, Func: noop}, 0) })
}

func TestPriority(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	mon := &countingMonitor{}
	s := NewPriority[int, int](line(5), 1, mon)
	s.AddTask(Task[int, int]{Vertex: 0, Func: noop}, 1)
	s.AddTask(Task[int, int]{Vertex: 1, Func: noop}, 5)
	s.AddTask(Task[int, int]{Vertex: 2, Func: noop}, 3)
	s.AddTask(Task[int, int]{Vertex: 0, Func: noop}, 10) // promoted
	s.AddTask(Task[int, int]{Vertex: 1, Func: noop}, 2)  // pruned
	s.AddTaskToAll(noop, 0)                              // adds 3 and 4, prunes the rest

	// --- Act ---
	s.Start()
	var order []graph.VertexID
	for {
		task, st := s.NextTask(0)
		if st == Empty {
			break
		}
		order = append(order, task.Vertex)
	}

	// --- Assert ---
	assert.Equal(t, []graph.VertexID{0, 1, 2, 3, 4}, order)
	assert.Equal(t, int64(1), mon.promoted.Load())
	assert.Equal(t, [2]float64{9, 10}, mon.lastPromotion.Load())
	assert.Equal(t, int64(4), mon.pruned.Load())
	assert.Equal(t, int64(5), mon.added.Load())
}

func TestSharedSchedulers_TerminateWhenDrained(t *testing.T) {
	t.Parallel()

	for _, name := range []string{NameFIFO, NamePriority} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			// --- Arrange ---
			const workers, n = 4, 100
			s, err := New[int, int](context.Background(), name, line(n), workers, nil)
			require.NoError(t, err)
			s.AddTaskToAll(noop, 1)
			s.Start()

			// --- Act ---
			var ran atomic.Int64
			var wg sync.WaitGroup
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					term := s.Terminator()
					for {
						task, st := s.NextTask(w)
						if st == Empty {
							term.BeginCriticalSection(w)
							task, st = s.NextTask(w)
							if st == Empty {
								if term.EndCriticalSection(w) {
									return
								}
								continue
							}
							term.CancelCriticalSection(w)
						}
						ran.Add(1)
						s.CompletedTask(w, task)
					}
				}(w)
			}
			wg.Wait()

			// --- Assert ---
			assert.Equal(t, int64(n), ran.Load())
		})
	}
}
