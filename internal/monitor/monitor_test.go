package monitor

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/burstgraph/internal/graph"
)

type recorder struct {
	Nop
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) TaskStart(int, graph.VertexID)  { r.add("start") }
func (r *recorder) TaskFinish(int, graph.VertexID) { r.add("finish") }
func (r *recorder) TaskPruned(graph.VertexID)      { r.add("pruned") }

func TestMultiplexer_FansOut(t *testing.T) {
	t.Parallel()

	a, b := &recorder{}, &recorder{}
	m := NewMultiplexer(a, nil, b)
	require.Equal(t, 2, m.Len())

	m.TaskStart(0, 1)
	m.TaskFinish(0, 1)
	m.TaskPruned(3)
	m.TaskAdded(1, 0) // ignored by the recorders via Nop

	assert.Equal(t, []string{"start", "finish", "pruned"}, a.events)
	assert.Equal(t, a.events, b.events)
}

func TestPrometheus_Counts(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg)
	require.NoError(t, err)

	// --- Act ---
	p.WorkerStart(0)
	p.WorkerStart(1)
	p.TaskStart(0, 5)
	p.TaskStart(0, 6)
	p.TaskFinish(0, 5)
	p.TaskAdded(5, 1)
	p.TaskPromoted(5, 1, 2)
	p.TaskPruned(5)
	p.WorkerExit(1, 10)

	// --- Assert ---
	assert.Equal(t, 2.0, testutil.ToFloat64(p.tasksStarted.WithLabelValues("0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.tasksFinished.WithLabelValues("0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.workersActive))
	assert.Equal(t, 10.0, testutil.ToFloat64(p.workerUpdates.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.tasksAdded))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.tasksPromoted))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.tasksPruned))

	_, err = NewPrometheus(reg)
	require.Error(t, err, "registering twice must fail")
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []string
	args   []any
}

func (f *fakeEmitter) Emit(event string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	f.args = append(f.args, args...)
}

func TestVisualizer_RateLimits(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	em := &fakeEmitter{}
	v := NewVisualizer(em, 0.001, 3)

	// --- Act ---
	for i := 0; i < 10; i++ {
		v.SetVertexValue(graph.VertexID(i), float64(i))
	}
	v.SetVertexValueScale(0, 9)

	// --- Assert ---
	assert.Equal(t, uint64(3), v.Sent())
	assert.Equal(t, uint64(7), v.Dropped())
	require.Len(t, em.events, 4)
	assert.Equal(t, EventVertexScale, em.events[3])
	assert.Equal(t, map[string]any{"vertex": uint32(0), "value": 0.0}, em.args[0])
}

func TestDialVisualizer_RejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := DialVisualizer(context.Background(), DialOptions{URL: "not a url"})
	require.Error(t, err)
}
