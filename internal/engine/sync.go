package engine

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/vk/burstgraph/internal/ctxlog"
	"github.com/vk/burstgraph/internal/graph"
	"github.com/vk/burstgraph/internal/scope"
	"github.com/vk/burstgraph/internal/shared"
)

// SyncSpec describes a parallel reduction over a vertex range whose result
// is published into a shared value.
//
// Reduce folds one vertex into an accumulator and returns the new
// accumulator; it must not mutate acc in place, because every syncer starts
// from the same Zero. Merge combines two partial accumulators. When Merge is
// nil the whole range is folded by a single syncer. Apply receives the
// target's current value and the final accumulator and returns the value to
// publish; it must return the target's element type.
type SyncSpec[V, E any] struct {
	Target shared.Syncable
	Reduce func(s *scope.Scope[V, E], acc any) any
	Merge  func(a, b any) any
	Apply  func(current, acc any) any
	Zero   any

	// Interval is the number of updates between two runs of the sync. Zero
	// runs the sync once at the start of every run.
	Interval uint64

	// RangeLow and RangeHigh bound the folded vertices, inclusive.
	// RangeHigh == graph.InvalidVertex means the last vertex.
	RangeLow  graph.VertexID
	RangeHigh graph.VertexID
}

type syncTask[V, E any] struct {
	spec SyncSpec[V, E]
}

// SetSync registers a sync, replacing any sync registered for the same target.
func (e *Engine[V, E]) SetSync(spec SyncSpec[V, E]) error {
	switch {
	case spec.Target == nil:
		return fmt.Errorf("%w: sync needs a target", ErrInvalidConfig)
	case spec.Reduce == nil || spec.Apply == nil:
		return fmt.Errorf("%w: sync %q needs reduce and apply functions", ErrInvalidConfig, spec.Target.Name())
	case spec.RangeLow > spec.RangeHigh:
		return fmt.Errorf("%w: sync %q has an inverted vertex range [%d, %d]", ErrInvalidConfig, spec.Target.Name(), spec.RangeLow, spec.RangeHigh)
	}
	if e.running.Load() {
		return ErrRunning
	}
	if spec.Merge == nil {
		e.logger.Warn("Sync has no merge function; it will be computed by a single syncer.", "target", spec.Target.Name())
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if id, ok := e.syncIndex[spec.Target]; ok {
		e.syncs[id] = &syncTask[V, E]{spec: spec}
		return nil
	}
	e.syncIndex[spec.Target] = len(e.syncs)
	e.syncs = append(e.syncs, &syncTask[V, E]{spec: spec})
	return nil
}

// SyncNow runs the sync registered for target and waits for it to publish.
// It is only allowed while the engine is not running.
func (e *Engine[V, E]) SyncNow(ctx context.Context, target shared.Syncable) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer e.running.Store(false)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	id, ok := e.syncIndex[target]
	var st *syncTask[V, E]
	if ok {
		st = e.syncs[id]
	}
	e.mu.Unlock()
	if !ok {
		name := "<nil>"
		if target != nil {
			name = target.Name()
		}
		return fmt.Errorf("%w: no sync registered for %q", ErrInvalidConfig, name)
	}

	scopes, err := scope.NewManager(e.g, scope.Null)
	if err != nil {
		return err
	}
	return e.syncAndWait(ctx, e.ensureSyncers(ctx), st, scopes)
}

func (e *Engine[V, E]) syncAndWait(ctx context.Context, pool *syncerPool[V, E], st *syncTask[V, E], scopes *scope.Manager[V, E]) error {
	done := make(chan struct{})
	pool.dispatch(syncRequest[V, E]{task: st, scopes: scopes, done: done})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine[V, E]) ensureSyncers(ctx context.Context) *syncerPool[V, E] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.syncers == nil {
		e.syncers = newSyncerPool(ctx, e, e.cfg.Workers)
	}
	return e.syncers
}

type syncEntry struct {
	id  int
	due uint64
}

// syncQueue is a min-heap of syncs ordered by the approximate update count
// at which they are due.
type syncQueue []syncEntry

func (q syncQueue) Len() int { return len(q) }
func (q syncQueue) Less(i, j int) bool {
	if q[i].due != q[j].due {
		return q[i].due < q[j].due
	}
	return q[i].id < q[j].id
}
func (q syncQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *syncQueue) Push(x any)   { *q = append(*q, x.(syncEntry)) }
func (q *syncQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

func (e *Engine[V, E]) buildSyncQueue(logger *slog.Logger, workers int) {
	e.syncQueue = e.syncQueue[:0]
	minInterval := uint64(math.MaxUint64)
	for id, st := range e.activeSyncs {
		e.syncQueue = append(e.syncQueue, syncEntry{id: id, due: 0})
		if st.spec.Interval > 0 && st.spec.Interval < minInterval {
			minInterval = st.spec.Interval
		}
	}
	heap.Init(&e.syncQueue)
	e.publishNextSyncDue()

	if floor := uint64(workers) * (approxBatch - 1); minInterval < floor {
		logger.Warn("Sync interval is shorter than the engine can honor; syncs will run less often than requested.",
			"interval", minInterval, "minimum", floor)
	}
}

func (e *Engine[V, E]) publishNextSyncDue() {
	if len(e.syncQueue) == 0 {
		e.nextSyncDue.Store(math.MaxUint64)
		return
	}
	e.nextSyncDue.Store(e.syncQueue[0].due)
}

// evaluateSyncQueue hands every due sync to the syncers. Only worker 0
// calls it.
func (e *Engine[V, E]) evaluateSyncQueue(rs *runState[V, E]) {
	approx := e.approx.Load()
	if e.nextSyncDue.Load() > approx {
		return
	}
	for len(e.syncQueue) > 0 && e.syncQueue[0].due <= approx {
		ent := heap.Pop(&e.syncQueue).(syncEntry)
		st := e.activeSyncs[ent.id]
		e.activePool.dispatch(syncRequest[V, E]{task: st, scopes: rs.scopes})
		if st.spec.Interval > 0 {
			heap.Push(&e.syncQueue, syncEntry{id: ent.id, due: approx + st.spec.Interval})
		}
	}
	e.publishNextSyncDue()
}

type syncRequest[V, E any] struct {
	task   *syncTask[V, E]
	scopes *scope.Manager[V, E]
	done   chan struct{}
}

// syncerPool runs syncs on a fixed set of goroutines. Every request is
// delivered to every syncer in the same order, and the syncers work on it
// together.
type syncerPool[V, E any] struct {
	e        *Engine[V, E]
	logger   *slog.Logger
	n        int
	inbox    []chan syncRequest[V, E]
	barrier  *barrier
	partials []any

	dispatchMu sync.Mutex

	// Syncers lock their sub-ranges one after another, in syncer order,
	// so the combined acquisition is ascending like every other lock set.
	turnMu   sync.Mutex
	turnCond *sync.Cond
	turn     int

	wg sync.WaitGroup
}

func newSyncerPool[V, E any](ctx context.Context, e *Engine[V, E], n int) *syncerPool[V, E] {
	p := &syncerPool[V, E]{
		e:        e,
		logger:   ctxlog.FromContext(ctx),
		n:        n,
		inbox:    make([]chan syncRequest[V, E], n),
		barrier:  newBarrier(n),
		partials: make([]any, n),
	}
	p.turnCond = sync.NewCond(&p.turnMu)
	for i := 0; i < n; i++ {
		p.inbox[i] = make(chan syncRequest[V, E], 64)
		p.wg.Add(1)
		go p.loop(i)
	}
	p.logger.Debug("Syncer pool started.", "syncers", n)
	return p
}

func (p *syncerPool[V, E]) dispatch(req syncRequest[V, E]) {
	p.dispatchMu.Lock()
	defer p.dispatchMu.Unlock()
	for _, ch := range p.inbox {
		ch <- req
	}
}

func (p *syncerPool[V, E]) close() {
	p.dispatchMu.Lock()
	for _, ch := range p.inbox {
		close(ch)
	}
	p.dispatchMu.Unlock()
	p.wg.Wait()
	p.logger.Debug("Syncer pool stopped.")
}

func (p *syncerPool[V, E]) loop(id int) {
	defer p.wg.Done()
	for req := range p.inbox[id] {
		p.run(id, req)
	}
}

func (p *syncerPool[V, E]) waitTurn(id int) {
	p.turnMu.Lock()
	for p.turn != id {
		p.turnCond.Wait()
	}
	p.turnMu.Unlock()
}

func (p *syncerPool[V, E]) passTurn() {
	p.turnMu.Lock()
	p.turn = (p.turn + 1) % p.n
	p.turnCond.Broadcast()
	p.turnMu.Unlock()
}

// bounds returns the clamped inclusive range of a sync and whether it is empty.
func (p *syncerPool[V, E]) bounds(spec *SyncSpec[V, E]) (low, high uint64, empty bool) {
	n := uint64(p.e.g.NumVertices())
	low, high = uint64(spec.RangeLow), uint64(spec.RangeHigh)
	if spec.RangeHigh == graph.InvalidVertex || high >= n {
		if n == 0 {
			return 0, 0, true
		}
		high = n - 1
	}
	return low, high, low > high
}

// run executes one sync on syncer id.
func (p *syncerPool[V, E]) run(id int, req syncRequest[V, E]) {
	spec := &req.task.spec
	low, high, empty := p.bounds(spec)

	// This syncer's slice is [myLow, myEnd).
	var myLow, myEnd uint64
	if !empty {
		count := high - low + 1
		myLow = low + count*uint64(id)/uint64(p.n)
		myEnd = low + count*uint64(id+1)/uint64(p.n)
	}
	locked := myEnd > myLow

	p.waitTurn(id)
	if locked {
		req.scopes.AcquireRange(graph.VertexID(myLow), graph.VertexID(myEnd-1))
	}
	p.passTurn()
	p.barrier.Wait()

	if spec.Merge != nil {
		acc := spec.Zero
		for v := myLow; v < myEnd; v++ {
			acc = p.fold(req, id, graph.VertexID(v), acc)
		}
		p.partials[id] = acc
		p.barrier.Wait()
		if id == 0 {
			result := p.partials[0]
			for j := 1; j < p.n; j++ {
				result = spec.Merge(result, p.partials[j])
			}
			p.publish(spec, result)
		}
	} else if id == 0 {
		acc := spec.Zero
		if !empty {
			for v := low; v <= high; v++ {
				acc = p.fold(req, id, graph.VertexID(v), acc)
			}
		}
		p.publish(spec, acc)
	}

	if locked {
		req.scopes.ReleaseRange(graph.VertexID(myLow), graph.VertexID(myEnd-1))
	}
	p.barrier.Wait()
	if id == 0 && req.done != nil {
		close(req.done)
	}
}

func (p *syncerPool[V, E]) fold(req syncRequest[V, E], id int, v graph.VertexID, acc any) any {
	s := req.scopes.Get(p.n+id, v, scope.Null)
	acc = req.task.spec.Reduce(s, acc)
	req.scopes.Release(s)
	return acc
}

func (p *syncerPool[V, E]) publish(spec *SyncSpec[V, E], acc any) {
	spec.Target.ApplyAny(spec.Apply, acc)
	p.e.numSyncs.Add(1)
}
