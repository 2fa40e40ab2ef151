package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vk/burstgraph/internal/ctxlog"
	"github.com/vk/burstgraph/internal/graph"
	"github.com/vk/burstgraph/internal/monitor"
	"github.com/vk/burstgraph/internal/scheduler"
	"github.com/vk/burstgraph/internal/scope"
	"github.com/vk/burstgraph/internal/shared"
)

// Metrics describes the most recent run.
type Metrics struct {
	RunID             string
	UpdateCounts      []uint64
	Updates           uint64
	Runtime           time.Duration
	TerminationReason ExecStatus
	NumVertices       int
	NumEdges          int
	NumSyncs          uint64
	Iterations        uint64
}

type paddedCounter struct {
	n atomic.Uint64
	_ [56]byte
}

// runState is what workers and syncers need from the current run.
type runState[V, E any] struct {
	sched  scheduler.Scheduler[V, E]
	scopes *scope.Manager[V, E]
}

// Engine runs update functions over a graph. It is reusable: Start may be
// called again after a run ended, with new tasks.
type Engine[V, E any] struct {
	g      graph.Graph[V, E]
	logger *slog.Logger
	tasks  TaskBuffer[V, E]

	// mu guards the settings below, which may only change between runs.
	mu          sync.Mutex
	cfg         parsedConfig
	terminators []func() bool
	mon         *monitor.Multiplexer
	syncs       []*syncTask[V, E]
	syncIndex   map[shared.Syncable]int
	syncers     *syncerPool[V, E]
	closed      bool
	metrics     Metrics

	running atomic.Bool
	active  atomic.Bool
	status  atomic.Int32
	run     atomic.Pointer[runState[V, E]]

	// Snapshotted at Start for the workers.
	timeout      time.Duration
	budget       uint64
	activeTerms  []func() bool
	startTime    time.Time
	counts       []paddedCounter
	approx       atomic.Uint64
	lastCheckMs  atomic.Int64
	numSyncs     atomic.Uint64
	syncQueue    syncQueue
	nextSyncDue  atomic.Uint64
	activeSyncs  []*syncTask[V, E]
	activePool   *syncerPool[V, E]
	workerLogger *slog.Logger
}

// New creates an engine over g. The logger stored in ctx is used for
// messages outside of runs.
func New[V, E any](ctx context.Context, g graph.Graph[V, E], cfg Config) (*Engine[V, E], error) {
	pc, err := parseConfig(cfg)
	if err != nil {
		return nil, err
	}
	e := &Engine[V, E]{
		g:         g,
		logger:    ctxlog.FromContext(ctx),
		cfg:       pc,
		mon:       monitor.NewMultiplexer(),
		syncIndex: make(map[shared.Syncable]int),
		counts:    make([]paddedCounter, pc.Workers),
	}
	e.lastCheckMs.Store(-1)
	return e, nil
}

// Tasks returns the buffer that seeds the next run's scheduler.
func (e *Engine[V, E]) Tasks() *TaskBuffer[V, E] { return &e.tasks }

// Workers returns the number of workers.
func (e *Engine[V, E]) Workers() int { return e.cfg.Workers }

// SetTimeout sets the run timeout for subsequent runs. Zero disables it.
func (e *Engine[V, E]) SetTimeout(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Timeout = d
}

// SetTaskBudget sets the update budget for subsequent runs. Zero disables it.
func (e *Engine[V, E]) SetTaskBudget(n uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.TaskBudget = n
}

// SetScheduler replaces the scheduler spec for subsequent runs.
func (e *Engine[V, E]) SetScheduler(spec string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg := e.cfg.Config
	cfg.Scheduler = spec
	pc, err := parseConfig(cfg)
	if err != nil {
		return err
	}
	e.cfg = pc
	return nil
}

// SetScope replaces the default consistency level for subsequent runs.
func (e *Engine[V, E]) SetScope(level string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg := e.cfg.Config
	cfg.Scope = level
	pc, err := parseConfig(cfg)
	if err != nil {
		return err
	}
	e.cfg = pc
	return nil
}

// SetCPUAffinity toggles locking workers to OS threads.
func (e *Engine[V, E]) SetCPUAffinity(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.CPUAffinity = on
}

// AddTerminator registers fn, which is polled by workers during runs. The
// run ends with TermFunction as soon as fn returns true. fn must be safe for
// concurrent use.
func (e *Engine[V, E]) AddTerminator(fn func() bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.terminators = append(e.terminators, fn)
}

// ClearTerminators removes every terminator added with AddTerminator.
func (e *Engine[V, E]) ClearTerminators() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.terminators = nil
}

// RegisterMonitor adds m to the observers of subsequent runs.
func (e *Engine[V, E]) RegisterMonitor(m monitor.Monitor) error {
	if e.running.Load() {
		return ErrRunning
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mon.Add(m)
	return nil
}

// Stop asks a running engine to finish. Workers notice it the next time
// they poll, so a few more updates may run. It has no effect when idle.
func (e *Engine[V, E]) Stop() {
	if e.running.Load() {
		e.terminate(ForcedAbort)
	}
}

// LastUpdateCount returns the exact number of updates in the current or
// most recent run.
func (e *Engine[V, E]) LastUpdateCount() uint64 {
	var total uint64
	for i := range e.counts {
		total += e.counts[i].n.Load()
	}
	return total
}

// ApproximateLastUpdateCount returns the batched update counter; it lags the
// exact count by less than one batch per worker.
func (e *Engine[V, E]) ApproximateLastUpdateCount() uint64 { return e.approx.Load() }

// LastExecStatus returns why the most recent run ended.
func (e *Engine[V, E]) LastExecStatus() ExecStatus { return ExecStatus(e.status.Load()) }

// Metrics returns the metrics of the most recent completed run.
func (e *Engine[V, E]) Metrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.metrics
	m.UpdateCounts = slices.Clone(m.UpdateCounts)
	return m
}

// Close stops the syncer goroutines. The engine cannot be used afterwards.
func (e *Engine[V, E]) Close() error {
	if e.running.Load() {
		return ErrRunning
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.syncers != nil {
		e.syncers.close()
		e.syncers = nil
	}
	return nil
}

// terminate records reason unless another reason was recorded first, and
// makes every worker leave its loop.
func (e *Engine[V, E]) terminate(reason ExecStatus) {
	e.status.CompareAndSwap(int32(Unset), int32(reason))
	e.active.Store(false)
	if rs := e.run.Load(); rs != nil {
		rs.sched.Terminator().Terminate()
	}
}

// Start runs the engine until a termination condition fires. Configuration
// problems are returned before any task runs. If an update function panics,
// the first panic is returned as an *UpdateError after every worker stopped.
// Start panics if a synced shared value is still referenced by a Ref.
func (e *Engine[V, E]) Start(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer e.running.Store(false)
	e.status.Store(int32(Unset))
	e.active.Store(true)
	defer e.active.Store(false)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	cfg := e.cfg
	terms := slices.Clone(e.terminators)
	syncs := slices.Clone(e.syncs)
	mon := e.mon
	e.mu.Unlock()

	runID := uuid.NewString()
	ctx = ctxlog.With(ctx, "runID", runID)
	logger := ctxlog.FromContext(ctx)

	sched, err := scheduler.New(ctx, cfg.schedName, e.g, cfg.Workers, mon)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := sched.SetOptions(cfg.schedOpts); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	e.g.Finalize()
	scopes, err := scope.NewManager(e.g, cfg.consistency)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	for _, st := range syncs {
		if !st.spec.Target.IsUnique() {
			panic(fmt.Sprintf("engine: shared value %q is still referenced; release every Ref before Start", st.spec.Target.Name()))
		}
	}

	pending := e.tasks.take()
	if err := e.seed(sched, pending); err != nil {
		e.tasks.restore(pending)
		return err
	}

	var pool *syncerPool[V, E]
	if len(syncs) > 0 {
		pool = e.ensureSyncers(ctx)
	}

	// Reset per-run state before any worker can observe it.
	for i := range e.counts {
		e.counts[i].n.Store(0)
	}
	e.approx.Store(0)
	e.numSyncs.Store(0)
	e.lastCheckMs.Store(-1)
	e.timeout = cfg.Timeout
	e.budget = cfg.TaskBudget
	e.activeTerms = terms
	e.activeSyncs = syncs
	e.activePool = pool
	e.workerLogger = logger
	e.buildSyncQueue(logger, cfg.Workers)

	sched.Start()
	rs := &runState[V, E]{sched: sched, scopes: scopes}
	e.run.Store(rs)
	e.startTime = time.Now()

	logger.Info("🚀 Starting engine run.",
		"workers", cfg.Workers, "scheduler", scheduler.FormatSpec(cfg.schedName, cfg.schedOpts),
		"scope", cfg.consistency.String(), "vertices", e.g.NumVertices(), "edges", e.g.NumEdges(),
		"timeout", cfg.Timeout, "task_budget", cfg.TaskBudget)

	runErr := e.runWorkers(ctx, rs, cfg)
	e.active.Store(false)
	e.status.CompareAndSwap(int32(Unset), int32(TaskDepletion))
	elapsed := time.Since(e.startTime)

	// Flush every sync so the shared values reflect the final graph state.
	for _, st := range syncs {
		if err := e.syncAndWait(context.WithoutCancel(ctx), pool, st, scopes); err != nil {
			logger.Error("Final sync failed.", "target", st.spec.Target.Name(), "error", err)
		}
	}
	e.run.Store(nil)

	m := Metrics{
		RunID:             runID,
		UpdateCounts:      make([]uint64, len(e.counts)),
		Runtime:           elapsed,
		TerminationReason: e.LastExecStatus(),
		NumVertices:       e.g.NumVertices(),
		NumEdges:          e.g.NumEdges(),
		NumSyncs:          e.numSyncs.Load(),
	}
	for i := range e.counts {
		m.UpdateCounts[i] = e.counts[i].n.Load()
		m.Updates += m.UpdateCounts[i]
	}
	if ic, ok := sched.(scheduler.IterationCounter); ok {
		m.Iterations = ic.Iterations()
	}
	e.mu.Lock()
	e.metrics = m
	e.mu.Unlock()

	logger.Info("🏁 Engine run finished.",
		"reason", m.TerminationReason.String(), "updates", m.Updates,
		"runtime", m.Runtime, "syncs", m.NumSyncs)
	return runErr
}

func (e *Engine[V, E]) seed(sched scheduler.Scheduler[V, E], pending []pendingTasks[V, E]) error {
	n := e.g.NumVertices()
	for _, p := range pending {
		if p.fn == nil {
			return fmt.Errorf("%w: task without an update function", ErrInvalidConfig)
		}
		for _, v := range p.vertices {
			if int(v) >= n {
				return fmt.Errorf("%w: task vertex %d out of range [0, %d)", ErrInvalidConfig, v, n)
			}
		}
	}
	for _, p := range pending {
		if p.all {
			sched.AddTaskToAll(p.fn, p.priority)
		} else {
			sched.AddTasks(p.vertices, p.fn, p.priority)
		}
	}
	return nil
}

func (e *Engine[V, E]) runWorkers(ctx context.Context, rs *runState[V, E], cfg parsedConfig) error {
	stop := context.AfterFunc(ctx, func() { e.terminate(ForcedAbort) })
	defer stop()

	var g errgroup.Group
	for w := 0; w < cfg.Workers; w++ {
		g.Go(func() error {
			return e.worker(ctx, rs, w, cfg.CPUAffinity)
		})
	}
	return g.Wait()
}

// checkInterval returns how many tasks a worker may run before it polls the
// termination conditions again. Faster runs poll less often, but never so
// rarely that a due sync would be noticed late.
func (e *Engine[V, E]) checkInterval() uint64 {
	approx := e.approx.Load()
	elapsed := uint64(time.Since(e.startTime).Milliseconds())
	ctr := 1 + ((approx+16000)/(elapsed+1000))*100
	next := e.nextSyncDue.Load()
	switch {
	case next == math.MaxUint64:
	case next <= approx:
		ctr = 1
	default:
		if c := 1 + (next-approx)/uint64(len(e.counts)); c < ctr {
			ctr = c
		}
	}
	return ctr
}

// pollTermination evaluates the termination conditions. Terminator
// functions run at most once per millisecond across all workers; an idle
// worker additionally checks cancellation, the timeout and the task budget on
// every call. A panicking terminator function ends the run like a panicking
// update function.
func (e *Engine[V, E]) pollTermination(ctx context.Context, rs *runState[V, E], id int, idle bool) (bool, error) {
	if !e.active.Load() {
		return true, nil
	}
	now := time.Since(e.startTime).Milliseconds()
	last := e.lastCheckMs.Load()
	due := now > last && e.lastCheckMs.CompareAndSwap(last, now)
	if !due && !idle {
		return false, nil
	}

	switch {
	case ctx.Err() != nil:
		e.terminate(ForcedAbort)
	case e.timeout > 0 && time.Since(e.startTime) >= e.timeout:
		e.terminate(Timeout)
	case e.budget > 0 && e.LastUpdateCount() > e.budget:
		e.terminate(TaskBudgetExceeded)
	case due:
		fired, err := e.runTerminators(rs, id)
		if err != nil {
			return true, err
		}
		if fired {
			e.terminate(TermFunction)
		}
	}
	return !e.active.Load(), nil
}

func (e *Engine[V, E]) runTerminators(rs *runState[V, E], id int) (fired bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = e.fail(rs, id, graph.InvalidVertex, r)
		}
	}()
	for _, fn := range e.activeTerms {
		if fn() {
			return true, nil
		}
	}
	return false, nil
}
