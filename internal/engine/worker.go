package engine

import (
	"context"
	"runtime"
	"runtime/debug"

	"github.com/vk/burstgraph/internal/graph"
	"github.com/vk/burstgraph/internal/scheduler"
	"github.com/vk/burstgraph/internal/scope"
)

// approxBatch is how many local updates a worker runs before it adds them to
// the shared approximate counter.
const approxBatch = 128

// worker is the run loop of a single worker goroutine.
func (e *Engine[V, E]) worker(ctx context.Context, rs *runState[V, E], id int, lockThread bool) error {
	logger := e.workerLogger.With("workerID", id)
	logger.Debug("Worker started.")
	if lockThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	e.mon.WorkerStart(id)
	defer func() {
		updates := e.counts[id].n.Load()
		e.mon.WorkerExit(id, updates)
		logger.Debug("Worker finished.", "updates", updates)
	}()

	sched := rs.sched
	term := sched.Terminator()
	cb := sched.Callback(id)

	var ctr uint64
	idle := false
	for e.active.Load() {
		if ctr == 0 || idle {
			if id == 0 {
				e.evaluateSyncQueue(rs)
			}
			stop, err := e.pollTermination(ctx, rs, id, idle)
			if err != nil {
				logger.Error("Terminator function panicked, stopping run.", "error", err)
				return err
			}
			if stop {
				break
			}
			ctr = e.checkInterval()
		}
		ctr--

		task, st := sched.NextTask(id)
		if st == scheduler.Empty {
			idle = true
			term.BeginCriticalSection(id)
			task, st = sched.NextTask(id)
			if st == scheduler.Empty {
				if term.EndCriticalSection(id) {
					e.terminate(TaskDepletion)
					break
				}
				continue
			}
			term.CancelCriticalSection(id)
		}
		idle = false

		if err := e.execute(rs, id, task, cb); err != nil {
			logger.Error("Update function panicked, stopping run.", "vertex", task.Vertex, "error", err)
			return err
		}
	}
	return nil
}

// execute runs one task under its scope. A panic in the update function is
// converted into an *UpdateError and ends the run.
func (e *Engine[V, E]) execute(rs *runState[V, E], id int, task scheduler.Task[V, E], cb scheduler.Callback[V, E]) (err error) {
	var s *scope.Scope[V, E]
	defer func() {
		if r := recover(); r != nil {
			if s != nil {
				rs.scopes.Discard(s)
			}
			err = e.fail(rs, id, task.Vertex, r)
		}
	}()

	s = rs.scopes.GetDefault(id, task.Vertex)
	e.mon.TaskStart(id, task.Vertex)
	task.Func(s, cb)
	rs.scopes.Release(s)
	e.mon.TaskFinish(id, task.Vertex)
	rs.sched.CompletedTask(id, task)

	if n := e.counts[id].n.Add(1); n%approxBatch == 0 {
		e.approx.Add(approxBatch)
	}
	return nil
}

func (e *Engine[V, E]) fail(rs *runState[V, E], id int, v graph.VertexID, payload any) error {
	err := &UpdateError{Worker: id, Vertex: v, Payload: payload, Stack: debug.Stack()}
	e.status.Store(int32(Exception))
	e.active.Store(false)
	rs.sched.Terminator().Terminate()
	return err
}
