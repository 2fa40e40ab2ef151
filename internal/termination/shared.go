package termination

import (
	"sync"
	"sync/atomic"
)

// State is the phase of a Shared terminator.
type State int32

const (
	// Active means at least one worker is running tasks.
	Active State = iota
	// Checking means some worker is inside a critical section.
	Checking
	// Terminated means the run is over.
	Terminated
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Checking:
		return "checking"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Shared detects termination for schedulers whose workers all draw from
// shared queues. The last worker to go idle while every other worker sleeps
// terminates the run; a new job wakes the sleepers.
type Shared struct {
	workers int

	mu     sync.Mutex
	cond   *sync.Cond
	active int
	done   bool

	sleeping atomic.Int32
}

// NewShared creates a terminator for the given number of workers.
func NewShared(workers int) *Shared {
	t := &Shared{workers: workers, active: workers}
	t.cond = sync.NewCond(&t.mu)
	return t
}

func (t *Shared) BeginCriticalSection(int) {
	// Announce before locking so that NewJob, which checks sleeping without
	// the lock, cannot miss a worker that is about to wait.
	t.sleeping.Add(1)
	t.mu.Lock()
}

func (t *Shared) CancelCriticalSection(int) {
	t.mu.Unlock()
	t.sleeping.Add(-1)
}

func (t *Shared) EndCriticalSection(int) bool {
	defer t.sleeping.Add(-1)
	defer t.mu.Unlock()

	if t.done {
		return true
	}
	t.active--
	if t.active == 0 {
		t.done = true
		t.cond.Broadcast()
		return true
	}
	t.cond.Wait()
	if !t.done {
		t.active++
	}
	return t.done
}

func (t *Shared) NewJob() {
	if t.sleeping.Load() == 0 {
		return
	}
	t.mu.Lock()
	if t.active < t.workers {
		t.cond.Broadcast()
	}
	t.mu.Unlock()
}

func (t *Shared) CompletedJob() {}

func (t *Shared) Terminate() {
	t.mu.Lock()
	t.done = true
	t.cond.Broadcast()
	t.mu.Unlock()
}

func (t *Shared) Reset() {
	t.mu.Lock()
	t.done = false
	t.active = t.workers
	t.mu.Unlock()
}

// State reports the current phase.
func (t *Shared) State() State {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	switch {
	case done:
		return Terminated
	case t.sleeping.Load() > 0:
		return Checking
	default:
		return Active
	}
}
