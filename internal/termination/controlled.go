package termination

import (
	"sync"
	"time"
)

// idleWait bounds how long an idle worker parks in EndCriticalSection before
// it goes back to polling the scheduler and the engine's stop conditions.
const idleWait = time.Millisecond

// Controlled leaves the decision to the scheduler: the run ends when the
// scheduler calls Complete. Idle workers park until then, waking up at least
// every idleWait.
type Controlled struct {
	mu   sync.Mutex
	done bool
	wake chan struct{}
}

// NewControlled returns a terminator that waits for Complete.
func NewControlled() *Controlled { return &Controlled{wake: make(chan struct{})} }

// Complete marks the run as finished.
func (t *Controlled) Complete() { t.finish() }

// Done reports whether Complete or Terminate was called.
func (t *Controlled) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *Controlled) finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.done {
		t.done = true
		close(t.wake)
	}
}

func (t *Controlled) BeginCriticalSection(int)  {}
func (t *Controlled) CancelCriticalSection(int) {}

func (t *Controlled) EndCriticalSection(int) bool {
	t.mu.Lock()
	done, wake := t.done, t.wake
	t.mu.Unlock()
	if done {
		return true
	}

	timer := time.NewTimer(idleWait)
	defer timer.Stop()
	select {
	case <-wake:
		return true
	case <-timer.C:
		return false
	}
}

func (t *Controlled) NewJob()       {}
func (t *Controlled) CompletedJob() {}
func (t *Controlled) Terminate()    { t.finish() }

func (t *Controlled) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		t.done = false
		t.wake = make(chan struct{})
	}
}
