// Package termination decides when the engine's workers may stop because no
// work is left.
//
// A worker that finds its scheduler empty enters a critical section with
// BeginCriticalSection, checks the scheduler once more, and then either
// leaves with CancelCriticalSection (work appeared) or calls
// EndCriticalSection, which reports whether the whole run is finished.
package termination

// Terminator is implemented by every scheduler's termination detector.
type Terminator interface {
	// BeginCriticalSection is called by a worker that found no task.
	BeginCriticalSection(workerID int)

	// CancelCriticalSection is called when the re-check found a task.
	CancelCriticalSection(workerID int)

	// EndCriticalSection is called when the re-check found nothing. It may
	// block, and it returns true when the worker should exit.
	EndCriticalSection(workerID int) bool

	// NewJob is called by the scheduler after a task has become visible.
	NewJob()

	// CompletedJob is called by the scheduler after a task finished.
	CompletedJob()

	// Terminate forces every current and future EndCriticalSection to
	// return true. The engine calls it when a run ends for any reason.
	Terminate()

	// Reset returns the terminator to its initial state.
	Reset()
}
