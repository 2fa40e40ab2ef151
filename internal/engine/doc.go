// Package engine runs update functions over a graph with a pool of worker
// goroutines.
//
// # How It Works
//
// Start builds a scheduler and a scope manager for the run, seeds the
// scheduler with the tasks queued through Tasks(), and launches one goroutine
// per worker. Each worker repeatedly asks the scheduler for a task, acquires
// the task's scope, runs the update function, and releases the scope. The
// run ends with exactly one ExecStatus:
//   - **TaskDepletion:** the scheduler's terminator reported no work left
//   - **Timeout:** the configured timeout elapsed
//   - **TaskBudgetExceeded:** more updates than the configured budget ran
//   - **TermFunction:** a user terminator returned true
//   - **ForcedAbort:** Stop was called or the context was cancelled
//   - **Exception:** an update function panicked
//
// # Syncs
//
// A sync folds vertex data over a vertex range into a shared.Value while
// updates keep running elsewhere. Syncs are registered with SetSync and fire
// every Interval updates (counted approximately across workers). A pool of
// syncer goroutines, one per worker, splits each range between them, folds
// its part under range locks, and syncer 0 merges the partial results and
// publishes them. Every sync runs once more after the workers stop.
//
// # Counting
//
// Each worker keeps an exact update count. A shared approximate counter is
// bumped in batches so workers do not contend on it; it drives sync
// scheduling and how often workers poll the termination conditions.
package engine
