// Package scheduler decides which vertex the engine's workers update next.
//
// # Why Scheduler Exists
//
// The engine runs update functions on vertices but does not decide the order.
// Different algorithms want different orders: sweeps over every vertex,
// first-come-first-served work lists, or "largest residual first". A
// Scheduler encapsulates one such policy behind a single interface so the
// engine's worker loop stays the same for all of them.
//
// # How It Works
//
// Before a run, the application (through the engine) seeds the scheduler with
// tasks. A task is a vertex plus the update function to run on it. During the
// run every worker repeatedly:
//  1. Calls NextTask to obtain a task, or learns that none is available
//  2. Runs the update function under a scope
//  3. Calls CompletedTask
//
// Update functions may schedule more work through the Callback they receive.
// When a worker finds no task it consults the scheduler's Terminator to learn
// whether the run is over or whether it should keep polling.
//
// # Implementations
//
//   - **fifo:** shared first-in-first-out queue, one pending task per vertex
//   - **priority:** shared max-heap; re-adding a queued vertex can raise its priority
//   - **round_robin:** sweeps every vertex in a fixed order for a number of iterations
//
// Schedulers are built by name with New, and tuned with an option string such
// as "round_robin(max_iterations=3, step=7)" (see ParseSpec).
package scheduler
