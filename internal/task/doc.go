// Package task implements the dispatch engine: an adaptive poll worker
// that leases tasks from the store one at a time, an executor that drives
// the remote stop-then-run call pair, and a completion tracker that
// finalizes task state and consumes source items.
//
// The poller is deliberately single-threaded within a process. The remote
// provider rate-limits per device, so the engine processes exactly one
// task at a time and enforces a tier-dependent cooldown between tasks.
// Scaling out means running more processes against the same store; the
// store's atomic lease acquisition keeps them from colliding.
package task
