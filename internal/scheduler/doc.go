// Package scheduler owns the background sync loop and the manual
// trigger surface.
//
// The scheduler polls the job store on a jittered tick, selects due
// jobs in priority order, and dispatches them in small batches with an
// inter-batch delay. Every run, scheduled or manual, takes the store's
// lock first and goes through the same state transitions afterwards:
// completed runs are re-armed at the priority's interval, failed runs
// back off exponentially, and a job that exhausts its retries is paused
// with the store flagged for reconnection.
//
// Manual triggers fail fast: when the store is already locked the
// caller gets a structured conflict naming the holder, and the job's
// retry bookkeeping is untouched. A held lock is never bypassed.
//
// The scheduler is a plain object owned by the entry point. Job and
// lock storage are injected, the clock is swappable, and Stop drains
// all dispatched work before returning.
package scheduler
