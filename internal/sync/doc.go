// Package sync implements the store synchronization pipeline.
//
// One sync run moves a store's catalog data from the commerce platform
// into the search index through five stages:
//
//   - Verify: the store must be active with a usable credential; a
//     verification failure aborts the run before any fetch.
//   - Fetch: every entity type (products, orders, customers) is fetched
//     in parallel with its own timeout. Failures are isolated per type,
//     so a failing type never cancels its siblings.
//   - Transform: fetched records become index documents; malformed
//     records are counted and skipped, never fatal.
//   - Index: documents are upserted per entity type in batches. Only a
//     failure of every entity type fails the run.
//   - Bookkeeping: last-synced checkpoints and namespace stats, best
//     effort only.
//
// A run is successful when at least one entity type was fully fetched
// and indexed. The Result carries per-stage outcomes and per-entity
// counts so callers can see partial success.
//
// External calls go through resilience guards: one circuit breaker and
// retry policy for the commerce platform, another for the index
// service. Scheduling, locking, and retry bookkeeping live in the
// scheduler package; this package only executes one run.
package sync
