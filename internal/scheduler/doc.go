// Package scheduler queues and dispatches conversion work. The
// background Scheduler runs a fixed worker pool with per-artifact
// coalescing; BulkScheduler walks whole batches, skipping finished
// assets and deferring past quota limits.
package scheduler
