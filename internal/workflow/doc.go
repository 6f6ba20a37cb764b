// Package workflow coordinates queue processing: a pool of workers claims
// pending jobs, drives each one through the pipeline stages in order, and
// owns every job row write. Stage executors compute; the manager persists.
//
// The manager enforces the processing policy: per-attempt stage timeouts,
// bounded retries with exponential backoff for retryable failure kinds, a
// weighted semaphore capping concurrent model-bound stages, heartbeats with
// stale-job reclamation, and cooperative cancellation checked between
// stages and propagated into running ones.
package workflow
