// Package queue persists dubbing jobs in SQLite and defines the job state
// machine: statuses (pending/running/terminal), the fixed stage order, and
// the progress accounting shared between the orchestrator and the API.
//
// The store enforces two invariants the rest of the system relies on:
// terminal jobs are immutable (Update refuses them), and claiming is atomic
// (at most one worker ever owns a running job).
package queue
