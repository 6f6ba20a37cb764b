// Package daemon coordinates the long-running vietdub process.
//
// It wires configuration, queue storage, and the workflow manager into a
// single lifecycle with flock-based locking to prevent multiple instances,
// and serves the HTTP JSON API for job submission, inspection, and
// cancellation.
//
// Keep orchestration logic here: individual pipeline stages live in their
// own packages while the daemon focuses on startup, shutdown, and the
// boundary surface.
package daemon
