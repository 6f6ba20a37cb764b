// Package api defines the transport DTOs shared by the daemon's HTTP
// surface and the CLI, plus the submission workflow that validates requests
// before they reach the queue.
package api
