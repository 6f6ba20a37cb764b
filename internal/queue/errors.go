package queue

import "errors"

// ErrJobTerminal is returned when a write targets a job that already reached
// a terminal status. Terminal jobs are immutable.
var ErrJobTerminal = errors.New("job is terminal")

// ErrNotFound is returned when a write targets a job that does not exist.
var ErrNotFound = errors.New("job not found")
