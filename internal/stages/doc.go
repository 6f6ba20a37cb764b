// Package stages implements the six pipeline stage executors: download,
// separate, transcribe, translate, synthesize, and mux. Each executor reads
// the artifacts of earlier stages from the job's staging layout, writes its
// own outputs under its work directory, and classifies failures through the
// services error taxonomy so the workflow manager can decide on retries.
package stages
