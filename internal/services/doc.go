// Package services defines shared utilities consumed by the stage executors
// and external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - The classified error type plus Classify, which translate stage failures
//     into the kinds the orchestrator's retry policy and the status API use.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
