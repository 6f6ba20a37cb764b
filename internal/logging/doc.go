// Package logging builds the daemon's slog loggers and standardizes the
// structured field names shared across the pipeline (job id, stage, engine,
// error kind). Console output targets humans tailing the daemon; the json
// format targets log shippers.
package logging
