// Command vietdub is the CLI and daemon entry point for the dubbing
// pipeline. The daemon subcommand runs the queue workers and HTTP API; the
// remaining subcommands operate on the shared SQLite queue directly, so
// they work with or without a running daemon.
package main
