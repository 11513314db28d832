// Package logging assembles structured slog loggers and formatting helpers used
// across emlwatch.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so worker tasks automatically
// tag log lines with the candidate path and a correlation ID. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
