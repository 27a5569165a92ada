// Package logging assembles structured slog loggers and formatting helpers used
// across earthgazer.
//
// It owns the console and JSON handlers, mirrors records into a JSON log file
// when a log directory is configured, and exposes context-aware helpers so
// stage code tags log lines with run IDs, stages, locations, and capture IDs.
// A no-op logger is provided for tests and wiring code that cannot fail.
package logging
