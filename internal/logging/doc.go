// Package logging assembles structured slog loggers and formatting helpers
// used across the labmq daemon and CLI.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and defines the standardized attribute keys so broker, session,
// and dispatch code tag log lines with subsystems, commands, and correlation
// IDs the same way. The package also provides a no-op logger for tests and
// wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so new components
// emit data with the same shape as the rest of the system.
package logging
