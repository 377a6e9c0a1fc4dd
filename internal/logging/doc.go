// Package logging assembles structured slog loggers and formatting helpers used
// across scanmaster services.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with item IDs, stages, and correlation IDs automatically. A no-op
// logger is provided for tests and wiring code that cannot fail.
package logging
