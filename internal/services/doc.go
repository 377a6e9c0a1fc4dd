// Package services defines shared utilities consumed by the processing
// pipeline and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp item IDs, pipeline stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so per-item failures carry
//     a classification (transport, validation, timeout, ...) and a
//     user-facing message that the queue stores on the failed item.
//
// Use these helpers when wiring new pipeline steps so error reporting and
// observability stay uniform across the queue.
package services
