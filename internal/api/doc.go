// Package api defines wire-format types and converters for the HTTP API. It
// translates registry items, notifications and workflow status into
// transport-friendly DTOs that a browser front-end can render without
// coupling to internal types.
//
// DTOs use camelCase JSON tags. Statuses are exposed as lowercase strings and
// timestamps use RFC3339 with milliseconds. Source bytes never leave the
// process; items only report whether they came from a file or a reference.
package api
