// Package daemon runs the long-lived scanmaster process behind `scanmaster
// serve`.
//
// It owns one session (registry, workflow manager and notification sink),
// exposes it over a JSON HTTP API and holds a flock-based lock so only one
// instance serves a data directory at a time.
//
// Keep request plumbing here. Queue semantics belong to the workflow and
// queue packages, and the session package is the only surface handlers call.
package daemon
