// Package notifications keeps the transient, auto-expiring messages shown to
// users and optionally mirrors them to ntfy.
//
// A Sink holds per-item outcome messages (success or error) for a fixed TTL.
// A Publisher delivers workflow events over HTTP to the ntfy topic configured
// in config.toml and degrades to a no-op when no topic is set. Workflow code
// depends only on the Sink methods and the Publisher interface.
package notifications
