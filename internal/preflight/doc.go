// Package preflight provides readiness checks for the filesystem paths and
// services scanmaster depends on.
//
// `scanmaster check` prints every result and `scanmaster serve` logs failing
// checks at startup. Checks for optional features report Optional so callers
// can tell a degraded setup from a broken one.
package preflight
