// Package imageref classifies and normalizes image references returned by the
// scan backend.
//
// References arrive as absolute URLs, data URIs, server-relative paths, or bare
// base64 payloads. Normalize turns bare base64 into a displayable data URI,
// resolves relative paths against the backend base URL, and passes URLs and
// data URIs through unchanged. Tagged references (explicit kind plus value)
// skip the guesswork entirely.
package imageref
