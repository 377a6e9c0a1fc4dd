// Package backend implements the reference scan backend served by
// `scanmaster backend`.
//
// It speaks the envelope protocol consumed by scanapi: uploads are stored in
// SQLite and answered with a server path, detection picks a box inset by a
// random 5-15% margin, and crops come back as bare base64 JPEG while
// previews are served from /previews. Latency and a failure rate are
// simulated from the [mock_backend] config section.
package backend
