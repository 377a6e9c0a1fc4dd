// Package scanapi talks to the scan backend that stores uploads and performs
// boundary detection and cropping.
//
// The Client interface is what the workflow consumes; HTTPClient implements it
// over the backend's JSON envelope protocol ({code, message, data, timestamp}).
// Result references are normalized through imageref before they reach callers,
// and failures are wrapped with services markers so the workflow can record a
// user-facing message on the failed item.
package scanapi
