// Package queue holds the in-memory item registry and the item lifecycle.
//
// The Registry keeps work items in insertion order and is the single writer of
// item state: every mutation goes through Update, which applies a patch to the
// current stored item under the registry lock and checks the result invariants
// before committing. Items carry the immutable source payload, the lifecycle
// status, the remote reference assigned by the scan backend, ordered results,
// and the error message of a failed attempt.
//
// Status transitions are expressed as methods on Item (BeginUpload, BeginDetect,
// BeginCrop, Complete, Fail, ResetForRetry) so the state machine lives in one
// place. Queue state is transient and is never persisted.
package queue
