package store

import "errors"

// Sentinel errors returned by store operations. Callers match with
// errors.Is; the HTTP layer maps them to 404/409/500.
var (
	// ErrNotFound means the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means a precondition (expected current status) did not
	// hold at commit time. A normal outcome under concurrent operators;
	// callers re-read and reconcile.
	ErrConflict = errors.New("conflict")

	// ErrStoreUnavailable wraps driver-level failures. The store never
	// retries internally.
	ErrStoreUnavailable = errors.New("store unavailable")
)
