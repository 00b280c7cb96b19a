package lock

import "errors"

var (
	// ErrNotFound indicates the token does not identify a live lease
	ErrNotFound = errors.New("lock not found")

	// ErrForbidden indicates the token exists but is not bound to the
	// path it was presented for
	ErrForbidden = errors.New("token not bound to path")
)

// ConflictError reports a lock conflict: the path (or a covered
// descendant) is held by a lease the request did not present a token for.
type ConflictError struct {
	// Path is the conflicting locked path, for the error body's
	// lock-token-submitted detail
	Path string
}

func (e *ConflictError) Error() string {
	return "locked: " + e.Path
}
