// Package lock defines the lock registry contract consumed by the WebDAV
// protocol engine, and the token semantics shared by all registries.
//
// The registry is the single serialization point for lock state: Check
// followed by a mutating storage call must be atomic with respect to
// concurrent lock acquisition on overlapping paths, and the registry is
// responsible for that atomicity. The engine holds no mutex of its own.
package lock

import (
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/davfs/pkg/davpath"
)

// Lock is one active lock lease.
type Lock struct {
	// Token is the opaque identifier proving ownership,
	// format "opaquelocktoken:<uuid>"
	Token string

	// Path is the locked node
	Path *davpath.Path

	// DepthInfinity extends the lock over all descendants
	DepthInfinity bool

	// Exclusive distinguishes exclusive from shared mode
	Exclusive bool

	// Owner is the client-supplied owner description (opaque XML
	// fragment from the lock request body, or empty)
	Owner string

	// Principal is the authenticated principal that took the lock, if
	// any; attribution only, never evaluated
	Principal string

	// Timeout is the granted lease duration
	Timeout time.Duration

	// Expires is the wall-clock lease deadline
	Expires time.Time
}

// Expired reports whether the lease has lapsed. Registries discard
// expired locks lazily on access; the engine never renews implicitly.
func (l *Lock) Expired(now time.Time) bool {
	return now.After(l.Expires)
}

// NewToken generates a fresh lock token.
func NewToken() string {
	return "opaquelocktoken:" + uuid.NewString()
}

// Registry is the capability set for acquiring, refreshing, releasing and
// checking locks. Implementations must be safe for concurrent use and
// must serialize conflicting Check/Lock transitions per path.
type Registry interface {
	// Check reports whether path may be mutated by a request presenting
	// the given tokens. With includeChildren it also covers descendants
	// (DELETE, MOVE source); parents holding depth-infinity locks always
	// count against the path. Returns *ConflictError on a conflict, nil
	// when the mutation may proceed.
	Check(path *davpath.Path, includeChildren bool, tokens []string) error

	// Lock acquires a new lease. An infinite-depth exclusive lock on a
	// collection conflicts with any lock at or below the path. Returns
	// *ConflictError when conflicting leases exist.
	Lock(path *davpath.Path, depthInfinity, exclusive bool, owner, principal string, timeout time.Duration) (*Lock, error)

	// Refresh extends the lease identified by token on path.
	// Returns ErrNotFound for an unknown or expired token.
	Refresh(path *davpath.Path, token string, timeout time.Duration) (*Lock, error)

	// Unlock releases the lease identified by token. ErrNotFound for an
	// unknown token, ErrForbidden when the token exists but is not bound
	// to path.
	Unlock(path *davpath.Path, token string) error

	// Discover lists the active locks covering path, including
	// depth-infinity locks held on ancestors. Used for lockdiscovery.
	Discover(path *davpath.Path) []Lock

	// Valid reports whether token is a live lease bound to path or to an
	// ancestor whose depth covers path. The conditional evaluator uses
	// this to verify token-possession assertions.
	Valid(path *davpath.Path, token string) bool
}
