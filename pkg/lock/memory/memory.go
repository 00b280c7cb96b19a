// Package memory implements the lock registry contract with in-process
// state. Leases die with the process; pair it with the memory storage
// backend, or with any backend when lock persistence across restarts is
// not needed.
package memory

import (
	"strings"
	"sync"
	"time"

	"github.com/marmos91/davfs/pkg/davpath"
	"github.com/marmos91/davfs/pkg/lock"
)

// Registry keeps all leases in a map keyed by canonical path. A single
// mutex serializes every state transition, which is what gives the
// engine its check-then-mutate atomicity guarantee.
type Registry struct {
	mu    sync.Mutex
	locks map[string][]*lock.Lock

	// now is swappable for expiry tests
	now func() time.Time
}

// New creates an empty in-memory lock registry.
func New() *Registry {
	return &Registry{
		locks: make(map[string][]*lock.Lock),
		now:   time.Now,
	}
}

// keyOf canonicalizes a path for map lookup, ignoring collection intent.
func keyOf(p *davpath.Path) string {
	return "/" + strings.Join(p.Segments(), "/")
}

// sweep drops expired leases. Caller holds the mutex.
func (r *Registry) sweep() {
	now := r.now()
	for key, leases := range r.locks {
		live := leases[:0]
		for _, l := range leases {
			if !l.Expired(now) {
				live = append(live, l)
			}
		}
		if len(live) == 0 {
			delete(r.locks, key)
		} else {
			r.locks[key] = live
		}
	}
}

func hasToken(tokens []string, token string) bool {
	for _, t := range tokens {
		if t == token {
			return true
		}
	}
	return false
}

// covering returns the leases that protect path: leases on the path
// itself plus depth-infinity leases on ancestors. Caller holds the mutex.
func (r *Registry) covering(path *davpath.Path) []*lock.Lock {
	var out []*lock.Lock
	out = append(out, r.locks[keyOf(path)]...)
	for _, leases := range r.locks {
		for _, l := range leases {
			if l.DepthInfinity && l.Path.IsAncestorOf(path) {
				out = append(out, l)
			}
		}
	}
	return out
}

// anyTokenHeld reports whether the request presented the token of at
// least one lease in the group. Shared lock holders present only their
// own token, never their co-holders'.
func anyTokenHeld(leases []*lock.Lock, tokens []string) bool {
	for _, l := range leases {
		if hasToken(tokens, l.Token) {
			return true
		}
	}
	return false
}

func (r *Registry) Check(path *davpath.Path, includeChildren bool, tokens []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep()

	// a locked resource admits the mutation when any one covering lease
	// is presented; exclusivity is enforced at Lock time, so a presented
	// shared lease cannot mask a concurrent exclusive one
	if covering := r.covering(path); len(covering) > 0 && !anyTokenHeld(covering, tokens) {
		return &lock.ConflictError{Path: covering[0].Path.String()}
	}
	if includeChildren {
		for _, leases := range r.locks {
			if len(leases) == 0 || !path.IsAncestorOf(leases[0].Path) {
				continue
			}
			if !anyTokenHeld(leases, tokens) {
				return &lock.ConflictError{Path: leases[0].Path.String()}
			}
		}
	}
	return nil
}

func (r *Registry) Lock(path *davpath.Path, depthInfinity, exclusive bool, owner, principal string, timeout time.Duration) (*lock.Lock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep()

	// a new lease conflicts with any covering lease unless both are
	// shared; an infinite-depth lease additionally conflicts with
	// everything below the path
	for _, l := range r.covering(path) {
		if exclusive || l.Exclusive {
			return nil, &lock.ConflictError{Path: l.Path.String()}
		}
	}
	if depthInfinity {
		for _, leases := range r.locks {
			for _, l := range leases {
				if path.IsAncestorOf(l.Path) && (exclusive || l.Exclusive) {
					return nil, &lock.ConflictError{Path: l.Path.String()}
				}
			}
		}
	}

	now := r.now()
	l := &lock.Lock{
		Token:         lock.NewToken(),
		Path:          path,
		DepthInfinity: depthInfinity,
		Exclusive:     exclusive,
		Owner:         owner,
		Principal:     principal,
		Timeout:       timeout,
		Expires:       now.Add(timeout),
	}
	key := keyOf(path)
	r.locks[key] = append(r.locks[key], l)
	return l, nil
}

func (r *Registry) Refresh(path *davpath.Path, token string, timeout time.Duration) (*lock.Lock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep()

	for _, l := range r.covering(path) {
		if l.Token == token {
			l.Timeout = timeout
			l.Expires = r.now().Add(timeout)
			return l, nil
		}
	}
	return nil, lock.ErrNotFound
}

func (r *Registry) Unlock(path *davpath.Path, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep()

	key := keyOf(path)
	for i, l := range r.locks[key] {
		if l.Token == token {
			r.locks[key] = append(r.locks[key][:i], r.locks[key][i+1:]...)
			if len(r.locks[key]) == 0 {
				delete(r.locks, key)
			}
			return nil
		}
	}

	// token live somewhere else: refusing with Forbidden keeps the
	// rightful lease intact
	for _, leases := range r.locks {
		for _, l := range leases {
			if l.Token == token {
				return lock.ErrForbidden
			}
		}
	}
	return lock.ErrNotFound
}

func (r *Registry) Discover(path *davpath.Path) []lock.Lock {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep()

	covering := r.covering(path)
	out := make([]lock.Lock, 0, len(covering))
	for _, l := range covering {
		out = append(out, *l)
	}
	return out
}

func (r *Registry) Valid(path *davpath.Path, token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep()

	for _, l := range r.covering(path) {
		if l.Token == token {
			return true
		}
	}
	return false
}
