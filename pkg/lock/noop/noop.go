// Package noop implements a null lock registry: it hands out tokens and
// never reports a conflict. Some clients (notably macOS Finder and older
// Windows redirectors) refuse to mount read-write shares unless the
// server advertises locking; this registry satisfies them without
// enforcing anything.
package noop

import (
	"time"

	"github.com/marmos91/davfs/pkg/davpath"
	"github.com/marmos91/davfs/pkg/lock"
)

// Registry is the no-op lock registry.
type Registry struct{}

// New creates a no-op lock registry.
func New() *Registry {
	return &Registry{}
}

func (*Registry) Check(path *davpath.Path, includeChildren bool, tokens []string) error {
	return nil
}

func (*Registry) Lock(path *davpath.Path, depthInfinity, exclusive bool, owner, principal string, timeout time.Duration) (*lock.Lock, error) {
	now := time.Now()
	return &lock.Lock{
		Token:         lock.NewToken(),
		Path:          path,
		DepthInfinity: depthInfinity,
		Exclusive:     exclusive,
		Owner:         owner,
		Principal:     principal,
		Timeout:       timeout,
		Expires:       now.Add(timeout),
	}, nil
}

func (*Registry) Refresh(path *davpath.Path, token string, timeout time.Duration) (*lock.Lock, error) {
	now := time.Now()
	return &lock.Lock{
		Token:   token,
		Path:    path,
		Timeout: timeout,
		Expires: now.Add(timeout),
	}, nil
}

func (*Registry) Unlock(path *davpath.Path, token string) error {
	return nil
}

func (*Registry) Discover(path *davpath.Path) []lock.Lock {
	return nil
}

func (*Registry) Valid(path *davpath.Path, token string) bool {
	return true
}
