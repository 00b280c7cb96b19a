// Package badger implements a persistent lock registry backed by
// BadgerDB. Leases survive server restarts, which matters for clients
// that hold long-lived locks across brief outages (office suites do).
//
// Storage model: one record per lease under "lock/<path>/<token>", JSON
// encoded, with the lease deadline inside the record. Badger's TTL is not
// used because a refresh must be able to extend a lease in place and the
// deadline must be inspectable for lockdiscovery.
package badger

import (
	"encoding/json"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/davfs/pkg/davpath"
	"github.com/marmos91/davfs/pkg/lock"
)

const keyPrefix = "lock/"

// record is the persisted form of a lease. The path is stored as its
// canonical string and re-parsed on load.
type record struct {
	Token         string        `json:"token"`
	Path          string        `json:"path"`
	DepthInfinity bool          `json:"depth_infinity"`
	Exclusive     bool          `json:"exclusive"`
	Owner         string        `json:"owner,omitempty"`
	Principal     string        `json:"principal,omitempty"`
	Timeout       time.Duration `json:"timeout"`
	Expires       time.Time     `json:"expires"`
}

// Registry is the badger-backed lock registry. Badger transactions give
// the per-path serialization the engine relies on: Lock and Check run
// inside Update/View transactions with SSI conflict detection.
type Registry struct {
	db  *badger.DB
	now func() time.Time
}

// Config for the badger lock registry.
type Config struct {
	// Path is the database directory
	Path string

	// SweepInterval controls the background sweep of expired leases.
	// Zero disables the sweeper; expiry is still enforced lazily.
	SweepInterval time.Duration
}

// New opens (or creates) the lock database at cfg.Path.
func New(cfg Config) (*Registry, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	r := &Registry{db: db, now: time.Now}
	if cfg.SweepInterval > 0 {
		go r.sweepLoop(cfg.SweepInterval)
	}
	return r, nil
}

// Close releases the database.
func (r *Registry) Close() error {
	return r.db.Close()
}

func canonical(p *davpath.Path) string {
	return "/" + strings.Join(p.Segments(), "/")
}

func leaseKey(path, token string) []byte {
	return []byte(keyPrefix + path + "\x00" + token)
}

func (r *Registry) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		_ = r.db.Update(func(txn *badger.Txn) error {
			now := r.now()
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			var stale [][]byte
			for it.Seek([]byte(keyPrefix)); it.ValidForPrefix([]byte(keyPrefix)); it.Next() {
				item := it.Item()
				var rec record
				if err := item.Value(func(v []byte) error {
					return json.Unmarshal(v, &rec)
				}); err != nil {
					continue
				}
				if now.After(rec.Expires) {
					stale = append(stale, item.KeyCopy(nil))
				}
			}
			for _, k := range stale {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
			return nil
		})
	}
}

// forEachLive iterates all live lease records. Caller supplies the
// transaction so Check/Lock observe a consistent snapshot.
func (r *Registry) forEachLive(txn *badger.Txn, fn func(rec record) error) error {
	now := r.now()
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek([]byte(keyPrefix)); it.ValidForPrefix([]byte(keyPrefix)); it.Next() {
		var rec record
		if err := it.Item().Value(func(v []byte) error {
			return json.Unmarshal(v, &rec)
		}); err != nil {
			continue
		}
		if now.After(rec.Expires) {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// covers reports whether the lease protects target.
func covers(rec record, target *davpath.Path) bool {
	recPath, err := davpath.Parse(rec.Path)
	if err != nil {
		return false
	}
	if recPath.Equal(target) {
		return true
	}
	return rec.DepthInfinity && recPath.IsAncestorOf(target)
}

func isBelow(rec record, target *davpath.Path) bool {
	recPath, err := davpath.Parse(rec.Path)
	if err != nil {
		return false
	}
	return target.IsAncestorOf(recPath)
}

func hasToken(tokens []string, token string) bool {
	for _, t := range tokens {
		if t == token {
			return true
		}
	}
	return false
}

// lockGroup accumulates the leases rooted at one path while Check
// scans the record space.
type lockGroup struct {
	path    string
	tokened bool
}

func (r *Registry) Check(path *davpath.Path, includeChildren bool, tokens []string) error {
	return r.db.View(func(txn *badger.Txn) error {
		// a locked resource admits the mutation when any one covering
		// lease is presented; shared co-holders never present each
		// other's tokens, so the groups are checked as wholes
		cover := lockGroup{}
		covered := false
		below := make(map[string]*lockGroup)

		if err := r.forEachLive(txn, func(rec record) error {
			if covers(rec, path) {
				covered = true
				if cover.path == "" {
					cover.path = rec.Path
				}
				if hasToken(tokens, rec.Token) {
					cover.tokened = true
				}
			}
			if includeChildren && isBelow(rec, path) {
				g := below[rec.Path]
				if g == nil {
					g = &lockGroup{path: rec.Path}
					below[rec.Path] = g
				}
				if hasToken(tokens, rec.Token) {
					g.tokened = true
				}
			}
			return nil
		}); err != nil {
			return err
		}

		if covered && !cover.tokened {
			return &lock.ConflictError{Path: cover.path}
		}
		for _, g := range below {
			if !g.tokened {
				return &lock.ConflictError{Path: g.path}
			}
		}
		return nil
	})
}

func (r *Registry) Lock(path *davpath.Path, depthInfinity, exclusive bool, owner, principal string, timeout time.Duration) (*lock.Lock, error) {
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

	err := r.db.Update(func(txn *badger.Txn) error {
		conflict := r.forEachLive(txn, func(rec record) error {
			if (covers(rec, path) || (depthInfinity && isBelow(rec, path))) && (exclusive || rec.Exclusive) {
				return &lock.ConflictError{Path: rec.Path}
			}
			return nil
		})
		if conflict != nil {
			return conflict
		}

		data, err := json.Marshal(record{
			Token:         l.Token,
			Path:          canonical(path),
			DepthInfinity: depthInfinity,
			Exclusive:     exclusive,
			Owner:         owner,
			Principal:     principal,
			Timeout:       timeout,
			Expires:       l.Expires,
		})
		if err != nil {
			return err
		}
		return txn.Set(leaseKey(canonical(path), l.Token), data)
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (r *Registry) Refresh(path *davpath.Path, token string, timeout time.Duration) (*lock.Lock, error) {
	var refreshed *lock.Lock
	err := r.db.Update(func(txn *badger.Txn) error {
		var found *record
		if err := r.forEachLive(txn, func(rec record) error {
			if rec.Token == token && covers(rec, path) {
				found = &rec
			}
			return nil
		}); err != nil {
			return err
		}
		if found == nil {
			return lock.ErrNotFound
		}

		found.Timeout = timeout
		found.Expires = r.now().Add(timeout)
		data, err := json.Marshal(found)
		if err != nil {
			return err
		}
		if err := txn.Set(leaseKey(found.Path, found.Token), data); err != nil {
			return err
		}

		recPath, err := davpath.Parse(found.Path)
		if err != nil {
			return err
		}
		refreshed = &lock.Lock{
			Token:         found.Token,
			Path:          recPath,
			DepthInfinity: found.DepthInfinity,
			Exclusive:     found.Exclusive,
			Owner:         found.Owner,
			Principal:     found.Principal,
			Timeout:       found.Timeout,
			Expires:       found.Expires,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refreshed, nil
}

func (r *Registry) Unlock(path *davpath.Path, token string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		key := leaseKey(canonical(path), token)
		if _, err := txn.Get(key); err == nil {
			return txn.Delete(key)
		}

		// token may be live on a different path: Forbidden, and the
		// rightful lease stays held
		var elsewhere bool
		if err := r.forEachLive(txn, func(rec record) error {
			if rec.Token == token {
				elsewhere = true
			}
			return nil
		}); err != nil {
			return err
		}
		if elsewhere {
			return lock.ErrForbidden
		}
		return lock.ErrNotFound
	})
}

func (r *Registry) Discover(path *davpath.Path) []lock.Lock {
	var out []lock.Lock
	_ = r.db.View(func(txn *badger.Txn) error {
		return r.forEachLive(txn, func(rec record) error {
			if !covers(rec, path) {
				return nil
			}
			recPath, err := davpath.Parse(rec.Path)
			if err != nil {
				return nil
			}
			out = append(out, lock.Lock{
				Token:         rec.Token,
				Path:          recPath,
				DepthInfinity: rec.DepthInfinity,
				Exclusive:     rec.Exclusive,
				Owner:         rec.Owner,
				Principal:     rec.Principal,
				Timeout:       rec.Timeout,
				Expires:       rec.Expires,
			})
			return nil
		})
	})
	return out
}

func (r *Registry) Valid(path *davpath.Path, token string) bool {
	valid := false
	_ = r.db.View(func(txn *badger.Txn) error {
		return r.forEachLive(txn, func(rec record) error {
			if rec.Token == token && covers(rec, path) {
				valid = true
			}
			return nil
		})
	})
	return valid
}
