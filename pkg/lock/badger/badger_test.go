package badger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/davfs/pkg/davpath"
	"github.com/marmos91/davfs/pkg/lock"
)

func mustPath(t *testing.T, raw string) *davpath.Path {
	t.Helper()
	p, err := davpath.Parse(raw)
	require.NoError(t, err)
	return p
}

func openRegistry(t *testing.T, dir string) *Registry {
	t.Helper()
	r, err := New(Config{Path: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestLockCheckUnlock(t *testing.T) {
	r := openRegistry(t, t.TempDir())
	p := mustPath(t, "/doc.txt")

	held, err := r.Lock(p, false, true, "owner", "alice", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, held.Token)

	var conflict *lock.ConflictError
	require.ErrorAs(t, r.Check(p, false, nil), &conflict)
	assert.NoError(t, r.Check(p, false, []string{held.Token}))
	assert.True(t, r.Valid(p, held.Token))

	require.NoError(t, r.Unlock(p, held.Token))
	assert.NoError(t, r.Check(p, false, nil))
}

func TestDepthInfinityCoversDescendants(t *testing.T) {
	r := openRegistry(t, t.TempDir())
	dir := mustPath(t, "/project/")
	child := mustPath(t, "/project/docs/report.txt")

	held, err := r.Lock(dir, true, true, "", "", time.Minute)
	require.NoError(t, err)

	assert.Error(t, r.Check(child, false, nil))
	assert.NoError(t, r.Check(child, false, []string{held.Token}))
	assert.True(t, r.Valid(child, held.Token))
}

func TestSharedLockHolderPassesCheck(t *testing.T) {
	r := openRegistry(t, t.TempDir())
	p := mustPath(t, "/shared.txt")

	a, err := r.Lock(p, false, false, "", "", time.Minute)
	require.NoError(t, err)
	_, err = r.Lock(p, false, false, "", "", time.Minute)
	require.NoError(t, err)

	// no token at all is still refused
	assert.Error(t, r.Check(p, false, nil))
	// a holder presenting its own shared token may write even while the
	// other shared lease is live
	assert.NoError(t, r.Check(p, false, []string{a.Token}))
}

func TestLeasesSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	p := mustPath(t, "/durable.txt")

	r, err := New(Config{Path: dir})
	require.NoError(t, err)
	held, err := r.Lock(p, false, true, "owner", "alice", time.Hour)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	reopened := openRegistry(t, dir)
	assert.True(t, reopened.Valid(p, held.Token))

	found := reopened.Discover(p)
	require.Len(t, found, 1)
	assert.Equal(t, held.Token, found[0].Token)
	assert.Equal(t, "owner", found[0].Owner)
	assert.Equal(t, "alice", found[0].Principal)
}

func TestRefreshExtendsLease(t *testing.T) {
	r := openRegistry(t, t.TempDir())
	now := time.Now()
	r.now = func() time.Time { return now }

	p := mustPath(t, "/doc.txt")
	held, err := r.Lock(p, false, true, "", "", 30*time.Second)
	require.NoError(t, err)

	now = now.Add(20 * time.Second)
	refreshed, err := r.Refresh(p, held.Token, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, held.Token, refreshed.Token)

	now = now.Add(45 * time.Second)
	assert.True(t, r.Valid(p, held.Token))

	_, err = r.Refresh(p, "opaquelocktoken:unknown", time.Minute)
	assert.ErrorIs(t, err, lock.ErrNotFound)
}

func TestExpiryIsEnforcedLazily(t *testing.T) {
	r := openRegistry(t, t.TempDir())
	now := time.Now()
	r.now = func() time.Time { return now }

	p := mustPath(t, "/stale.txt")
	held, err := r.Lock(p, false, true, "", "", time.Second)
	require.NoError(t, err)
	require.Error(t, r.Check(p, false, nil))

	now = now.Add(2 * time.Second)
	assert.NoError(t, r.Check(p, false, nil))
	assert.False(t, r.Valid(p, held.Token))
}

func TestUnlockForeignToken(t *testing.T) {
	r := openRegistry(t, t.TempDir())
	a := mustPath(t, "/a.txt")
	b := mustPath(t, "/b.txt")

	lockA, err := r.Lock(a, false, true, "", "", time.Minute)
	require.NoError(t, err)
	_, err = r.Lock(b, false, true, "", "", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, r.Unlock(b, lockA.Token), lock.ErrForbidden)
	assert.Error(t, r.Check(b, false, nil))
	assert.ErrorIs(t, r.Unlock(b, "opaquelocktoken:unknown"), lock.ErrNotFound)
}
