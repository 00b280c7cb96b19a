package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lockmemory "github.com/marmos91/davfs/pkg/lock/memory"
	"github.com/marmos91/davfs/pkg/storage/localfs"
	"github.com/marmos91/davfs/pkg/storage/memory"
	"github.com/marmos91/davfs/pkg/storage/storagetest"
)

const lockInfoExclusive = `<?xml version="1.0" encoding="utf-8"?>
<D:lockinfo xmlns:D="DAV:">
  <D:lockscope><D:exclusive/></D:lockscope>
  <D:locktype><D:write/></D:locktype>
  <D:owner>handler test</D:owner>
</D:lockinfo>`

const lockInfoShared = `<?xml version="1.0" encoding="utf-8"?>
<D:lockinfo xmlns:D="DAV:">
  <D:lockscope><D:shared/></D:lockscope>
  <D:locktype><D:write/></D:locktype>
  <D:owner>handler test</D:owner>
</D:lockinfo>`

// env bundles a handler over a fresh in-memory backend with a spy in
// between, so tests can assert that refused requests never mutate.
type env struct {
	handler *Handler
	spy     *storagetest.Spy
}

func newEnv(t *testing.T) *env {
	t.Helper()
	spy := storagetest.NewSpy(memory.New())
	return &env{
		handler: New(spy, lockmemory.New()),
		spy:     spy,
	}
}

func (e *env) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func (e *env) mustPut(t *testing.T, target, body string) {
	t.Helper()
	w := e.do(http.MethodPut, target, body, nil)
	require.Equal(t, http.StatusCreated, w.Code)
}

func (e *env) mustMkcol(t *testing.T, target string) {
	t.Helper()
	w := e.do("MKCOL", target, "", nil)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestOptionsAdvertisesClass2(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodOptions, "/", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1, 2", w.Header().Get("DAV"))
	assert.Contains(t, w.Header().Get("Allow"), "PROPFIND")
}

func TestUnknownMethod(t *testing.T) {
	e := newEnv(t)
	w := e.do("TRACE", "/", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.NotEmpty(t, w.Header().Get("Allow"))
}

func TestMkcol(t *testing.T) {
	e := newEnv(t)

	w := e.do("MKCOL", "/new", "", nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	// the canonical collection address carries the trailing slash
	assert.Equal(t, "/new/", w.Header().Get("Content-Location"))

	// existing target
	w = e.do("MKCOL", "/new", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	// missing intermediate collection
	w = e.do("MKCOL", "/a/b/c", "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// no body format is defined for MKCOL
	w = e.do("MKCOL", "/other", `<ignored/>`, nil)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestPutRoundTrip(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPut, "/hello.txt", "hello world", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do(http.MethodGet, "/hello.txt", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello world", w.Body.String())
	assert.NotEmpty(t, w.Header().Get("ETag"))

	// replacing an existing resource reports 204
	w = e.do(http.MethodPut, "/hello.txt", "updated", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(http.MethodGet, "/hello.txt", "", nil)
	assert.Equal(t, "updated", w.Body.String())
}

func TestPutMissingParentIsConflict(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodPut, "/no/such/dir/f.txt", "x", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPutCollectionAddress(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodPut, "/dir/", "content", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestPutIfNoneMatchStar(t *testing.T) {
	e := newEnv(t)
	e.mustPut(t, "/guarded.txt", "v1")

	before := e.spy.Mutations()
	w := e.do(http.MethodPut, "/guarded.txt", "v2", map[string]string{"If-None-Match": "*"})
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.Equal(t, before, e.spy.Mutations(), "refused write must not reach the backend")

	// creation through the same guard still works on an unmapped URL
	w = e.do(http.MethodPut, "/fresh.txt", "v1", map[string]string{"If-None-Match": "*"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestPutIfMatchWrongETag(t *testing.T) {
	e := newEnv(t)
	e.mustPut(t, "/doc.txt", "v1")

	before := e.spy.Mutations()
	w := e.do(http.MethodPut, "/doc.txt", "v2", map[string]string{"If-Match": `"bogus"`})
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.Equal(t, before, e.spy.Mutations())
}

func TestGetRange(t *testing.T) {
	e := newEnv(t)
	e.mustPut(t, "/r.txt", "0123456789")

	w := e.do(http.MethodGet, "/r.txt", "", map[string]string{"Range": "bytes=2-5"})
	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "2345", w.Body.String())
	assert.Equal(t, "bytes 2-5/10", w.Header().Get("Content-Range"))

	w = e.do(http.MethodGet, "/r.txt", "", map[string]string{"Range": "bytes=42-"})
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code)
}

func TestGetIfNoneMatch(t *testing.T) {
	e := newEnv(t)
	e.mustPut(t, "/cached.txt", "body")

	w := e.do(http.MethodGet, "/cached.txt", "", nil)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	w = e.do(http.MethodGet, "/cached.txt", "", map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, w.Code)
}

func TestDelete(t *testing.T) {
	e := newEnv(t)
	e.mustPut(t, "/gone.txt", "x")

	w := e.do(http.MethodDelete, "/gone.txt", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(http.MethodGet, "/gone.txt", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(http.MethodDelete, "/gone.txt", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteCollectionSubtree(t *testing.T) {
	e := newEnv(t)
	e.mustMkcol(t, "/tree")
	e.mustPut(t, "/tree/leaf.txt", "x")

	w := e.do(http.MethodDelete, "/tree/", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(http.MethodGet, "/tree/leaf.txt", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLockBlocksWrites(t *testing.T) {
	e := newEnv(t)
	e.mustPut(t, "/locked.txt", "original")

	w := e.do("LOCK", "/locked.txt", lockInfoExclusive, nil)
	require.Equal(t, http.StatusOK, w.Code)
	token := strings.Trim(w.Header().Get("Lock-Token"), "<>")
	require.True(t, strings.HasPrefix(token, "opaquelocktoken:"))
	assert.Contains(t, w.Body.String(), "lockdiscovery")

	// write without the token: refused, backend untouched
	before := e.spy.Mutations()
	w = e.do(http.MethodPut, "/locked.txt", "intruder", nil)
	assert.Equal(t, http.StatusLocked, w.Code)
	assert.Contains(t, w.Body.String(), "lock-token-submitted")
	assert.Equal(t, before, e.spy.Mutations())

	// write with the token submitted via If
	w = e.do(http.MethodPut, "/locked.txt", "owner write", map[string]string{
		"If": "(<" + token + ">)",
	})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = e.do("UNLOCK", "/locked.txt", "", map[string]string{"Lock-Token": "<" + token + ">"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	// lease gone, plain writes work again
	w = e.do(http.MethodPut, "/locked.txt", "free", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestLockDepthInfinityCoversChildren(t *testing.T) {
	e := newEnv(t)
	e.mustMkcol(t, "/proj")
	e.mustPut(t, "/proj/a.txt", "x")

	w := e.do("LOCK", "/proj/", lockInfoExclusive, map[string]string{"Depth": "infinity"})
	require.Equal(t, http.StatusOK, w.Code)
	token := strings.Trim(w.Header().Get("Lock-Token"), "<>")

	w = e.do(http.MethodPut, "/proj/a.txt", "y", nil)
	assert.Equal(t, http.StatusLocked, w.Code)

	w = e.do(http.MethodPut, "/proj/a.txt", "y", map[string]string{"If": "(<" + token + ">)"})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSharedLockHolderCanWrite(t *testing.T) {
	e := newEnv(t)
	e.mustPut(t, "/joint.txt", "v1")

	w := e.do("LOCK", "/joint.txt", lockInfoShared, nil)
	require.Equal(t, http.StatusOK, w.Code)
	token := strings.Trim(w.Header().Get("Lock-Token"), "<>")

	w = e.do("LOCK", "/joint.txt", lockInfoShared, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// the first holder's own token admits the write despite the second
	// shared lease
	w = e.do(http.MethodPut, "/joint.txt", "v2", map[string]string{
		"If": "(<" + token + ">)",
	})
	assert.Equal(t, http.StatusNoContent, w.Code)

	// no token at all is still refused
	w = e.do(http.MethodPut, "/joint.txt", "v3", nil)
	assert.Equal(t, http.StatusLocked, w.Code)
}

func TestLockUnmappedURLCreatesResource(t *testing.T) {
	e := newEnv(t)

	w := e.do("LOCK", "/draft.txt", lockInfoExclusive, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	token := strings.Trim(w.Header().Get("Lock-Token"), "<>")

	w = e.do(http.MethodGet, "/draft.txt", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	w = e.do("UNLOCK", "/draft.txt", "", map[string]string{"Lock-Token": "<" + token + ">"})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestLockConflictOnUnmappedURLCreatesNothing(t *testing.T) {
	e := newEnv(t)
	e.mustMkcol(t, "/guarded")

	w := e.do("LOCK", "/guarded/", lockInfoExclusive, map[string]string{"Depth": "infinity"})
	require.Equal(t, http.StatusOK, w.Code)

	// losing the lock conflict must not leave an empty resource behind
	before := e.spy.Mutations()
	w = e.do("LOCK", "/guarded/new.txt", lockInfoExclusive, nil)
	assert.Equal(t, http.StatusLocked, w.Code)
	assert.Equal(t, before, e.spy.Mutations())

	w = e.do(http.MethodGet, "/guarded/new.txt", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLockRefresh(t *testing.T) {
	e := newEnv(t)
	e.mustPut(t, "/renew.txt", "x")

	w := e.do("LOCK", "/renew.txt", lockInfoExclusive, map[string]string{"Timeout": "Second-60"})
	require.Equal(t, http.StatusOK, w.Code)
	token := strings.Trim(w.Header().Get("Lock-Token"), "<>")

	// no body plus the token in If is a refresh
	w = e.do("LOCK", "/renew.txt", "", map[string]string{
		"If":      "(<" + token + ">)",
		"Timeout": "Second-120",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), token)

	// refreshing with an unknown token fails the implicit precondition
	w = e.do("LOCK", "/renew.txt", "", map[string]string{
		"If": "(<opaquelocktoken:unknown>)",
	})
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestLockConflict(t *testing.T) {
	e := newEnv(t)
	e.mustPut(t, "/contested.txt", "x")

	w := e.do("LOCK", "/contested.txt", lockInfoExclusive, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do("LOCK", "/contested.txt", lockInfoExclusive, nil)
	assert.Equal(t, http.StatusLocked, w.Code)
}

func TestUnlockErrors(t *testing.T) {
	e := newEnv(t)
	e.mustPut(t, "/a.txt", "x")
	e.mustPut(t, "/b.txt", "x")

	w := e.do("UNLOCK", "/a.txt", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do("UNLOCK", "/a.txt", "", map[string]string{"Lock-Token": "<opaquelocktoken:nope>"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// a token bound to another path must not release this one
	w = e.do("LOCK", "/b.txt", lockInfoExclusive, nil)
	require.Equal(t, http.StatusOK, w.Code)
	tokenB := strings.Trim(w.Header().Get("Lock-Token"), "<>")

	w = e.do("UNLOCK", "/a.txt", "", map[string]string{"Lock-Token": "<" + tokenB + ">"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCopy(t *testing.T) {
	e := newEnv(t)
	e.mustPut(t, "/src.txt", "payload")

	w := e.do("COPY", "/src.txt", "", map[string]string{"Destination": "/dst.txt"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = e.do(http.MethodGet, "/dst.txt", "", nil)
	assert.Equal(t, "payload", w.Body.String())

	// Overwrite: F refuses to replace
	before := e.spy.Mutations()
	w = e.do("COPY", "/src.txt", "", map[string]string{"Destination": "/dst.txt", "Overwrite": "F"})
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.Equal(t, before, e.spy.Mutations())

	// default Overwrite replaces and reports 204
	e.mustPut(t, "/src2.txt", "other")
	w = e.do("COPY", "/src2.txt", "", map[string]string{"Destination": "/dst.txt"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(http.MethodGet, "/dst.txt", "", nil)
	assert.Equal(t, "other", w.Body.String())
}

func TestCopyCollection(t *testing.T) {
	e := newEnv(t)
	e.mustMkcol(t, "/site")
	e.mustPut(t, "/site/index.html", "<html/>")
	e.mustMkcol(t, "/site/assets")
	e.mustPut(t, "/site/assets/app.css", "body{}")

	w := e.do("COPY", "/site/", "", map[string]string{"Destination": "/backup/"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do(http.MethodGet, "/backup/assets/app.css", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "body{}", w.Body.String())

	// Depth 0 copies the collection without members
	w = e.do("COPY", "/site/", "", map[string]string{"Destination": "/shallow/", "Depth": "0"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = e.do(http.MethodGet, "/shallow/index.html", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCopyIntoOwnSubtree(t *testing.T) {
	e := newEnv(t)
	e.mustMkcol(t, "/loop")

	w := e.do("COPY", "/loop/", "", map[string]string{"Destination": "/loop/inner/"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMove(t *testing.T) {
	e := newEnv(t)
	e.mustMkcol(t, "/old")
	e.mustPut(t, "/old/f.txt", "data")

	w := e.do("MOVE", "/old/", "", map[string]string{"Destination": "/new/"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do(http.MethodGet, "/new/f.txt", "", nil)
	assert.Equal(t, "data", w.Body.String())
	w = e.do(http.MethodGet, "/old/f.txt", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMoveOverwritesPopulatedCollection(t *testing.T) {
	e := newEnv(t)
	e.mustMkcol(t, "/src")
	e.mustPut(t, "/src/a.txt", "new")
	e.mustMkcol(t, "/dst")
	e.mustPut(t, "/dst/old.txt", "old")

	w := e.do("MOVE", "/src/", "", map[string]string{"Destination": "/dst/"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	// the replaced collection is gone as if deleted first
	w = e.do(http.MethodGet, "/dst/a.txt", "", nil)
	assert.Equal(t, "new", w.Body.String())
	w = e.do(http.MethodGet, "/dst/old.txt", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMoveLockedSourceNeedsToken(t *testing.T) {
	e := newEnv(t)
	e.mustPut(t, "/held.txt", "x")

	w := e.do("LOCK", "/held.txt", lockInfoExclusive, nil)
	require.Equal(t, http.StatusOK, w.Code)
	token := strings.Trim(w.Header().Get("Lock-Token"), "<>")

	before := e.spy.Mutations()
	w = e.do("MOVE", "/held.txt", "", map[string]string{"Destination": "/moved.txt"})
	assert.Equal(t, http.StatusLocked, w.Code)
	assert.Equal(t, before, e.spy.Mutations())

	w = e.do("MOVE", "/held.txt", "", map[string]string{
		"Destination": "/moved.txt",
		"If":          "(<" + token + ">)",
	})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestMoveDestinationMissingParent(t *testing.T) {
	e := newEnv(t)
	e.mustPut(t, "/f.txt", "x")

	w := e.do("MOVE", "/f.txt", "", map[string]string{"Destination": "/nope/f.txt"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPropfindDepths(t *testing.T) {
	e := newEnv(t)
	e.mustMkcol(t, "/docs")
	e.mustPut(t, "/docs/a.txt", "aaa")
	e.mustMkcol(t, "/docs/sub")
	e.mustPut(t, "/docs/sub/b.txt", "bb")

	w := e.do("PROPFIND", "/docs/", "", map[string]string{"Depth": "0"})
	require.Equal(t, http.StatusMultiStatus, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "<D:href>/docs/</D:href>")
	assert.NotContains(t, body, "a.txt")

	w = e.do("PROPFIND", "/docs/", "", map[string]string{"Depth": "1"})
	body = w.Body.String()
	assert.Contains(t, body, "/docs/a.txt")
	assert.Contains(t, body, "/docs/sub/")
	assert.NotContains(t, body, "b.txt")

	w = e.do("PROPFIND", "/docs/", "", map[string]string{"Depth": "infinity"})
	body = w.Body.String()
	assert.Contains(t, body, "/docs/sub/b.txt")
}

func TestPropfindLiveProps(t *testing.T) {
	e := newEnv(t)
	e.mustPut(t, "/live.txt", "12345")

	w := e.do("PROPFIND", "/live.txt", "", map[string]string{"Depth": "0"})
	require.Equal(t, http.StatusMultiStatus, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "<D:getcontentlength>5</D:getcontentlength>")
	assert.Contains(t, body, "<D:getetag>")
	assert.Contains(t, body, "<D:supportedlock>")
	assert.Contains(t, body, "HTTP/1.1 200 OK")
}

func TestPropfindCollectionResourcetype(t *testing.T) {
	e := newEnv(t)
	e.mustMkcol(t, "/col")

	w := e.do("PROPFIND", "/col/", "", map[string]string{"Depth": "0"})
	assert.Contains(t, w.Body.String(), "<D:resourcetype><D:collection/></D:resourcetype>")
}

func TestPropfindMissingTarget(t *testing.T) {
	e := newEnv(t)
	w := e.do("PROPFIND", "/ghost", "", map[string]string{"Depth": "0"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPropfindByNamePartialFailure(t *testing.T) {
	e := newEnv(t)
	e.mustPut(t, "/part.txt", "x")

	body := `<?xml version="1.0"?>
<D:propfind xmlns:D="DAV:" xmlns:z="urn:example">
  <D:prop><D:getetag/><z:missing/></D:prop>
</D:propfind>`
	w := e.do("PROPFIND", "/part.txt", body, map[string]string{"Depth": "0"})
	require.Equal(t, http.StatusMultiStatus, w.Code)
	out := w.Body.String()
	assert.Contains(t, out, "HTTP/1.1 200 OK")
	assert.Contains(t, out, "HTTP/1.1 404 Not Found")
	assert.Contains(t, out, "missing")
}

func TestPropfindUnimplementedPropsReport501(t *testing.T) {
	fs, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	h := New(fs, lockmemory.New())

	put := httptest.NewRequest(http.MethodPut, "/plain.txt", strings.NewReader("x"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, put)
	require.Equal(t, http.StatusCreated, w.Code)

	// a backend without dead properties reports per-prop 501, not 404
	body := `<?xml version="1.0"?>
<D:propfind xmlns:D="DAV:" xmlns:z="urn:example">
  <D:prop><D:getetag/><z:color/></D:prop>
</D:propfind>`
	find := httptest.NewRequest("PROPFIND", "/plain.txt", strings.NewReader(body))
	find.Header.Set("Depth", "0")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, find)
	require.Equal(t, http.StatusMultiStatus, w.Code)
	out := w.Body.String()
	assert.Contains(t, out, "HTTP/1.1 200 OK")
	assert.Contains(t, out, "HTTP/1.1 501 Not Implemented")
	assert.NotContains(t, out, "HTTP/1.1 404 Not Found")
}

func TestProppatchRoundTrip(t *testing.T) {
	e := newEnv(t)
	e.mustPut(t, "/meta.txt", "x")

	set := `<?xml version="1.0"?>
<D:propertyupdate xmlns:D="DAV:" xmlns:z="urn:example">
  <D:set><D:prop><z:color>blue</z:color></D:prop></D:set>
</D:propertyupdate>`
	w := e.do("PROPPATCH", "/meta.txt", set, nil)
	require.Equal(t, http.StatusMultiStatus, w.Code)
	assert.Contains(t, w.Body.String(), "HTTP/1.1 200 OK")

	find := `<?xml version="1.0"?>
<D:propfind xmlns:D="DAV:" xmlns:z="urn:example">
  <D:prop><z:color/></D:prop>
</D:propfind>`
	w = e.do("PROPFIND", "/meta.txt", find, map[string]string{"Depth": "0"})
	assert.Contains(t, w.Body.String(), "blue")

	remove := `<?xml version="1.0"?>
<D:propertyupdate xmlns:D="DAV:" xmlns:z="urn:example">
  <D:remove><D:prop><z:color/></D:prop></D:remove>
</D:propertyupdate>`
	w = e.do("PROPPATCH", "/meta.txt", remove, nil)
	require.Equal(t, http.StatusMultiStatus, w.Code)

	w = e.do("PROPFIND", "/meta.txt", find, map[string]string{"Depth": "0"})
	assert.Contains(t, w.Body.String(), "HTTP/1.1 404 Not Found")
}

func TestProppatchProtectedPropertyAborts(t *testing.T) {
	e := newEnv(t)
	e.mustPut(t, "/prot.txt", "x")

	before := e.spy.Mutations()
	body := `<?xml version="1.0"?>
<D:propertyupdate xmlns:D="DAV:" xmlns:z="urn:example">
  <D:set><D:prop>
    <D:getetag>"forged"</D:getetag>
    <z:color>red</z:color>
  </D:prop></D:set>
</D:propertyupdate>`
	w := e.do("PROPPATCH", "/prot.txt", body, nil)
	require.Equal(t, http.StatusMultiStatus, w.Code)
	out := w.Body.String()
	assert.Contains(t, out, "HTTP/1.1 403 Forbidden")
	assert.Contains(t, out, "HTTP/1.1 424 Failed Dependency")
	assert.Equal(t, before, e.spy.Mutations(), "aborted batch must not reach the backend")
}

func TestPathNormalization(t *testing.T) {
	e := newEnv(t)
	e.mustMkcol(t, "/dir")
	e.mustPut(t, "/dir/f.txt", "x")

	// dot segments collapse onto the same node
	w := e.do(http.MethodGet, "/dir/./f.txt", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// climbing above the root is malformed
	w = e.do(http.MethodGet, "/../etc/passwd", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPrefixMounting(t *testing.T) {
	spy := storagetest.NewSpy(memory.New())
	h := New(spy, lockmemory.New(), WithPrefix("/dav"))

	put := httptest.NewRequest(http.MethodPut, "/dav/file.txt", strings.NewReader("x"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, put)
	require.Equal(t, http.StatusCreated, w.Code)

	// hrefs in multistatus responses live in request-URL space
	find := httptest.NewRequest("PROPFIND", "/dav/file.txt", nil)
	find.Header.Set("Depth", "0")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, find)
	require.Equal(t, http.StatusMultiStatus, w.Code)
	assert.Contains(t, w.Body.String(), "<D:href>/dav/file.txt</D:href>")

	// a target outside the prefix never reaches the backend
	before := spy.Mutations()
	outside := httptest.NewRequest(http.MethodPut, "/other/file.txt", strings.NewReader("x"))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, outside)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, before, spy.Mutations())
}
