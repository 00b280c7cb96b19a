// Package storagetest holds shared helpers for exercising storage
// backends: a conformance suite every backend should pass and a
// mutation-counting spy for protocol tests.
package storagetest

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/davfs/pkg/davpath"
	"github.com/marmos91/davfs/pkg/storage"
)

// Factory builds a fresh, empty backend for one test.
type Factory func(t *testing.T) storage.FileSystem

// SuiteOptions selects the optional capabilities the suite asserts on.
type SuiteOptions struct {
	// Props enables the dead-property tests
	Props bool
}

// RunSuite runs the backend conformance suite against the factory.
//
// The suite covers the required operations plus the common optional ones
// and pins down the error codes the protocol engine's status mapping
// relies on.
func RunSuite(t *testing.T, newFS Factory, opts SuiteOptions) {
	t.Run("CreateDir", func(t *testing.T) { testCreateDir(t, newFS(t)) })
	t.Run("FileRoundTrip", func(t *testing.T) { testFileRoundTrip(t, newFS(t)) })
	t.Run("OpenErrors", func(t *testing.T) { testOpenErrors(t, newFS(t)) })
	t.Run("ReadDir", func(t *testing.T) { testReadDir(t, newFS(t)) })
	t.Run("Remove", func(t *testing.T) { testRemove(t, newFS(t)) })
	t.Run("Rename", func(t *testing.T) { testRename(t, newFS(t)) })
	t.Run("Copy", func(t *testing.T) { testCopy(t, newFS(t)) })
	t.Run("SetModified", func(t *testing.T) { testSetModified(t, newFS(t)) })

	if opts.Props {
		t.Run("Props", func(t *testing.T) { testProps(t, newFS(t)) })
	}
}

func mustPath(t *testing.T, raw string) *davpath.Path {
	t.Helper()
	p, err := davpath.Parse(raw)
	require.NoError(t, err)
	return p
}

func writeFile(t *testing.T, fs storage.FileSystem, raw, content string) {
	t.Helper()
	f, err := fs.Open(t.Context(), mustPath(t, raw), storage.WriteOptions())
	require.NoError(t, err)
	_, err = f.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, f.Flush(t.Context()))
	require.NoError(t, f.Close())
}

func readFile(t *testing.T, fs storage.FileSystem, raw string) string {
	t.Helper()
	f, err := fs.Open(t.Context(), mustPath(t, raw), storage.ReadOptions())
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(data)
}

func testCreateDir(t *testing.T, fs storage.FileSystem) {
	require.NoError(t, fs.CreateDir(t.Context(), mustPath(t, "/a/")))

	meta, err := fs.Metadata(t.Context(), mustPath(t, "/a/"))
	require.NoError(t, err)
	assert.True(t, meta.IsDir)

	err = fs.CreateDir(t.Context(), mustPath(t, "/a/"))
	assert.True(t, storage.IsCode(err, storage.ErrExists), "creating an existing dir: %v", err)

	err = fs.CreateDir(t.Context(), mustPath(t, "/missing/child/"))
	assert.True(t, storage.IsCode(err, storage.ErrNotFound), "creating under a missing parent: %v", err)
}

func testFileRoundTrip(t *testing.T, fs storage.FileSystem) {
	writeFile(t, fs, "/file.txt", "hello backend")
	assert.Equal(t, "hello backend", readFile(t, fs, "/file.txt"))

	meta, err := fs.Metadata(t.Context(), mustPath(t, "/file.txt"))
	require.NoError(t, err)
	assert.False(t, meta.IsDir)
	assert.Equal(t, uint64(len("hello backend")), meta.Size)
	assert.NotEmpty(t, meta.ETag())

	// truncating replace
	writeFile(t, fs, "/file.txt", "short")
	assert.Equal(t, "short", readFile(t, fs, "/file.txt"))
}

func testOpenErrors(t *testing.T, fs storage.FileSystem) {
	_, err := fs.Open(t.Context(), mustPath(t, "/nope.txt"), storage.ReadOptions())
	assert.True(t, storage.IsCode(err, storage.ErrNotFound), "reading a missing file: %v", err)

	writeFile(t, fs, "/taken.txt", "x")
	_, err = fs.Open(t.Context(), mustPath(t, "/taken.txt"), storage.OpenOptions{
		Write: true, Create: true, CreateNew: true,
	})
	assert.True(t, storage.IsCode(err, storage.ErrExists), "exclusive create over existing: %v", err)

	_, err = fs.Open(t.Context(), mustPath(t, "/missing/deep.txt"), storage.WriteOptions())
	assert.True(t, storage.IsCode(err, storage.ErrNotFound), "writing under a missing parent: %v", err)
}

func testReadDir(t *testing.T, fs storage.FileSystem) {
	require.NoError(t, fs.CreateDir(t.Context(), mustPath(t, "/dir/")))
	writeFile(t, fs, "/dir/one.txt", "1")
	writeFile(t, fs, "/dir/two.txt", "22")
	require.NoError(t, fs.CreateDir(t.Context(), mustPath(t, "/dir/sub/")))

	entries, err := fs.ReadDir(t.Context(), mustPath(t, "/dir/"), storage.ReadDirMetaData)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	byName := make(map[string]storage.DirEntry, len(entries))
	for _, e := range entries {
		byName[e.Name()] = e
	}
	require.Contains(t, byName, "one.txt")
	require.Contains(t, byName, "two.txt")
	require.Contains(t, byName, "sub")

	meta, err := byName["two.txt"].Metadata(t.Context())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), meta.Size)

	meta, err = byName["sub"].Metadata(t.Context())
	require.NoError(t, err)
	assert.True(t, meta.IsDir)
}

func testRemove(t *testing.T, fs storage.FileSystem) {
	writeFile(t, fs, "/doomed.txt", "x")
	require.NoError(t, fs.RemoveFile(t.Context(), mustPath(t, "/doomed.txt")))
	_, err := fs.Metadata(t.Context(), mustPath(t, "/doomed.txt"))
	assert.True(t, storage.IsCode(err, storage.ErrNotFound))

	require.NoError(t, fs.CreateDir(t.Context(), mustPath(t, "/empty/")))
	require.NoError(t, fs.RemoveDir(t.Context(), mustPath(t, "/empty/")))
	_, err = fs.Metadata(t.Context(), mustPath(t, "/empty/"))
	assert.True(t, storage.IsCode(err, storage.ErrNotFound))

	// removing a collection takes its whole subtree with it
	require.NoError(t, fs.CreateDir(t.Context(), mustPath(t, "/full/")))
	require.NoError(t, fs.CreateDir(t.Context(), mustPath(t, "/full/nested/")))
	writeFile(t, fs, "/full/nested/deep.txt", "x")
	require.NoError(t, fs.RemoveDir(t.Context(), mustPath(t, "/full/")))
	_, err = fs.Metadata(t.Context(), mustPath(t, "/full/nested/deep.txt"))
	assert.True(t, storage.IsCode(err, storage.ErrNotFound))
	_, err = fs.Metadata(t.Context(), mustPath(t, "/full/"))
	assert.True(t, storage.IsCode(err, storage.ErrNotFound))

	err = fs.RemoveFile(t.Context(), mustPath(t, "/never-was.txt"))
	assert.True(t, storage.IsCode(err, storage.ErrNotFound))
}

func testRename(t *testing.T, fs storage.FileSystem) {
	writeFile(t, fs, "/old.txt", "content")
	require.NoError(t, fs.Rename(t.Context(), mustPath(t, "/old.txt"), mustPath(t, "/new.txt")))

	assert.Equal(t, "content", readFile(t, fs, "/new.txt"))
	_, err := fs.Metadata(t.Context(), mustPath(t, "/old.txt"))
	assert.True(t, storage.IsCode(err, storage.ErrNotFound))

	// replacing an existing destination resource
	writeFile(t, fs, "/other.txt", "stale")
	require.NoError(t, fs.Rename(t.Context(), mustPath(t, "/new.txt"), mustPath(t, "/other.txt")))
	assert.Equal(t, "content", readFile(t, fs, "/other.txt"))
}

func testCopy(t *testing.T, fs storage.FileSystem) {
	writeFile(t, fs, "/src.txt", "payload")
	require.NoError(t, fs.Copy(t.Context(), mustPath(t, "/src.txt"), mustPath(t, "/dst.txt")))

	assert.Equal(t, "payload", readFile(t, fs, "/dst.txt"))
	assert.Equal(t, "payload", readFile(t, fs, "/src.txt"))

	// the copy is independent of the source
	writeFile(t, fs, "/src.txt", "changed")
	assert.Equal(t, "payload", readFile(t, fs, "/dst.txt"))
}

func testSetModified(t *testing.T, fs storage.FileSystem) {
	writeFile(t, fs, "/stamped.txt", "x")

	when := time.Date(2020, 6, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, fs.SetModified(t.Context(), mustPath(t, "/stamped.txt"), when))

	meta, err := fs.Metadata(t.Context(), mustPath(t, "/stamped.txt"))
	require.NoError(t, err)
	assert.True(t, meta.ModTime.Equal(when), "ModTime = %v, want %v", meta.ModTime, when)
}

func testProps(t *testing.T, fs storage.FileSystem) {
	writeFile(t, fs, "/propped.txt", "x")
	p := mustPath(t, "/propped.txt")

	author := storage.Property{Name: "author", Namespace: "urn:example:props", XML: []byte("alice")}
	statuses, err := fs.PatchProps(t.Context(), p, []storage.PropPatch{{Prop: author}})
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, 200, statuses[0].Status)

	value, err := fs.GetProp(t.Context(), p, author)
	require.NoError(t, err)
	assert.Equal(t, "alice", string(value))

	props, err := fs.GetProps(t.Context(), p, false)
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, "author", props[0].Name)
	assert.Nil(t, props[0].XML)

	statuses, err = fs.PatchProps(t.Context(), p, []storage.PropPatch{{Remove: true, Prop: author}})
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, 200, statuses[0].Status)

	props, err = fs.GetProps(t.Context(), p, true)
	require.NoError(t, err)
	assert.Empty(t, props)
}
