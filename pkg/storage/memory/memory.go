// Package memory implements the storage contract on an in-process tree.
//
// It supports the full capability set, including dead properties, which
// makes it the reference backend for protocol compliance testing. All
// state is lost on shutdown.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/davfs/pkg/davpath"
	"github.com/marmos91/davfs/pkg/storage"
)

// node is one entry in the tree. A directory node has children; a file
// node has data. Dead properties hang off either kind.
type node struct {
	isDir    bool
	data     []byte
	children map[string]*node
	modTime  time.Time
	accessed time.Time
	created  time.Time
	props    map[string]storage.Property
}

func (n *node) metadata() *storage.Metadata {
	return &storage.Metadata{
		Size:     uint64(len(n.data)),
		ModTime:  n.modTime,
		IsDir:    n.isDir,
		Accessed: n.accessed,
		Created:  n.created,
	}
}

// propKey identifies a property by namespace and name. The prefix is
// presentation only and does not participate in identity.
func propKey(p storage.Property) string {
	return p.Namespace + "\x00" + p.Name
}

// FS is an in-memory storage backend. Safe for concurrent use; a single
// RWMutex guards the whole tree, matching the registry-side guarantee
// that lock checks and mutations serialize per path.
type FS struct {
	storage.Unimplemented

	mu   sync.RWMutex
	root *node
}

// New creates an empty in-memory backend with a root collection.
func New() *FS {
	now := time.Now()
	return &FS{
		root: &node{
			isDir:    true,
			children: make(map[string]*node),
			modTime:  now,
			created:  now,
		},
	}
}

// lookup walks the tree to the node at path. Caller holds the mutex.
func (fs *FS) lookup(path *davpath.Path) (*node, error) {
	n := fs.root
	for _, seg := range path.Segments() {
		if !n.isDir {
			return nil, storage.NewError(storage.ErrNotFound, path.String())
		}
		child, ok := n.children[seg]
		if !ok {
			return nil, storage.NewError(storage.ErrNotFound, path.String())
		}
		n = child
	}
	return n, nil
}

// lookupParent returns the parent directory node of path.
func (fs *FS) lookupParent(path *davpath.Path) (*node, error) {
	parent, err := fs.lookup(path.Parent())
	if err != nil {
		return nil, err
	}
	if !parent.isDir {
		return nil, storage.NewError(storage.ErrNotFound, path.String())
	}
	return parent, nil
}

func (fs *FS) Metadata(ctx context.Context, path *davpath.Path) (*storage.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, storage.NewError(storage.ErrGeneralFailure, path.String())
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	n, err := fs.lookup(path)
	if err != nil {
		return nil, err
	}
	return n.metadata(), nil
}

// SymlinkMetadata aliases Metadata: the memory tree has no symlinks.
func (fs *FS) SymlinkMetadata(ctx context.Context, path *davpath.Path) (*storage.Metadata, error) {
	return fs.Metadata(ctx, path)
}

type dirEntry struct {
	name string
	meta *storage.Metadata
}

func (e *dirEntry) Name() string { return e.name }

func (e *dirEntry) Metadata(ctx context.Context) (*storage.Metadata, error) {
	return e.meta, nil
}

func (fs *FS) ReadDir(ctx context.Context, path *davpath.Path, meta storage.ReadDirMeta) ([]storage.DirEntry, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	n, err := fs.lookup(path)
	if err != nil {
		return nil, err
	}
	if !n.isDir {
		return nil, storage.NewError(storage.ErrNotFound, path.String())
	}

	entries := make([]storage.DirEntry, 0, len(n.children))
	for name, child := range n.children {
		entries = append(entries, &dirEntry{name: name, meta: child.metadata()})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].(*dirEntry).name < entries[j].(*dirEntry).name
	})
	return entries, nil
}

func (fs *FS) CreateDir(ctx context.Context, path *davpath.Path) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if path.IsRoot() {
		return storage.NewError(storage.ErrExists, path.String())
	}
	parent, err := fs.lookupParent(path)
	if err != nil {
		return err
	}
	if _, ok := parent.children[path.Name()]; ok {
		return storage.NewError(storage.ErrExists, path.String())
	}

	now := time.Now()
	parent.children[path.Name()] = &node{
		isDir:    true,
		children: make(map[string]*node),
		modTime:  now,
		created:  now,
	}
	parent.modTime = now
	return nil
}

func (fs *FS) RemoveDir(ctx context.Context, path *davpath.Path) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if path.IsRoot() {
		return storage.NewError(storage.ErrForbidden, path.String())
	}
	parent, err := fs.lookupParent(path)
	if err != nil {
		return err
	}
	n, ok := parent.children[path.Name()]
	if !ok {
		return storage.NewError(storage.ErrNotFound, path.String())
	}
	if !n.isDir {
		return storage.NewError(storage.ErrNotFound, path.String())
	}

	// the subtree goes with the collection
	delete(parent.children, path.Name())
	parent.modTime = time.Now()
	return nil
}

func (fs *FS) RemoveFile(ctx context.Context, path *davpath.Path) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, err := fs.lookupParent(path)
	if err != nil {
		return err
	}
	n, ok := parent.children[path.Name()]
	if !ok || n.isDir {
		return storage.NewError(storage.ErrNotFound, path.String())
	}

	delete(parent.children, path.Name())
	parent.modTime = time.Now()
	return nil
}

func (fs *FS) Rename(ctx context.Context, from, to *davpath.Path) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fromParent, err := fs.lookupParent(from)
	if err != nil {
		return err
	}
	n, ok := fromParent.children[from.Name()]
	if !ok {
		return storage.NewError(storage.ErrNotFound, from.String())
	}

	toParent, err := fs.lookupParent(to)
	if err != nil {
		return err
	}
	if existing, ok := toParent.children[to.Name()]; ok {
		// replacing a file is fine, replacing a directory is not
		if existing.isDir {
			return storage.NewError(storage.ErrForbidden, to.String())
		}
	}

	delete(fromParent.children, from.Name())
	toParent.children[to.Name()] = n
	now := time.Now()
	fromParent.modTime = now
	toParent.modTime = now
	return nil
}

func (fs *FS) Copy(ctx context.Context, from, to *davpath.Path) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	src, err := fs.lookup(from)
	if err != nil {
		return err
	}
	toParent, err := fs.lookupParent(to)
	if err != nil {
		return err
	}
	if existing, ok := toParent.children[to.Name()]; ok && existing.isDir {
		return storage.NewError(storage.ErrForbidden, to.String())
	}

	toParent.children[to.Name()] = cloneNode(src)
	toParent.modTime = time.Now()
	return nil
}

// cloneNode deep-copies a node, its data, its dead properties and, for
// directories, its children.
func cloneNode(n *node) *node {
	c := &node{
		isDir:    n.isDir,
		modTime:  n.modTime,
		accessed: n.accessed,
		created:  time.Now(),
	}
	if n.data != nil {
		c.data = append([]byte(nil), n.data...)
	}
	if n.props != nil {
		c.props = make(map[string]storage.Property, len(n.props))
		for k, v := range n.props {
			c.props[k] = v
		}
	}
	if n.isDir {
		c.children = make(map[string]*node, len(n.children))
		for name, child := range n.children {
			c.children[name] = cloneNode(child)
		}
	}
	return c
}

func (fs *FS) SetAccessed(ctx context.Context, path *davpath.Path, t time.Time) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.lookup(path)
	if err != nil {
		return err
	}
	n.accessed = t
	return nil
}

func (fs *FS) SetModified(ctx context.Context, path *davpath.Path, t time.Time) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.lookup(path)
	if err != nil {
		return err
	}
	n.modTime = t
	return nil
}

// GetQuota reports bytes used across the whole tree; total is unknown.
func (fs *FS) GetQuota(ctx context.Context) (uint64, *uint64, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var walk func(n *node) uint64
	walk = func(n *node) uint64 {
		used := uint64(len(n.data))
		for _, child := range n.children {
			used += walk(child)
		}
		return used
	}
	return walk(fs.root), nil, nil
}
