// Package localfs implements the storage contract on a local directory
// tree. Dead properties and quota are not supported and answer through
// the centralized not-implemented defaults.
package localfs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/marmos91/davfs/pkg/davpath"
	"github.com/marmos91/davfs/pkg/storage"
)

// FS serves a directory tree rooted at Root. Every namespace path maps to
// Root/<segments...>; the path model has already rejected targets that
// escape the root, so no additional containment check is needed here.
type FS struct {
	storage.Unimplemented

	root string
}

// New creates a local filesystem backend rooted at dir. The directory
// must exist.
func New(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, storage.NewError(storage.ErrGeneralFailure, dir)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, storage.NewError(storage.ErrNotFound, dir)
	}
	return &FS{root: abs}, nil
}

// local maps a namespace path onto the host filesystem.
func (f *FS) local(path *davpath.Path) string {
	return filepath.Join(f.root, filepath.FromSlash(path.String()))
}

// translate converts an OS error into the closed storage enumeration.
// This is the only place OS errors are interpreted; nothing beyond the
// enumeration leaks to the engine.
func translate(err error, path string) *storage.Error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return storage.NewError(storage.ErrNotFound, path)
	case errors.Is(err, fs.ErrExist):
		return storage.NewError(storage.ErrExists, path)
	case errors.Is(err, fs.ErrPermission):
		return storage.NewError(storage.ErrForbidden, path)
	case errors.Is(err, syscall.EXDEV):
		return storage.NewError(storage.ErrIsRemote, path)
	case errors.Is(err, syscall.ELOOP):
		return storage.NewError(storage.ErrLoopDetected, path)
	case errors.Is(err, syscall.ENAMETOOLONG):
		return storage.NewError(storage.ErrPathTooLong, path)
	case errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.EDQUOT):
		return storage.NewError(storage.ErrInsufficientStorage, path)
	case errors.Is(err, syscall.ENOTEMPTY):
		return storage.NewError(storage.ErrForbidden, path)
	default:
		return storage.NewError(storage.ErrGeneralFailure, path)
	}
}

func metaFromInfo(info fs.FileInfo) *storage.Metadata {
	return &storage.Metadata{
		Size:      uint64(info.Size()),
		ModTime:   info.ModTime(),
		IsDir:     info.IsDir(),
		IsSymlink: info.Mode()&fs.ModeSymlink != 0,
	}
}

func (f *FS) Metadata(ctx context.Context, path *davpath.Path) (*storage.Metadata, error) {
	info, err := os.Stat(f.local(path))
	if err != nil {
		return nil, translate(err, path.String())
	}
	return metaFromInfo(info), nil
}

func (f *FS) SymlinkMetadata(ctx context.Context, path *davpath.Path) (*storage.Metadata, error) {
	info, err := os.Lstat(f.local(path))
	if err != nil {
		return nil, translate(err, path.String())
	}
	return metaFromInfo(info), nil
}

type dirEntry struct {
	path  string
	entry fs.DirEntry
	stat  bool // resolve symlinks when reporting metadata
}

func (e *dirEntry) Name() string { return e.entry.Name() }

func (e *dirEntry) Metadata(ctx context.Context) (*storage.Metadata, error) {
	var (
		info fs.FileInfo
		err  error
	)
	if e.stat {
		info, err = os.Stat(filepath.Join(e.path, e.entry.Name()))
	} else {
		info, err = e.entry.Info()
	}
	if err != nil {
		return nil, translate(err, e.entry.Name())
	}
	return metaFromInfo(info), nil
}

func (f *FS) ReadDir(ctx context.Context, path *davpath.Path, meta storage.ReadDirMeta) ([]storage.DirEntry, error) {
	dir := f.local(path)
	raw, err := os.ReadDir(dir)
	if err != nil {
		return nil, translate(err, path.String())
	}
	entries := make([]storage.DirEntry, 0, len(raw))
	for _, e := range raw {
		entries = append(entries, &dirEntry{
			path:  dir,
			entry: e,
			stat:  meta == storage.ReadDirMetaData,
		})
	}
	return entries, nil
}

func (f *FS) CreateDir(ctx context.Context, path *davpath.Path) error {
	if err := os.Mkdir(f.local(path), 0o755); err != nil {
		return translate(err, path.String())
	}
	return nil
}

func (f *FS) RemoveDir(ctx context.Context, path *davpath.Path) error {
	local := f.local(path)
	info, err := os.Stat(local)
	if err != nil {
		return translate(err, path.String())
	}
	if !info.IsDir() {
		return storage.NewError(storage.ErrNotFound, path.String())
	}
	if err := os.RemoveAll(local); err != nil {
		return translate(err, path.String())
	}
	return nil
}

func (f *FS) RemoveFile(ctx context.Context, path *davpath.Path) error {
	local := f.local(path)
	info, err := os.Lstat(local)
	if err != nil {
		return translate(err, path.String())
	}
	if info.IsDir() {
		return storage.NewError(storage.ErrNotFound, path.String())
	}
	if err := os.Remove(local); err != nil {
		return translate(err, path.String())
	}
	return nil
}

func (f *FS) Rename(ctx context.Context, from, to *davpath.Path) error {
	src := f.local(from)
	dst := f.local(to)

	// os.Rename onto an existing directory fails; onto an existing file
	// it replaces, which is exactly the contract.
	if info, err := os.Stat(dst); err == nil && info.IsDir() {
		return storage.NewError(storage.ErrForbidden, to.String())
	}
	if err := os.Rename(src, dst); err != nil {
		return translate(err, from.String())
	}
	return nil
}

func (f *FS) Copy(ctx context.Context, from, to *davpath.Path) error {
	src := f.local(from)
	dst := f.local(to)

	info, err := os.Stat(src)
	if err != nil {
		return translate(err, from.String())
	}
	if info.IsDir() {
		if err := os.Mkdir(dst, info.Mode().Perm()); err != nil && !errors.Is(err, fs.ErrExist) {
			return translate(err, to.String())
		}
		return nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return translate(err, from.String())
	}
	if err := os.WriteFile(dst, data, info.Mode().Perm()); err != nil {
		return translate(err, to.String())
	}
	return nil
}

func (f *FS) SetAccessed(ctx context.Context, path *davpath.Path, t time.Time) error {
	local := f.local(path)
	info, err := os.Stat(local)
	if err != nil {
		return translate(err, path.String())
	}
	if err := os.Chtimes(local, t, info.ModTime()); err != nil {
		return translate(err, path.String())
	}
	return nil
}

func (f *FS) SetModified(ctx context.Context, path *davpath.Path, t time.Time) error {
	if err := os.Chtimes(f.local(path), time.Time{}, t); err != nil {
		return translate(err, path.String())
	}
	return nil
}
