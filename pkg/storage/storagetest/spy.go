package storagetest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/marmos91/davfs/pkg/davpath"
	"github.com/marmos91/davfs/pkg/storage"
)

// Spy wraps a FileSystem and counts mutating calls. Tests use it to
// prove that refused requests (412, 423) never reach the backend.
type Spy struct {
	storage.FileSystem

	mutations atomic.Int64
}

// NewSpy wraps fs.
func NewSpy(fs storage.FileSystem) *Spy {
	return &Spy{FileSystem: fs}
}

// Mutations returns the number of mutating calls observed so far. Opens
// for writing count; read-only opens do not.
func (s *Spy) Mutations() int64 {
	return s.mutations.Load()
}

func (s *Spy) Open(ctx context.Context, path *davpath.Path, opts storage.OpenOptions) (storage.File, error) {
	if opts.Write || opts.Append || opts.Create || opts.CreateNew || opts.Truncate {
		s.mutations.Add(1)
	}
	return s.FileSystem.Open(ctx, path, opts)
}

func (s *Spy) CreateDir(ctx context.Context, path *davpath.Path) error {
	s.mutations.Add(1)
	return s.FileSystem.CreateDir(ctx, path)
}

func (s *Spy) RemoveDir(ctx context.Context, path *davpath.Path) error {
	s.mutations.Add(1)
	return s.FileSystem.RemoveDir(ctx, path)
}

func (s *Spy) RemoveFile(ctx context.Context, path *davpath.Path) error {
	s.mutations.Add(1)
	return s.FileSystem.RemoveFile(ctx, path)
}

func (s *Spy) Rename(ctx context.Context, from, to *davpath.Path) error {
	s.mutations.Add(1)
	return s.FileSystem.Rename(ctx, from, to)
}

func (s *Spy) Copy(ctx context.Context, from, to *davpath.Path) error {
	s.mutations.Add(1)
	return s.FileSystem.Copy(ctx, from, to)
}

func (s *Spy) SetAccessed(ctx context.Context, path *davpath.Path, t time.Time) error {
	s.mutations.Add(1)
	return s.FileSystem.SetAccessed(ctx, path, t)
}

func (s *Spy) SetModified(ctx context.Context, path *davpath.Path, t time.Time) error {
	s.mutations.Add(1)
	return s.FileSystem.SetModified(ctx, path, t)
}

func (s *Spy) PatchProps(ctx context.Context, path *davpath.Path, patch []storage.PropPatch) ([]storage.PropStatus, error) {
	s.mutations.Add(1)
	return s.FileSystem.PatchProps(ctx, path, patch)
}
