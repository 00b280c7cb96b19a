package storage

import (
	"context"
	"time"

	"github.com/marmos91/davfs/pkg/davpath"
)

// Unimplemented provides the default "not implemented" answer for every
// optional FileSystem capability.
//
// Backends embed it and override what they support. Keeping the defaults
// centralized here means adding a new optional capability never requires
// touching every backend, and the engine's uniform 501 mapping does the
// rest.
type Unimplemented struct{}

func (Unimplemented) CreateDir(ctx context.Context, path *davpath.Path) error {
	return NewError(ErrNotImplemented, path.String())
}

func (Unimplemented) RemoveDir(ctx context.Context, path *davpath.Path) error {
	return NewError(ErrNotImplemented, path.String())
}

func (Unimplemented) RemoveFile(ctx context.Context, path *davpath.Path) error {
	return NewError(ErrNotImplemented, path.String())
}

func (Unimplemented) Rename(ctx context.Context, from, to *davpath.Path) error {
	return NewError(ErrNotImplemented, from.String())
}

func (Unimplemented) Copy(ctx context.Context, from, to *davpath.Path) error {
	return NewError(ErrNotImplemented, from.String())
}

func (Unimplemented) SetAccessed(ctx context.Context, path *davpath.Path, t time.Time) error {
	return NewError(ErrNotImplemented, path.String())
}

func (Unimplemented) SetModified(ctx context.Context, path *davpath.Path, t time.Time) error {
	return NewError(ErrNotImplemented, path.String())
}

func (Unimplemented) HaveProps(ctx context.Context, path *davpath.Path) bool {
	return false
}

func (Unimplemented) GetProps(ctx context.Context, path *davpath.Path, withContent bool) ([]Property, error) {
	return nil, NewError(ErrNotImplemented, path.String())
}

func (Unimplemented) GetProp(ctx context.Context, path *davpath.Path, prop Property) ([]byte, error) {
	return nil, NewError(ErrNotImplemented, path.String())
}

func (Unimplemented) PatchProps(ctx context.Context, path *davpath.Path, patch []PropPatch) ([]PropStatus, error) {
	return nil, NewError(ErrNotImplemented, path.String())
}

func (Unimplemented) GetQuota(ctx context.Context) (uint64, *uint64, error) {
	return 0, nil, NewError(ErrNotImplemented, "")
}
