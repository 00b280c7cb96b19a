package localfs

import (
	"context"
	"os"

	"github.com/marmos91/davfs/pkg/davpath"
	"github.com/marmos91/davfs/pkg/storage"
)

// file wraps an *os.File in the storage file contract.
type file struct {
	f    *os.File
	path *davpath.Path
}

func (f *FS) Open(ctx context.Context, path *davpath.Path, opts storage.OpenOptions) (storage.File, error) {
	flag := 0
	switch {
	case opts.Read && (opts.Write || opts.Append):
		flag = os.O_RDWR
	case opts.Write || opts.Append:
		flag = os.O_WRONLY
	default:
		flag = os.O_RDONLY
	}
	if opts.Append {
		flag |= os.O_APPEND
	}
	if opts.Truncate {
		flag |= os.O_TRUNC
	}
	if opts.CreateNew {
		flag |= os.O_CREATE | os.O_EXCL
	} else if opts.Create {
		flag |= os.O_CREATE
	}

	local := f.local(path)
	if info, err := os.Stat(local); err == nil && info.IsDir() {
		return nil, storage.NewError(storage.ErrForbidden, path.String())
	}

	osf, err := os.OpenFile(local, flag, 0o644)
	if err != nil {
		return nil, translate(err, path.String())
	}
	return &file{f: osf, path: path}, nil
}

func (f *file) Metadata(ctx context.Context) (*storage.Metadata, error) {
	info, err := f.f.Stat()
	if err != nil {
		return nil, translate(err, f.path.String())
	}
	return metaFromInfo(info), nil
}

func (f *file) Read(p []byte) (int, error) {
	return f.f.Read(p)
}

func (f *file) Write(p []byte) (int, error) {
	n, err := f.f.Write(p)
	if err != nil {
		return n, translate(err, f.path.String())
	}
	return n, nil
}

func (f *file) Seek(offset int64, whence int) (int64, error) {
	pos, err := f.f.Seek(offset, whence)
	if err != nil {
		return pos, translate(err, f.path.String())
	}
	return pos, nil
}

func (f *file) Flush(ctx context.Context) error {
	if err := f.f.Sync(); err != nil {
		return translate(err, f.path.String())
	}
	return nil
}

func (f *file) Close() error {
	if err := f.f.Close(); err != nil {
		return translate(err, f.path.String())
	}
	return nil
}
