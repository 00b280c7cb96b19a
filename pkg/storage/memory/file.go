package memory

import (
	"context"
	"io"

	"github.com/marmos91/davfs/pkg/davpath"
	"github.com/marmos91/davfs/pkg/storage"
	"time"
)

// file is an open handle on a memory node. Reads and writes work on a
// private buffer; writes become visible in the tree on Flush (or Close),
// so a request that fails midway does not leave a torn resource behind.
type file struct {
	fs      *FS
	path    *davpath.Path
	buf     []byte
	pos     int64
	writing bool
	flushed bool
}

func (fs *FS) Open(ctx context.Context, path *davpath.Path, opts storage.OpenOptions) (storage.File, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, err := fs.lookupParent(path)
	if err != nil {
		return nil, err
	}

	n, exists := parent.children[path.Name()]
	if exists && n.isDir {
		return nil, storage.NewError(storage.ErrForbidden, path.String())
	}

	switch {
	case exists && opts.CreateNew:
		return nil, storage.NewError(storage.ErrExists, path.String())
	case !exists && !opts.Create && !opts.CreateNew:
		return nil, storage.NewError(storage.ErrNotFound, path.String())
	}

	if !exists {
		now := time.Now()
		n = &node{modTime: now, created: now}
		parent.children[path.Name()] = n
		parent.modTime = now
	}

	f := &file{fs: fs, path: path, writing: opts.Write || opts.Append}
	if opts.Truncate {
		f.buf = nil
	} else {
		f.buf = append([]byte(nil), n.data...)
	}
	if opts.Append {
		f.pos = int64(len(f.buf))
	}
	return f, nil
}

func (f *file) Metadata(ctx context.Context) (*storage.Metadata, error) {
	return f.fs.Metadata(ctx, f.path)
}

func (f *file) Read(p []byte) (int, error) {
	if f.pos >= int64(len(f.buf)) {
		return 0, io.EOF
	}
	n := copy(p, f.buf[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *file) Write(p []byte) (int, error) {
	if !f.writing {
		return 0, storage.NewError(storage.ErrForbidden, f.path.String())
	}
	end := f.pos + int64(len(p))
	if end > int64(len(f.buf)) {
		grown := make([]byte, end)
		copy(grown, f.buf)
		f.buf = grown
	}
	copy(f.buf[f.pos:end], p)
	f.pos = end
	f.flushed = false
	return len(p), nil
}

func (f *file) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = f.pos + offset
	case io.SeekEnd:
		abs = int64(len(f.buf)) + offset
	default:
		return 0, storage.NewError(storage.ErrGeneralFailure, f.path.String())
	}
	if abs < 0 {
		return 0, storage.NewError(storage.ErrGeneralFailure, f.path.String())
	}
	f.pos = abs
	return abs, nil
}

func (f *file) Flush(ctx context.Context) error {
	if !f.writing || f.flushed {
		return nil
	}

	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	n, err := f.fs.lookup(f.path)
	if err != nil {
		return err
	}
	n.data = append([]byte(nil), f.buf...)
	n.modTime = time.Now()
	f.flushed = true
	return nil
}

func (f *file) Close() error {
	return f.Flush(context.Background())
}
