package s3

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/davfs/pkg/davpath"
	"github.com/marmos91/davfs/pkg/storage"
)

// file buffers the whole object in memory. Reads fetch the object once on
// open; writes upload on Flush. Fine for the request-scoped handles the
// engine creates; large-object streaming is a backend upgrade, not an
// engine concern.
type file struct {
	fs      *FS
	path    *davpath.Path
	buf     []byte
	pos     int64
	writing bool
	dirty   bool
}

func (f *FS) Open(ctx context.Context, path *davpath.Path, opts storage.OpenOptions) (storage.File, error) {
	meta, err := f.Metadata(ctx, path)
	exists := err == nil
	if exists && meta.IsDir {
		return nil, storage.NewError(storage.ErrForbidden, path.String())
	}

	switch {
	case exists && opts.CreateNew:
		return nil, storage.NewError(storage.ErrExists, path.String())
	case !exists && !opts.Create && !opts.CreateNew:
		return nil, storage.NewError(storage.ErrNotFound, path.String())
	case !exists && !path.Parent().IsRoot():
		if _, perr := f.Metadata(ctx, path.Parent()); perr != nil {
			return nil, storage.NewError(storage.ErrNotFound, path.String())
		}
	}

	h := &file{fs: f, path: path, writing: opts.Write || opts.Append}
	if exists && !opts.Truncate {
		out, err := f.client.GetObject(ctx, &awss3.GetObjectInput{
			Bucket: aws.String(f.bucket),
			Key:    aws.String(f.key(path, false)),
		})
		if err != nil {
			return nil, translate(err, path.String())
		}
		defer out.Body.Close()
		data, err := io.ReadAll(out.Body)
		if err != nil {
			return nil, storage.NewError(storage.ErrGeneralFailure, path.String())
		}
		h.buf = data
	}
	if !exists {
		// materialize the object so a zero-length PUT still creates it
		h.dirty = true
	}
	if opts.Append {
		h.pos = int64(len(h.buf))
	}
	return h, nil
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
	f.dirty = true
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
	if !f.writing || !f.dirty {
		return nil
	}
	_, err := f.fs.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(f.fs.bucket),
		Key:    aws.String(f.fs.key(f.path, false)),
		Body:   bytes.NewReader(f.buf),
	})
	if err != nil {
		return translate(err, f.path.String())
	}
	f.dirty = false
	return nil
}

func (f *file) Close() error {
	return f.Flush(context.Background())
}
