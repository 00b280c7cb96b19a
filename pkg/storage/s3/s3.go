// Package s3 implements a partial storage backend on an S3 bucket.
//
// Namespace paths map to object keys; collections are represented by a
// zero-byte marker object with a trailing-slash key, the convention used
// by most S3 browsers. Dead properties, quota and timestamp updates are
// not supported and answer through the centralized not-implemented
// defaults, which the engine surfaces uniformly as 501.
package s3

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/davfs/pkg/davpath"
	"github.com/marmos91/davfs/pkg/storage"
)

// Config carries the dependencies of the S3 backend. The client is built
// by the configuration layer (endpoint, credentials, retries) so this
// package never touches credential material.
type Config struct {
	Client    *awss3.Client
	Bucket    string
	KeyPrefix string
}

// FS is the S3-backed storage implementation.
type FS struct {
	storage.Unimplemented

	client *awss3.Client
	bucket string
	prefix string
}

// New creates an S3 backend. The bucket must already exist.
func New(cfg Config) (*FS, error) {
	if cfg.Client == nil || cfg.Bucket == "" {
		return nil, storage.NewError(storage.ErrGeneralFailure, "")
	}
	prefix := strings.Trim(cfg.KeyPrefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &FS{client: cfg.Client, bucket: cfg.Bucket, prefix: prefix}, nil
}

// key maps a namespace path to an object key. Collections carry a
// trailing slash.
func (f *FS) key(path *davpath.Path, collection bool) string {
	k := f.prefix + strings.Join(path.Segments(), "/")
	if collection && k != f.prefix {
		k += "/"
	}
	return k
}

// translate collapses SDK errors into the closed storage enumeration.
func translate(err error, path string) *storage.Error {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return storage.NewError(storage.ErrNotFound, path)
	}
	return storage.NewError(storage.ErrGeneralFailure, path)
}

// head stats a single object key.
func (f *FS) head(ctx context.Context, key string) (*awss3.HeadObjectOutput, error) {
	return f.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
}

func (f *FS) Metadata(ctx context.Context, path *davpath.Path) (*storage.Metadata, error) {
	if path.IsRoot() {
		return &storage.Metadata{IsDir: true}, nil
	}

	// try the resource key first, then the collection marker
	if out, err := f.head(ctx, f.key(path, false)); err == nil {
		meta := &storage.Metadata{Size: uint64(aws.ToInt64(out.ContentLength))}
		if out.LastModified != nil {
			meta.ModTime = *out.LastModified
		}
		if out.ETag != nil {
			meta.Tag = strings.Trim(*out.ETag, `"`)
		}
		if out.ContentType != nil {
			meta.ContentType = *out.ContentType
		}
		return meta, nil
	}
	if out, err := f.head(ctx, f.key(path, true)); err == nil {
		meta := &storage.Metadata{IsDir: true}
		if out.LastModified != nil {
			meta.ModTime = *out.LastModified
		}
		return meta, nil
	}

	// no marker: the collection may still exist implicitly through its
	// descendants' keys
	list, err := f.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
		Bucket:  aws.String(f.bucket),
		Prefix:  aws.String(f.key(path, true)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, translate(err, path.String())
	}
	if aws.ToInt32(list.KeyCount) > 0 {
		return &storage.Metadata{IsDir: true}, nil
	}
	return nil, storage.NewError(storage.ErrNotFound, path.String())
}

// SymlinkMetadata aliases Metadata: object stores have no symlinks.
func (f *FS) SymlinkMetadata(ctx context.Context, path *davpath.Path) (*storage.Metadata, error) {
	return f.Metadata(ctx, path)
}

type dirEntry struct {
	name string
	meta *storage.Metadata
}

func (e *dirEntry) Name() string { return e.name }

func (e *dirEntry) Metadata(ctx context.Context) (*storage.Metadata, error) {
	return e.meta, nil
}

func (f *FS) ReadDir(ctx context.Context, path *davpath.Path, meta storage.ReadDirMeta) ([]storage.DirEntry, error) {
	if _, err := f.Metadata(ctx, path); err != nil {
		return nil, err
	}

	prefix := f.key(path, true)
	var entries []storage.DirEntry
	paginator := awss3.NewListObjectsV2Paginator(f.client, &awss3.ListObjectsV2Input{
		Bucket:    aws.String(f.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, translate(err, path.String())
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			if name == "" {
				continue
			}
			entries = append(entries, &dirEntry{name: name, meta: &storage.Metadata{IsDir: true}})
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name == "" || strings.Contains(name, "/") {
				// the collection's own marker, or a nested key already
				// reported via CommonPrefixes
				continue
			}
			m := &storage.Metadata{Size: uint64(aws.ToInt64(obj.Size))}
			if obj.LastModified != nil {
				m.ModTime = *obj.LastModified
			}
			if obj.ETag != nil {
				m.Tag = strings.Trim(aws.ToString(obj.ETag), `"`)
			}
			entries = append(entries, &dirEntry{name: name, meta: m})
		}
	}
	return entries, nil
}

func (f *FS) CreateDir(ctx context.Context, path *davpath.Path) error {
	if _, err := f.Metadata(ctx, path); err == nil {
		return storage.NewError(storage.ErrExists, path.String())
	}
	if !path.Parent().IsRoot() {
		if _, err := f.Metadata(ctx, path.Parent()); err != nil {
			return storage.NewError(storage.ErrNotFound, path.String())
		}
	}

	_, err := f.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.key(path, true)),
		Body:   strings.NewReader(""),
	})
	if err != nil {
		return translate(err, path.String())
	}
	return nil
}

func (f *FS) RemoveDir(ctx context.Context, path *davpath.Path) error {
	meta, err := f.Metadata(ctx, path)
	if err != nil {
		return err
	}
	if !meta.IsDir {
		return storage.NewError(storage.ErrNotFound, path.String())
	}

	// every key under the prefix goes, marker included; the flat
	// keyspace makes the subtree a single listing
	prefix := f.key(path, true)
	paginator := awss3.NewListObjectsV2Paginator(f.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(f.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return translate(err, path.String())
		}
		for _, obj := range page.Contents {
			_, err := f.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
				Bucket: aws.String(f.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				return translate(err, path.String())
			}
		}
	}
	return nil
}

func (f *FS) RemoveFile(ctx context.Context, path *davpath.Path) error {
	if _, err := f.head(ctx, f.key(path, false)); err != nil {
		return storage.NewError(storage.ErrNotFound, path.String())
	}
	_, err := f.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.key(path, false)),
	})
	if err != nil {
		return translate(err, path.String())
	}
	return nil
}

func (f *FS) Copy(ctx context.Context, from, to *davpath.Path) error {
	meta, err := f.Metadata(ctx, from)
	if err != nil {
		return err
	}
	if meta.IsDir {
		return f.CreateDir(ctx, to)
	}

	_, err = f.client.CopyObject(ctx, &awss3.CopyObjectInput{
		Bucket:     aws.String(f.bucket),
		Key:        aws.String(f.key(to, false)),
		CopySource: aws.String(f.bucket + "/" + f.key(from, false)),
	})
	if err != nil {
		return translate(err, from.String())
	}
	return nil
}

// Rename is copy-then-delete for resources. Collection renames would need
// a full subtree copy and are left to the not-implemented default via
// this explicit refusal.
func (f *FS) Rename(ctx context.Context, from, to *davpath.Path) error {
	meta, err := f.Metadata(ctx, from)
	if err != nil {
		return err
	}
	if meta.IsDir {
		return storage.NewError(storage.ErrNotImplemented, from.String())
	}
	if err := f.Copy(ctx, from, to); err != nil {
		return err
	}
	return f.RemoveFile(ctx, from)
}
