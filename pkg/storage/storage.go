// Package storage defines the contract between the WebDAV protocol engine
// and pluggable storage backends.
//
// You only need this package if you are implementing your own backend.
// Otherwise use one of the provided implementations (memory, localfs, s3).
package storage

import (
	"context"
	"time"

	"github.com/marmos91/davfs/pkg/davpath"
)

// ReadDirMeta is an optimization hint for ReadDir.
type ReadDirMeta int

const (
	// ReadDirMetaData asks entries to resolve symlinks when reporting
	// metadata, like Metadata()
	ReadDirMetaData ReadDirMeta = iota

	// ReadDirMetaDataSymlink asks entries to report link metadata,
	// like SymlinkMetadata()
	ReadDirMetaDataSymlink

	// ReadDirMetaNone requests no prefetching; otherwise like
	// ReadDirMetaDataSymlink
	ReadDirMetaNone
)

// OpenOptions controls FileSystem.Open.
type OpenOptions struct {
	// Read opens for reading
	Read bool

	// Write opens for writing
	Write bool

	// Append opens in write-append mode
	Append bool

	// Truncate truncates the file first when writing
	Truncate bool

	// Create creates the file if it doesn't exist
	Create bool

	// CreateNew requires creating a new file, failing with ErrExists
	// if it already exists
	CreateNew bool

	// Size is the announced total write size, when known (from
	// Content-Length). Backends may use it to preallocate or to reject
	// with ErrTooLarge up front.
	Size *uint64
}

// ReadOptions returns options for a plain read.
func ReadOptions() OpenOptions {
	return OpenOptions{Read: true}
}

// WriteOptions returns options for a create-or-replace write.
func WriteOptions() OpenOptions {
	return OpenOptions{Write: true, Create: true, Truncate: true}
}

// Property is a WebDAV property: a namespaced name plus an opaque XML
// fragment as its value. The engine never interprets the fragment.
type Property struct {
	// Name is the property name without prefix (e.g. "displayname")
	Name string

	// Prefix is the XML prefix, if any
	Prefix string

	// Namespace is the XML namespace URI (e.g. "DAV:")
	Namespace string

	// XML is the raw inner XML of the property value; nil when only the
	// name was requested or reported
	XML []byte
}

// PropPatch is one element of a PROPPATCH batch.
type PropPatch struct {
	// Remove distinguishes a removal from a set
	Remove bool

	// Prop is the property to set or remove
	Prop Property
}

// PropStatus is the per-property outcome of a PROPPATCH batch. Status is
// an HTTP status code; each property result is independent of the 207
// envelope it travels in.
type PropStatus struct {
	Status int
	Prop   Property
}

// DirEntry is one child node of a collection.
type DirEntry interface {
	// Name returns the entry's name (a single path segment)
	Name() string

	// Metadata returns the entry's metadata. Whether symlinks are
	// resolved depends on the ReadDirMeta hint given to ReadDir.
	Metadata(ctx context.Context) (*Metadata, error)
}

// FileSystem is the capability set a storage backend must satisfy.
//
// Required operations are Open, ReadDir and Metadata. Every other
// operation is optional: backends embed Unimplemented, which answers
// ErrNotImplemented for all of them, and override what they support. The
// engine surfaces ErrNotImplemented uniformly as 501, so partial backends
// need no special-casing in the dispatcher.
//
// All operations are context-aware and must return *Error for every
// failure (never a raw OS or SDK error). Implementations must be safe for
// concurrent use by multiple request goroutines; the engine performs no
// locking of its own around storage calls.
//
// The principal attribution string, when present, travels in the context
// (see WithPrincipal); backends may record it but must not interpret it.
type FileSystem interface {
	// Open opens a file. The returned File is owned exclusively by the
	// calling request and must be closed on every exit path.
	Open(ctx context.Context, path *davpath.Path, opts OpenOptions) (File, error)

	// ReadDir enumerates the children of a collection.
	ReadDir(ctx context.Context, path *davpath.Path, meta ReadDirMeta) ([]DirEntry, error)

	// Metadata returns the metadata of a node, resolving symlinks.
	Metadata(ctx context.Context, path *davpath.Path) (*Metadata, error)

	// SymlinkMetadata returns the metadata of a node without resolving
	// a final symlink. Backends without symlinks alias Metadata.
	SymlinkMetadata(ctx context.Context, path *davpath.Path) (*Metadata, error)

	// CreateDir creates a collection. ErrExists if the node exists,
	// ErrNotFound if the parent is missing.
	CreateDir(ctx context.Context, path *davpath.Path) error

	// RemoveDir removes a collection and everything below it.
	RemoveDir(ctx context.Context, path *davpath.Path) error

	// RemoveFile removes a resource.
	RemoveFile(ctx context.Context, path *davpath.Path) error

	// Rename moves a node. Source and destination must be the same kind;
	// an existing destination resource is replaced, an existing
	// destination collection is an error. A move that would cross a
	// device or backend boundary reports ErrIsRemote.
	Rename(ctx context.Context, from, to *davpath.Path) error

	// Copy copies a resource, including its dead properties when the
	// backend implements properties.
	Copy(ctx context.Context, from, to *davpath.Path) error

	// SetAccessed sets a node's access time.
	SetAccessed(ctx context.Context, path *davpath.Path, t time.Time) error

	// SetModified sets a node's modification time.
	SetModified(ctx context.Context, path *davpath.Path, t time.Time) error

	// HaveProps reports whether the backend stores dead properties for
	// this path.
	HaveProps(ctx context.Context, path *davpath.Path) bool

	// GetProps lists the dead properties of a node. When withContent is
	// false only the names are filled in.
	GetProps(ctx context.Context, path *davpath.Path, withContent bool) ([]Property, error)

	// GetProp returns the raw XML value of one property.
	GetProp(ctx context.Context, path *davpath.Path, prop Property) ([]byte, error)

	// PatchProps applies a set/remove batch and reports a per-property
	// status for each element.
	PatchProps(ctx context.Context, path *davpath.Path, patch []PropPatch) ([]PropStatus, error)

	// GetQuota returns the space used and, when known, the total space.
	GetQuota(ctx context.Context) (used uint64, total *uint64, err error)
}

// File is an open handle returned by FileSystem.Open.
//
// The engine opens at most one File per request and guarantees it is
// flushed and closed before the response completes, on error paths too.
type File interface {
	// Metadata returns the current metadata of the open file.
	Metadata(ctx context.Context) (*Metadata, error)

	// Read reads up to len(p) bytes at the current position.
	Read(p []byte) (int, error)

	// Write writes p at the current position.
	Write(p []byte) (int, error)

	// Seek repositions the handle and returns the new offset.
	Seek(offset int64, whence int) (int64, error)

	// Flush commits buffered writes to the backend.
	Flush(ctx context.Context) error

	// Close releases the handle. Close after Flush must not lose data.
	Close() error
}

type principalKey struct{}

// WithPrincipal attaches the authenticated principal (an opaque string,
// supplied by the transport layer) to the request context. The engine
// passes it through to backends for attribution and never interprets it.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// Principal returns the principal attached to ctx, if any.
func Principal(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(principalKey{}).(string)
	return p, ok
}
