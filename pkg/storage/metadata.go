package storage

import (
	"fmt"
	"time"
)

// Metadata is a snapshot of a node's kind, size, timestamps and derived
// entity tag.
//
// It is owned by the backend: the engine fetches it fresh at the start of
// each request and never caches it across requests. The zero value of the
// optional fields means "not reported"; the engine treats absent optional
// data per RFC rather than erroring.
type Metadata struct {
	// Size is the node size in bytes (0 for collections)
	Size uint64

	// ModTime is the last modification time
	ModTime time.Time

	// IsDir reports whether the node is a collection
	IsDir bool

	// IsSymlink reports whether the node is a symbolic link
	IsSymlink bool

	// Accessed is the last access time, when the backend tracks it
	Accessed time.Time

	// Created is the creation time, when the backend tracks it
	Created time.Time

	// ContentType is the media type, when the backend knows it
	ContentType string

	// Tag overrides the derived entity tag when non-empty. Backends with
	// a cheap strong validator (e.g. an object version) set it; others
	// leave it empty and get the derived tag.
	Tag string
}

// ETag returns the entity tag for this snapshot.
//
// The derived tag is "<size>-<mtime_us>" in hex for non-empty resources
// and "<mtime_us>" alone for collections and empty resources. Enough for
// most backends; those with a stronger validator set Tag instead.
func (m *Metadata) ETag() string {
	if m.Tag != "" {
		return m.Tag
	}
	t := uint64(m.ModTime.UnixMicro())
	if !m.IsDir && m.Size > 0 {
		return fmt.Sprintf("%x-%x", m.Size, t)
	}
	return fmt.Sprintf("%x", t)
}
