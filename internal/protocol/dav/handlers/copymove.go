package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/marmos91/davfs/internal/protocol/dav"
	"github.com/marmos91/davfs/pkg/davpath"
	"github.com/marmos91/davfs/pkg/storage"
)

// handleCopyMove implements COPY and MOVE, which share everything except
// the final storage operation and the lock scope on the source.
// RFC 4918 Sections 9.8 and 9.9.
//
// Overwrite semantics: with Overwrite true (the default) an existing
// destination is removed first, as if by DELETE, and the response is
// 204. With Overwrite false an existing destination fails the request
// with 412 before anything is touched.
func (h *Handler) handleCopyMove(w http.ResponseWriter, r *http.Request, move bool) {
	src, ok := h.resolve(w, r)
	if !ok {
		return
	}

	dst, err := dav.ParseDestination(r.Header, r.Host, h.prefix)
	if err != nil {
		if errors.Is(err, dav.ErrDestinationRemote) {
			writeStatus(w, http.StatusBadGateway)
		} else {
			writeStatus(w, http.StatusBadRequest)
		}
		return
	}
	if src.Equal(dst) {
		writeStatus(w, http.StatusForbidden)
		return
	}
	overwrite, err := dav.ParseOverwrite(r.Header)
	if err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	// COPY may be shallow (Depth 0); MOVE is always the whole subtree
	depth, err := dav.ParseDepth(r.Header, dav.DepthInfinity)
	if err != nil || depth == dav.Depth1 || (move && depth != dav.DepthInfinity) {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	meta := h.stat(r, src)
	tokens, ok := h.checkConditions(w, r, src, meta)
	if !ok {
		return
	}
	if meta == nil {
		writeStatus(w, http.StatusNotFound)
		return
	}
	if meta.IsDir && src.IsAncestorOf(dst) {
		// copying a collection into itself would never terminate
		writeStatus(w, http.StatusForbidden)
		return
	}

	if move && !h.confirmLocks(w, src, true, tokens) {
		return
	}
	if !h.confirmLocks(w, dst, true, tokens) {
		return
	}

	dstMeta := h.stat(r, dst)
	if dstMeta != nil && !overwrite {
		writeStatus(w, http.StatusPreconditionFailed)
		return
	}
	if dstMeta == nil {
		if parent := h.stat(r, dst.Parent()); parent == nil || !parent.IsDir {
			writeStatus(w, http.StatusConflict)
			return
		}
	}

	if dstMeta != nil {
		var rmErr error
		if dstMeta.IsDir {
			rmErr = h.fs.RemoveDir(r.Context(), dst)
		} else {
			rmErr = h.fs.RemoveFile(r.Context(), dst)
		}
		if rmErr != nil {
			writeError(w, rmErr)
			return
		}
	}

	if move {
		err = h.fs.Rename(r.Context(), src, dst)
	} else {
		err = h.copyTree(r.Context(), src, dst, meta.IsDir, depth)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	if move {
		h.releaseCoveredLocks(src, tokens)
	}
	if dstMeta == nil {
		writeStatus(w, http.StatusCreated)
	} else {
		writeStatus(w, http.StatusNoContent)
	}
}

// copyTree duplicates a resource. Collections recurse unless the copy is
// shallow. Backends that implement Copy natively handle files; the
// generic fallback streams through open handles.
func (h *Handler) copyTree(ctx context.Context, src, dst *davpath.Path, isDir bool, depth dav.Depth) error {
	if !isDir {
		err := h.fs.Copy(ctx, src, dst)
		if storage.IsCode(err, storage.ErrNotImplemented) {
			return h.copyFile(ctx, src, dst)
		}
		return err
	}

	if err := h.fs.CreateDir(ctx, dst); err != nil {
		return err
	}
	if depth == dav.Depth0 {
		return nil
	}

	entries, err := h.fs.ReadDir(ctx, src, storage.ReadDirMetaData)
	if err != nil {
		return err
	}
	for _, e := range entries {
		m, err := e.Metadata(ctx)
		if err != nil {
			return err
		}
		if err := h.copyTree(ctx, src.Child(e.Name(), m.IsDir), dst.Child(e.Name(), m.IsDir), m.IsDir, depth); err != nil {
			return err
		}
	}
	return nil
}

// copyFile is the open/read/write fallback for backends without a
// native Copy.
func (h *Handler) copyFile(ctx context.Context, src, dst *davpath.Path) error {
	in, err := h.fs.Open(ctx, src, storage.ReadOptions())
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := h.fs.Open(ctx, dst, storage.WriteOptions())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
