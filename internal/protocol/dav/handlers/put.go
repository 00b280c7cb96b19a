package handlers

import (
	"io"
	"net/http"

	"github.com/marmos91/davfs/pkg/storage"
)

// handlePut stores the request body as the target resource, creating it
// when absent and replacing its content when present.
// RFC 4918 Section 9.7.
//
// A target addressed with a trailing slash is a collection address and
// cannot hold content. Partial writes via Content-Range are refused:
// accepting them silently corrupts files on backends that only support
// whole-object writes.
func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	p, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if p.IsCollection() {
		writeStatus(w, http.StatusMethodNotAllowed)
		return
	}
	if r.Header.Get("Content-Range") != "" {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	meta := h.stat(r, p)
	tokens, ok := h.checkConditions(w, r, p, meta)
	if !ok {
		return
	}
	if !h.confirmLocks(w, p, false, tokens) {
		return
	}
	if meta != nil && meta.IsDir {
		writeStatus(w, http.StatusMethodNotAllowed)
		return
	}

	opts := storage.WriteOptions()
	if length := r.ContentLength; length >= 0 {
		size := uint64(length)
		opts.Size = &size
	}
	f, err := h.fs.Open(r.Context(), p, opts)
	if err != nil {
		// a missing intermediate collection is a conflict, not a 404
		if storage.IsCode(err, storage.ErrNotFound) {
			writeStatus(w, http.StatusConflict)
			return
		}
		writeError(w, err)
		return
	}

	n, copyErr := io.Copy(f, r.Body)
	h.metrics.RecordBytesTransferred("write", n)
	if copyErr != nil {
		f.Close()
		writeError(w, copyErr)
		return
	}
	if err := f.Close(); err != nil {
		writeError(w, err)
		return
	}

	if meta == nil {
		writeStatus(w, http.StatusCreated)
	} else {
		writeStatus(w, http.StatusNoContent)
	}
}
