package handlers

import (
	"io"
	"net/http"

	"github.com/marmos91/davfs/pkg/storage"
)

// handleMkcol creates a collection at the target.
// RFC 4918 Section 9.3.
//
// Status mapping is fixed by the RFC: an existing resource at the target
// is 405, a missing intermediate collection is 409. A request body is
// refused with 415 since no body format is defined for MKCOL.
func (h *Handler) handleMkcol(w http.ResponseWriter, r *http.Request) {
	if hasBody(r) {
		writeStatus(w, http.StatusUnsupportedMediaType)
		return
	}

	p, ok := h.resolve(w, r)
	if !ok {
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

	if err := h.fs.CreateDir(r.Context(), p); err != nil {
		switch storage.CodeOf(err) {
		case storage.ErrExists:
			writeStatus(w, http.StatusMethodNotAllowed)
		case storage.ErrNotFound:
			writeStatus(w, http.StatusConflict)
		default:
			writeError(w, err)
		}
		return
	}

	// the new collection's canonical address carries a trailing slash
	// whether or not the client sent one
	p.AddSlash()
	w.Header().Set("Content-Location", h.href(p))
	writeStatus(w, http.StatusCreated)
}

// hasBody reports whether the request carries an entity body.
func hasBody(r *http.Request) bool {
	if r.ContentLength > 0 {
		return true
	}
	if r.ContentLength == 0 {
		return false
	}
	// unknown length: probe one byte
	var buf [1]byte
	n, _ := r.Body.Read(buf[:])
	if n > 0 {
		return true
	}
	_, _ = io.Copy(io.Discard, r.Body)
	return false
}
