package handlers

import (
	"net/http"

	"github.com/marmos91/davfs/pkg/davpath"
)

// handleDelete removes a resource. Collections are removed with their
// entire subtree, so the lock check covers descendants too.
// RFC 4918 Section 9.6.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	p, ok := h.resolve(w, r)
	if !ok {
		return
	}

	meta := h.stat(r, p)
	tokens, ok := h.checkConditions(w, r, p, meta)
	if !ok {
		return
	}
	if meta == nil {
		writeStatus(w, http.StatusNotFound)
		return
	}
	if !h.confirmLocks(w, p, true, tokens) {
		return
	}

	var err error
	if meta.IsDir {
		err = h.fs.RemoveDir(r.Context(), p)
	} else {
		err = h.fs.RemoveFile(r.Context(), p)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	h.releaseCoveredLocks(p, tokens)
	writeStatus(w, http.StatusNoContent)
}

// releaseCoveredLocks drops submitted leases that were rooted at or
// below a removed resource. Locks whose tokens were not submitted simply
// lapse at their deadline.
func (h *Handler) releaseCoveredLocks(p *davpath.Path, tokens []string) {
	for _, token := range tokens {
		if h.locks.Valid(p, token) {
			_ = h.locks.Unlock(p, token)
		}
	}
}
