package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/marmos91/davfs/internal/protocol/dav"
	"github.com/marmos91/davfs/pkg/davpath"
	"github.com/marmos91/davfs/pkg/lock"
	"github.com/marmos91/davfs/pkg/storage"
)

// handleLock grants a new lease or refreshes an existing one.
// RFC 4918 Section 9.10.
//
// A request with a lockinfo body is a new lock. A request with no body
// is a refresh: the token to renew comes in through the If header.
// Locking an unmapped URL creates an empty resource, which is why the
// response is 201 in that case. The lease is acquired first, so a lock
// conflict leaves no file behind; if the creation then fails, the lease
// is released again.
func (h *Handler) handleLock(w http.ResponseWriter, r *http.Request) {
	p, ok := h.resolve(w, r)
	if !ok {
		return
	}

	// Depth 1 is not a legal lock scope
	depth, err := dav.ParseDepth(r.Header, dav.DepthInfinity)
	if err != nil || depth == dav.Depth1 {
		writeStatus(w, http.StatusBadRequest)
		return
	}
	timeout := dav.ParseTimeout(r.Header)

	req, err := dav.ParseLockBody(r.Body)
	if err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	meta := h.stat(r, p)
	tokens, ok := h.checkConditions(w, r, p, meta)
	if !ok {
		return
	}

	if req == nil {
		h.refreshLock(w, p, tokens, timeout)
		return
	}

	if meta == nil && p.IsCollection() {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	principal, _ := storage.Principal(r.Context())
	held, err := h.locks.Lock(p, depth == dav.DepthInfinity, req.Exclusive, req.Owner, principal, timeout)
	if err != nil {
		var conflict *lock.ConflictError
		if errors.As(err, &conflict) {
			h.metrics.RecordLockDenied()
			dav.WriteLockedError(w, h.prefix+conflict.Path)
			return
		}
		writeStatus(w, http.StatusInternalServerError)
		return
	}

	created := false
	if meta == nil {
		f, err := h.fs.Open(r.Context(), p, storage.WriteOptions())
		if err != nil {
			_ = h.locks.Unlock(p, held.Token)
			if storage.IsCode(err, storage.ErrNotFound) {
				writeStatus(w, http.StatusConflict)
				return
			}
			writeError(w, err)
			return
		}
		if err := f.Close(); err != nil {
			_ = h.locks.Unlock(p, held.Token)
			writeError(w, err)
			return
		}
		created = true
	}

	h.metrics.RecordLockGranted(held.Exclusive)
	if err := dav.WriteLockResponse(w, held, created); err != nil {
		return
	}
}

// refreshLock renews a lease named in the If header. A token that no
// longer matches a live lease on this path fails the implicit
// precondition with 412.
func (h *Handler) refreshLock(w http.ResponseWriter, p *davpath.Path, tokens []string, timeout time.Duration) {
	for _, token := range tokens {
		held, err := h.locks.Refresh(p, token, timeout)
		if err == nil {
			_ = dav.WriteLockResponse(w, held, false)
			return
		}
		if !errors.Is(err, lock.ErrNotFound) {
			writeStatus(w, http.StatusInternalServerError)
			return
		}
	}
	writeStatus(w, http.StatusPreconditionFailed)
}

// handleUnlock releases the lease named by the Lock-Token header.
// RFC 4918 Section 9.11.
func (h *Handler) handleUnlock(w http.ResponseWriter, r *http.Request) {
	p, ok := h.resolve(w, r)
	if !ok {
		return
	}

	token, err := dav.ParseLockTokenHeader(r.Header)
	if err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	switch err := h.locks.Unlock(p, token); {
	case err == nil:
		writeStatus(w, http.StatusNoContent)
	case errors.Is(err, lock.ErrForbidden):
		writeStatus(w, http.StatusForbidden)
	case errors.Is(err, lock.ErrNotFound):
		writeStatus(w, http.StatusConflict)
	default:
		writeStatus(w, http.StatusInternalServerError)
	}
}
