// Package handlers implements the WebDAV method dispatch: one file per
// method, sharing a single request pipeline.
//
// Every request moves through the same stages and stops at the first
// failure:
//
//  1. Resolve the target URL to a namespace path
//  2. Evaluate preconditions (If, If-Match, If-None-Match)
//  3. Confirm lock coverage for the paths the method will mutate
//  4. Execute against the storage backend
//  5. Build the response
//
// Preconditions run before the lock check: the If header both gates the
// request and carries the lock tokens the client submits, so a failed
// condition must produce 412 without the lock registry ever seeing the
// request.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/marmos91/davfs/internal/logger"
	"github.com/marmos91/davfs/internal/protocol/dav"
	"github.com/marmos91/davfs/pkg/davpath"
	"github.com/marmos91/davfs/pkg/lock"
	"github.com/marmos91/davfs/pkg/metrics"
	"github.com/marmos91/davfs/pkg/storage"
)

// Handler dispatches WebDAV requests against a storage backend and a
// lock registry. It implements http.Handler.
type Handler struct {
	fs      storage.FileSystem
	locks   lock.Registry
	prefix  string
	metrics metrics.DAVMetrics
}

// Option configures a Handler.
type Option func(*Handler)

// WithPrefix mounts the namespace under a URL prefix ("/dav"). Requests
// outside the prefix are rejected before touching storage.
func WithPrefix(prefix string) Option {
	return func(h *Handler) { h.prefix = prefix }
}

// WithMetrics attaches a metrics recorder. Nil is replaced by a no-op.
func WithMetrics(m metrics.DAVMetrics) Option {
	return func(h *Handler) {
		if m != nil {
			h.metrics = m
		}
	}
}

// New creates a Handler over the given backend and registry.
func New(fs storage.FileSystem, locks lock.Registry, opts ...Option) *Handler {
	h := &Handler{
		fs:      fs,
		locks:   locks,
		metrics: metrics.NewNoopDAVMetrics(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	h.metrics.RecordRequestStart(r.Method)
	defer h.metrics.RecordRequestEnd(r.Method)

	sw := &statusWriter{ResponseWriter: w}

	switch r.Method {
	case http.MethodOptions:
		h.handleOptions(sw, r)
	case http.MethodGet, http.MethodHead:
		h.handleGet(sw, r)
	case http.MethodPut:
		h.handlePut(sw, r)
	case http.MethodDelete:
		h.handleDelete(sw, r)
	case "MKCOL":
		h.handleMkcol(sw, r)
	case "COPY":
		h.handleCopyMove(sw, r, false)
	case "MOVE":
		h.handleCopyMove(sw, r, true)
	case "LOCK":
		h.handleLock(sw, r)
	case "UNLOCK":
		h.handleUnlock(sw, r)
	case "PROPFIND":
		h.handlePropfind(sw, r)
	case "PROPPATCH":
		h.handleProppatch(sw, r)
	default:
		sw.Header().Set("Allow", allowHeader)
		http.Error(sw, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}

	logger.Debug("%s %s -> %d (%s)", r.Method, r.URL.Path, sw.status, time.Since(start))
	h.metrics.RecordRequest(r.Method, sw.status, time.Since(start))
}

// statusWriter captures the final status code for logging and metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// ============================================================
// Shared pipeline stages
// ============================================================

// resolve maps the request URL onto the namespace. A malformed or
// escaping path never reaches the backend.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (*davpath.Path, bool) {
	p, err := davpath.ParseWithPrefix(r.URL.EscapedPath(), h.prefix)
	if err != nil {
		writeStatus(w, http.StatusBadRequest)
		return nil, false
	}
	return p, true
}

// stat fetches metadata, treating every lookup failure as absence. The
// distinction between "missing" and "unreadable" is left to the method
// execution stage, where the backend error surfaces with full fidelity.
func (h *Handler) stat(r *http.Request, p *davpath.Path) *storage.Metadata {
	meta, err := h.fs.Metadata(r.Context(), p)
	if err != nil {
		return nil
	}
	return meta
}

// checkConditions runs stage 2: the If header first, then the ETag
// header pair. It returns the submitted lock tokens and false if a
// response was already written.
func (h *Handler) checkConditions(w http.ResponseWriter, r *http.Request, p *davpath.Path, meta *storage.Metadata) ([]string, bool) {
	set, err := dav.ParseIfHeader(r.Header)
	if err != nil {
		writeStatus(w, http.StatusBadRequest)
		return nil, false
	}

	fetch := func(other *davpath.Path) *storage.Metadata {
		return h.stat(r, other)
	}
	tokens, ok := set.Evaluate(p, meta, h.prefix, fetch, h.locks.Valid)
	if !ok {
		writeStatus(w, http.StatusPreconditionFailed)
		return tokens, false
	}

	if code := dav.EvaluateETagLists(r.Header, r.Method, meta); code != 0 {
		writeStatus(w, code)
		return tokens, false
	}
	return tokens, true
}

// confirmLocks runs stage 3 for one path. On conflict it writes the 423
// body naming the covering lock.
func (h *Handler) confirmLocks(w http.ResponseWriter, p *davpath.Path, includeChildren bool, tokens []string) bool {
	if err := h.locks.Check(p, includeChildren, tokens); err != nil {
		var conflict *lock.ConflictError
		if errors.As(err, &conflict) {
			h.metrics.RecordLockDenied()
			dav.WriteLockedError(w, h.prefix+conflict.Path)
			return false
		}
		writeStatus(w, http.StatusInternalServerError)
		return false
	}
	return true
}

// mapStatus is the single, total mapping from backend error codes to
// HTTP status. Methods that need a context-specific override (MKCOL's
// missing parent, PUT's conflict) adjust the result at the call site.
func mapStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch storage.CodeOf(err) {
	case storage.ErrNotImplemented:
		return http.StatusNotImplemented
	case storage.ErrExists:
		return http.StatusMethodNotAllowed
	case storage.ErrNotFound:
		return http.StatusNotFound
	case storage.ErrForbidden:
		return http.StatusForbidden
	case storage.ErrInsufficientStorage:
		return http.StatusInsufficientStorage
	case storage.ErrLoopDetected:
		return 508 // Loop Detected
	case storage.ErrPathTooLong:
		return http.StatusRequestURITooLong
	case storage.ErrTooLarge:
		return http.StatusRequestEntityTooLarge
	case storage.ErrIsRemote:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a backend error and writes it.
func writeError(w http.ResponseWriter, err error) {
	writeStatus(w, mapStatus(err))
}

// writeStatus writes a bare status response, with the standard text body
// for errors so clients get something human readable.
func writeStatus(w http.ResponseWriter, code int) {
	if code >= 400 {
		http.Error(w, http.StatusText(code), code)
		return
	}
	w.WriteHeader(code)
}

// href renders a namespace path back into request-URL space. URL already
// re-applies the routing prefix the path was parsed with.
func (h *Handler) href(p *davpath.Path) string {
	return p.URL()
}
