package handlers

import "net/http"

// allowHeader lists every method the dispatcher routes.
const allowHeader = "OPTIONS, GET, HEAD, PUT, DELETE, MKCOL, COPY, MOVE, LOCK, UNLOCK, PROPFIND, PROPPATCH"

// handleOptions advertises protocol capabilities. Class 2 covers
// locking; MS-Author-Via keeps Microsoft clients on the DAV code path.
// RFC 4918 Section 18.
func (h *Handler) handleOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", allowHeader)
	w.Header().Set("DAV", "1, 2")
	w.Header().Set("MS-Author-Via", "DAV")
	w.WriteHeader(http.StatusOK)
}
