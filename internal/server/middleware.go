package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/marmos91/davfs/internal/logger"
	"github.com/marmos91/davfs/internal/ratelimiter"
	"github.com/marmos91/davfs/pkg/config"
	"github.com/marmos91/davfs/pkg/storage"
)

// loggingWriter captures the response status for the access log.
type loggingWriter struct {
	http.ResponseWriter
	status int
}

func (w *loggingWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// withRequestLogging logs one line per request with method, path,
// status and duration.
func withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingWriter{ResponseWriter: w}

		next.ServeHTTP(lw, r)

		status := lw.status
		if status == 0 {
			status = http.StatusOK
		}
		logger.Info("%s %s %d %v %s", r.Method, r.URL.Path, status, time.Since(start).Round(time.Millisecond), r.RemoteAddr)
	})
}

// withBasicAuth verifies credentials against the configured user map
// and attaches the authenticated username to the request context as the
// storage principal.
//
// Authentication here is attribution, not authorization: every verified
// user sees the whole namespace, but lock leases and backend audit
// trails record who acted.
func withBasicAuth(next http.Handler, cfg *config.AuthConfig) http.Handler {
	challenge := fmt.Sprintf("Basic realm=%q", cfg.Realm)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || !checkCredentials(cfg.Users, user, pass) {
			w.Header().Set("WWW-Authenticate", challenge)
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		ctx := storage.WithPrincipal(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withRateLimit rejects requests over the configured rate with 429.
func withRateLimit(next http.Handler, limiter *ratelimiter.RateLimiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkCredentials compares the submitted password in constant time.
func checkCredentials(users map[string]string, user, pass string) bool {
	want, ok := users[user]
	if !ok {
		// burn a comparison anyway so a missing user is not
		// distinguishable by timing
		subtle.ConstantTimeCompare([]byte(pass), []byte(pass))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(pass), []byte(want)) == 1
}
