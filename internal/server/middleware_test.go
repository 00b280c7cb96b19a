package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/davfs/internal/ratelimiter"
	"github.com/marmos91/davfs/pkg/config"
	"github.com/marmos91/davfs/pkg/storage"
)

func authConfig() *config.AuthConfig {
	return &config.AuthConfig{
		Enabled: true,
		Realm:   "davfs",
		Users:   map[string]string{"alice": "secret"},
	}
}

func TestBasicAuthRejectsMissingCredentials(t *testing.T) {
	handler := withBasicAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without credentials")
	}), authConfig())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/file.txt", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `Basic realm="davfs"`)
}

func TestBasicAuthRejectsWrongPassword(t *testing.T) {
	handler := withBasicAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run with bad credentials")
	}), authConfig())

	req := httptest.NewRequest(http.MethodGet, "/file.txt", nil)
	req.SetBasicAuth("alice", "wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBasicAuthAttachesPrincipal(t *testing.T) {
	var principal string
	handler := withBasicAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, _ = storage.Principal(r.Context())
	}), authConfig())

	req := httptest.NewRequest(http.MethodGet, "/file.txt", nil)
	req.SetBasicAuth("alice", "secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", principal)
}

func TestBasicAuthUnknownUser(t *testing.T) {
	handler := withBasicAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run for unknown users")
	}), authConfig())

	req := httptest.NewRequest(http.MethodGet, "/file.txt", nil)
	req.SetBasicAuth("mallory", "secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimitRejectsOverBurst(t *testing.T) {
	handler := withRateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), ratelimiter.New(1, 2))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/file.txt", nil))
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestRequestLoggingPassesThrough(t *testing.T) {
	handler := withRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, err := w.Write([]byte("done"))
		require.NoError(t, err)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/file.txt", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "done", rec.Body.String())
}
