package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/yoda/internal/auth"
	"github.com/rpattn/yoda/internal/entityloader"
	"github.com/rpattn/yoda/internal/repository"
)

func TestIdentityMiddlewareParsesHeaders(t *testing.T) {
	var got auth.Identity
	var ok bool
	handler := IdentityMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = auth.IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "u-1")
	req.Header.Set(HeaderUserRoles, "user, admin")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, ok)
	assert.Equal(t, "u-1", got.UserID)
	assert.Equal(t, []auth.Role{auth.RoleUser, auth.RoleAdmin}, got.Roles)
}

func TestIdentityMiddlewareAnonymous(t *testing.T) {
	called := false
	handler := IdentityMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, ok := auth.IdentityFromContext(r.Context())
		assert.False(t, ok)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

func TestIdentityMiddlewareRejectsUnknownRole(t *testing.T) {
	handler := IdentityMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "u-1")
	req.Header.Set(HeaderUserRoles, "root")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDataLoaderMiddlewareAttachesLoader(t *testing.T) {
	var found bool
	handler := DataLoaderMiddleware(repository.NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		found = entityloader.FromContext(r.Context()) != nil
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, found)
}

func TestLoggingMiddlewareKeepsStatus(t *testing.T) {
	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
