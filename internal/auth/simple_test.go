package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func protected(t *testing.T) http.Handler {
	t.Helper()
	return Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestMiddleware_ExemptPaths(t *testing.T) {
	t.Setenv("GRANTH_API_TOKEN", "secret")
	h := protected(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for %s, got %d", path, rec.Code)
		}
	}
}

func TestMiddleware_MissingToken(t *testing.T) {
	t.Setenv("GRANTH_API_TOKEN", "secret")
	h := protected(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/books", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_WrongToken(t *testing.T) {
	t.Setenv("GRANTH_API_TOKEN", "secret")
	h := protected(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/books", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestMiddleware_ValidToken(t *testing.T) {
	t.Setenv("GRANTH_API_TOKEN", "secret")
	h := protected(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/books", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMiddleware_NoTokenConfigured(t *testing.T) {
	t.Setenv("GRANTH_API_TOKEN", "")
	h := protected(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/books", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 when no token configured, got %d", rec.Code)
	}
}
