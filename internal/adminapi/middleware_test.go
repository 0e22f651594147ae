package adminapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireSharedSecretRejectsMissingToken(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	mw := RequireSharedSecret("s3cret")(next)

	req := httptest.NewRequest(http.MethodGet, "/internal/agents/user-1", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if called {
		t.Error("expected the wrapped handler not to run")
	}
}

func TestRequireSharedSecretRejectsWrongToken(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	mw := RequireSharedSecret("s3cret")(next)

	req := httptest.NewRequest(http.MethodGet, "/internal/agents/user-1", nil)
	req.Header.Set("X-Admin-Token", "wrong")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireSharedSecretAllowsMatchingToken(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	mw := RequireSharedSecret("s3cret")(next)

	req := httptest.NewRequest(http.MethodGet, "/internal/agents/user-1", nil)
	req.Header.Set("X-Admin-Token", "s3cret")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !called {
		t.Error("expected the wrapped handler to run")
	}
}

func TestRequireSharedSecretEmptySecretDisablesCheck(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	mw := RequireSharedSecret("")(next)

	req := httptest.NewRequest(http.MethodGet, "/internal/agents/user-1", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if !called {
		t.Error("expected the wrapped handler to run when no secret is configured")
	}
}
