package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCallerStoredInContext(t *testing.T) {
	var got string
	handler := Caller(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = CallerFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", http.NoBody)
	req.Header.Set(HeaderCaller, "  alice ")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got != "alice" {
		t.Errorf("expected caller alice, got %q", got)
	}
}

func TestCallerRequiredForMutations(t *testing.T) {
	called := false
	handler := Caller(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if called {
		t.Error("handler must not run without a caller")
	}
}

func TestCallerOptionalForReads(t *testing.T) {
	called := false
	handler := Caller(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", http.NoBody)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !called {
		t.Error("reads should pass without a caller")
	}
}
