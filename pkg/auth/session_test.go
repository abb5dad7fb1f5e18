package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSessionStore_SelectProjectRoundTrip(t *testing.T) {
	store := NewSessionStore("test-secret", CookieSettings{Secure: false})

	req := httptest.NewRequest(http.MethodGet, "/api/projects/7/tickets", nil)
	if got := store.SelectedProject(req); got != 0 {
		t.Fatalf("expected no selection on a fresh request, got %d", got)
	}

	rec := httptest.NewRecorder()
	if err := store.SelectProject(rec, req, 7); err != nil {
		t.Fatalf("SelectProject failed: %v", err)
	}

	next := httptest.NewRequest(http.MethodGet, "/api/projects/current", nil)
	for _, c := range rec.Result().Cookies() {
		next.AddCookie(c)
	}

	if got := store.SelectedProject(next); got != 7 {
		t.Errorf("expected selected project 7, got %d", got)
	}
}

func TestSessionStore_RejectsForeignSignature(t *testing.T) {
	issuer := NewSessionStore("secret-a", CookieSettings{})
	verifier := NewSessionStore("secret-b", CookieSettings{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	if err := issuer.SelectProject(rec, req, 42); err != nil {
		t.Fatalf("SelectProject failed: %v", err)
	}

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		next.AddCookie(c)
	}

	if got := verifier.SelectedProject(next); got != 0 {
		t.Errorf("expected tampered cookie to be ignored, got %d", got)
	}
}
