package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

// mockAuthService is a mock implementation of AuthService for testing.
type mockAuthService struct {
	claims          *Claims
	token           string
	validateErr     error
	requireEmailErr error
}

func (m *mockAuthService) ValidateRequest(r *http.Request) (*Claims, string, error) {
	if m.validateErr != nil {
		return nil, "", m.validateErr
	}
	return m.claims, m.token, nil
}

func (m *mockAuthService) RequireEmail(claims *Claims) error {
	return m.requireEmailErr
}

func TestMiddleware_RequireAuth_Success(t *testing.T) {
	claims := &Claims{Email: "Alice@X.com"}
	authService := &mockAuthService{claims: claims, token: "test-token"}
	middleware := NewMiddleware(authService, zap.NewNop())

	var handlerCalled bool
	var ctxEmail string
	var ctxToken string

	handler := middleware.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		ctxEmail = GetUserEmailFromContext(r.Context())
		ctxToken, _ = GetToken(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	rec := httptest.NewRecorder()

	handler(rec, req)

	if !handlerCalled {
		t.Error("expected handler to be called")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if ctxEmail != "alice@x.com" {
		t.Errorf("expected normalized email in context, got %q", ctxEmail)
	}
	if ctxToken != "test-token" {
		t.Errorf("expected token 'test-token' in context, got %q", ctxToken)
	}
}

func TestMiddleware_RequireAuth_Unauthorized(t *testing.T) {
	tests := []struct {
		name        string
		authService *mockAuthService
		wantMessage string
	}{
		{
			name:        "no token",
			authService: &mockAuthService{validateErr: ErrMissingAuthorization},
			wantMessage: "Authentication required",
		},
		{
			name:        "invalid token",
			authService: &mockAuthService{validateErr: ErrInvalidAudience},
			wantMessage: "Invalid or expired token",
		},
		{
			name: "token without email",
			authService: &mockAuthService{
				claims:          &Claims{},
				token:           "test-token",
				requireEmailErr: ErrMissingEmail,
			},
			wantMessage: "Token does not identify a user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			middleware := NewMiddleware(tt.authService, zap.NewNop())

			handler := middleware.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler should not be called")
			})

			req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
			rec := httptest.NewRecorder()

			handler(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", rec.Code)
			}

			var response map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if response["error"] != "unauthorized" {
				t.Errorf("expected error 'unauthorized', got %q", response["error"])
			}
			if response["message"] != tt.wantMessage {
				t.Errorf("expected message %q, got %q", tt.wantMessage, response["message"])
			}
			if rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate challenge header")
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()

	if err := WriteError(rec, http.StatusServiceUnavailable, "database_error", "Database connection error"); err != nil {
		t.Fatalf("WriteError: %v", err)
	}

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["error"] != "database_error" || body["message"] != "Database connection error" {
		t.Errorf("body = %v", body)
	}
}
