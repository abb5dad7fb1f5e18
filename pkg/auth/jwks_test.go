package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// createTestToken creates a JWT token for testing (unsigned, for dev mode).
func createTestToken(claims *Claims) string {
	header := map[string]string{
		"alg": "none",
		"typ": "JWT",
	}
	headerJSON, _ := json.Marshal(header)
	headerB64 := base64.RawURLEncoding.EncodeToString(headerJSON)

	claimsJSON, _ := json.Marshal(claims)
	claimsB64 := base64.RawURLEncoding.EncodeToString(claimsJSON)

	// Return unsigned token (header.claims.)
	return headerB64 + "." + claimsB64 + "."
}

func newDevClient(t *testing.T, audience string) *JWKSClient {
	t.Helper()
	client, err := NewJWKSClient(&JWKSConfig{EnableVerification: false, Audience: audience})
	if err != nil {
		t.Fatalf("NewJWKSClient failed: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestJWKSClient_ValidateToken_DevMode(t *testing.T) {
	client := newDevClient(t, "")

	testClaims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    "https://auth.example.com",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email: "user@example.com",
		Name:  "Walter White",
	}

	claims, err := client.ValidateToken(createTestToken(testClaims))
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}

	if claims.Subject != "user-123" {
		t.Errorf("expected Subject 'user-123', got %q", claims.Subject)
	}
	if claims.Email != "user@example.com" {
		t.Errorf("expected Email 'user@example.com', got %q", claims.Email)
	}
	if claims.Name != "Walter White" {
		t.Errorf("expected Name 'Walter White', got %q", claims.Name)
	}
}

func TestJWKSClient_ValidateToken_InvalidFormat(t *testing.T) {
	client := newDevClient(t, "")

	for _, token := range []string{"", "not-a-valid-token", "a.!!!.c"} {
		if _, err := client.ValidateToken(token); err == nil {
			t.Errorf("expected error for token %q", token)
		}
	}
}

func TestJWKSClient_ValidateToken_Audience(t *testing.T) {
	client := newDevClient(t, "tracker")

	tests := []struct {
		name     string
		audience jwt.ClaimStrings
		wantErr  bool
	}{
		{"matching audience", jwt.ClaimStrings{"tracker"}, false},
		{"one of several", jwt.ClaimStrings{"other", "tracker"}, false},
		{"wrong audience", jwt.ClaimStrings{"other-service"}, true},
		{"missing audience", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := createTestToken(&Claims{
				RegisteredClaims: jwt.RegisteredClaims{Subject: "u", Audience: tt.audience},
				Email:            "u@example.com",
			})
			_, err := client.ValidateToken(token)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAudience) {
					t.Errorf("expected ErrInvalidAudience, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestNewJWKSClient_VerificationWithoutEndpoints(t *testing.T) {
	_, err := NewJWKSClient(&JWKSConfig{EnableVerification: true})
	if err == nil {
		t.Fatal("expected error when verification is enabled without endpoints")
	}
}

func TestJWKSClient_Interface(t *testing.T) {
	var _ JWKSClientInterface = (*JWKSClient)(nil)
}
