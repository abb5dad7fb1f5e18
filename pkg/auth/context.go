package auth

import (
	"context"
	"errors"
)

// ErrNoUserInContext is returned when a handler runs without an authenticated caller.
var ErrNoUserInContext = errors.New("user email not found in context")

// GetUserEmailFromContext extracts the caller's normalized email from JWT claims.
// Returns empty string if not authenticated.
func GetUserEmailFromContext(ctx context.Context) string {
	claims, ok := GetClaims(ctx)
	if !ok {
		return ""
	}
	return claims.UserEmail()
}

// RequireUserEmailFromContext extracts the caller's email and returns an error if absent.
func RequireUserEmailFromContext(ctx context.Context) (string, error) {
	email := GetUserEmailFromContext(ctx)
	if email == "" {
		return "", ErrNoUserInContext
	}
	return email, nil
}
