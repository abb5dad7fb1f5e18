package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Middleware rejects requests that do not carry a token identifying a user.
type Middleware struct {
	authService AuthService
	logger      *zap.Logger
}

// NewMiddleware creates a new auth middleware with the given AuthService.
func NewMiddleware(authService AuthService, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		logger:      logger.Named("auth"),
	}
}

// RequireAuth stores the caller's claims and raw token in the request context.
// Missing, malformed or invalid tokens and tokens without an email get a 401.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, token, err := m.authService.ValidateRequest(r)
		switch {
		case errors.Is(err, ErrMissingAuthorization):
			m.reject(w, "Authentication required")
			return
		case err != nil:
			m.reject(w, "Invalid or expired token")
			return
		}

		if err := m.authService.RequireEmail(claims); err != nil {
			m.logger.Debug("Rejecting token without email claim",
				zap.String("subject", claims.Subject),
				zap.String("path", r.URL.Path))
			m.reject(w, "Token does not identify a user")
			return
		}

		next(w, r.WithContext(WithClaims(r.Context(), claims, token)))
	}
}

func (m *Middleware) reject(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="ekaya-tracker"`)
	if err := WriteError(w, http.StatusUnauthorized, "unauthorized", message); err != nil {
		m.logger.Error("Failed to write unauthorized response", zap.Error(err))
	}
}

// WriteError writes the JSON error body shared by the request middlewares.
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}
