package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// CookieName is the cookie browser clients carry their JWT in.
const CookieName = "tracker_jwt"

// Common authentication errors.
var (
	ErrMissingAuthorization = errors.New("missing authorization")
	ErrInvalidAuthFormat    = errors.New("invalid authorization header format")
	ErrMissingEmail         = errors.New("missing email in token")
)

// AuthService defines the interface for authentication operations.
type AuthService interface {
	// ValidateRequest extracts and validates a JWT from the request.
	// It checks for the token in:
	//   1. Cookie named "tracker_jwt" (browser clients)
	//   2. Authorization header with "Bearer" scheme (API clients)
	// Returns the validated claims, the raw token string, or an error.
	ValidateRequest(r *http.Request) (*Claims, string, error)

	// RequireEmail validates that the claims identify the caller by email.
	RequireEmail(claims *Claims) error
}

type authService struct {
	jwksClient JWKSClientInterface
	logger     *zap.Logger
}

// NewAuthService creates a new AuthService with the given JWKS client and logger.
func NewAuthService(jwksClient JWKSClientInterface, logger *zap.Logger) AuthService {
	return &authService{
		jwksClient: jwksClient,
		logger:     logger,
	}
}

// ValidateRequest extracts and validates a JWT from the request.
func (s *authService) ValidateRequest(r *http.Request) (*Claims, string, error) {
	tokenString, tokenSource, err := s.extractToken(r)
	if err != nil {
		return nil, "", err
	}

	claims, err := s.jwksClient.ValidateToken(tokenString)
	if err != nil {
		s.logger.Debug("JWT validation failed",
			zap.Error(err),
			zap.String("path", r.URL.Path),
			zap.String("token_source", tokenSource))
		return nil, "", err
	}

	return claims, tokenString, nil
}

func (s *authService) extractToken(r *http.Request) (string, string, error) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value, "cookie", nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		s.logger.Debug("No JWT found in request",
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method))
		return "", "", ErrMissingAuthorization
	}

	scheme, token, found := strings.Cut(authHeader, " ")
	if !found || scheme != "Bearer" || token == "" || strings.Contains(token, " ") {
		s.logger.Debug("Invalid Authorization header format",
			zap.String("path", r.URL.Path))
		return "", "", ErrInvalidAuthFormat
	}
	return token, "header", nil
}

// RequireEmail validates that the claims carry an email.
func (s *authService) RequireEmail(claims *Claims) error {
	if claims.UserEmail() == "" {
		return ErrMissingEmail
	}
	return nil
}

// Ensure authService implements AuthService at compile time.
var _ AuthService = (*authService)(nil)
