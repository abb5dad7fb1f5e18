package authz

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-tracker/pkg/auth"
)

// Middleware attaches a ProjectContext to project-scoped requests.
// It runs after authentication and after the database scope is acquired.
type Middleware struct {
	resolver *Resolver
	logger   *zap.Logger
}

// NewMiddleware creates the project context middleware.
func NewMiddleware(resolver *Resolver, logger *zap.Logger) *Middleware {
	return &Middleware{
		resolver: resolver,
		logger:   logger.Named("authz"),
	}
}

// WithProjectContext parses the project id from the named path parameter,
// resolves the caller's role once and stores the resulting ProjectContext in
// the request context. It does not deny anything itself; services do.
func (m *Middleware) WithProjectContext(pathParamName string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			projectID, err := strconv.ParseInt(r.PathValue(pathParamName), 10, 64)
			if err != nil || projectID < 0 {
				_ = auth.WriteError(w, http.StatusBadRequest, "invalid_project_id", "Invalid project ID format")
				return
			}

			email := auth.GetUserEmailFromContext(r.Context())

			pc, err := m.resolver.Resolve(r.Context(), email, projectID)
			if err != nil {
				m.logger.Error("Failed to resolve project context",
					zap.Int64("project_id", projectID),
					zap.Error(err))
				_ = auth.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to resolve project access")
				return
			}

			next(w, r.WithContext(WithProjectContext(r.Context(), pc)))
		}
	}
}
