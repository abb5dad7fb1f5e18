package database

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-tracker/pkg/auth"
)

// WithScopeContext creates middleware that holds one pooled connection for the
// duration of the request. It runs AFTER auth middleware so that anonymous
// requests never touch the pool. The connection is released when the handler returns.
func WithScopeContext(db *DB, logger *zap.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			scope, err := db.Acquire(r.Context())
			if err != nil {
				logger.Error("Failed to acquire database connection",
					zap.String("path", r.URL.Path),
					zap.Error(err))
				_ = auth.WriteError(w, http.StatusServiceUnavailable, "database_error", "Database connection error")
				return
			}
			defer scope.Close()

			next(w, r.WithContext(SetScope(r.Context(), scope)))
		}
	}
}
