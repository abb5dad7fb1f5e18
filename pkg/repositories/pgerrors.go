package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ekaya-tracker/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-tracker/pkg/database"
)

// PostgreSQL error codes the repositories translate into domain errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// getScope returns the request-scoped connection or a StoreFailure when the
// caller forgot to acquire one.
func getScope(ctx context.Context) (*database.Scope, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: no database scope in context", apperrors.ErrStoreFailure)
	}
	return scope, nil
}

// pgErrorCode returns the SQLSTATE code and constraint name of a PostgreSQL error.
func pgErrorCode(err error) (code, constraint string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}
