package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-tracker/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-tracker/pkg/models"
)

// StatusRepository reads the seeded ticket statuses.
type StatusRepository interface {
	All(ctx context.Context) ([]*models.Status, error)
}

type statusRepository struct{}

// NewStatusRepository creates a new status repository.
func NewStatusRepository() StatusRepository {
	return &statusRepository{}
}

func (r *statusRepository) All(ctx context.Context) ([]*models.Status, error) {
	scope, err := getScope(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := scope.Conn.Query(ctx, `SELECT id, name FROM statuses ORDER BY id`)
	if err != nil {
		return nil, apperrors.StoreFailure("failed to query statuses", err)
	}

	statuses, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[models.Status])
	if err != nil {
		return nil, apperrors.StoreFailure("failed to collect statuses", err)
	}
	return statuses, nil
}

// Ensure statusRepository implements StatusRepository at compile time.
var _ StatusRepository = (*statusRepository)(nil)
