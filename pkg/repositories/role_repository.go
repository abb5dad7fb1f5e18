package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-tracker/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-tracker/pkg/models"
)

// RoleRepository reads the seeded roles.
type RoleRepository interface {
	All(ctx context.Context) ([]*models.Role, error)
	GetByTitle(ctx context.Context, title models.RoleTitle) (*models.Role, error)
	GetByID(ctx context.Context, id int64) (*models.Role, error)
}

type roleRepository struct{}

// NewRoleRepository creates a new role repository.
func NewRoleRepository() RoleRepository {
	return &roleRepository{}
}

func (r *roleRepository) All(ctx context.Context) ([]*models.Role, error) {
	scope, err := getScope(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := scope.Conn.Query(ctx, `SELECT id, title FROM roles ORDER BY id`)
	if err != nil {
		return nil, apperrors.StoreFailure("failed to query roles", err)
	}

	roles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Role, error) {
		var role models.Role
		var title string
		if err := row.Scan(&role.ID, &title); err != nil {
			return nil, err
		}
		role.Title = models.RoleTitle(title)
		return &role, nil
	})
	if err != nil {
		return nil, apperrors.StoreFailure("failed to collect roles", err)
	}
	return roles, nil
}

func (r *roleRepository) GetByTitle(ctx context.Context, title models.RoleTitle) (*models.Role, error) {
	return r.getOne(ctx, `SELECT id, title FROM roles WHERE title = $1`, string(title))
}

func (r *roleRepository) GetByID(ctx context.Context, id int64) (*models.Role, error) {
	return r.getOne(ctx, `SELECT id, title FROM roles WHERE id = $1`, id)
}

func (r *roleRepository) getOne(ctx context.Context, query string, arg any) (*models.Role, error) {
	scope, err := getScope(ctx)
	if err != nil {
		return nil, err
	}

	var role models.Role
	var title string
	if err := scope.Conn.QueryRow(ctx, query, arg).Scan(&role.ID, &title); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.StoreFailure("failed to get role", err)
	}
	role.Title = models.RoleTitle(title)
	return &role, nil
}

// Ensure roleRepository implements RoleRepository at compile time.
var _ RoleRepository = (*roleRepository)(nil)
