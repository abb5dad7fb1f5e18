package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-tracker/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-tracker/pkg/models"
)

// ProjectRepository defines the interface for project data access.
type ProjectRepository interface {
	// CreateWithAdmin inserts the project and makes creatorEmail its first Admin
	// member in one transaction. Returns apperrors.ErrConfiguration, leaving no
	// project row behind, when the "Admin" role has not been seeded.
	CreateWithAdmin(ctx context.Context, project *models.Project, creatorEmail string) (*models.Membership, error)
	Get(ctx context.Context, id int64) (*models.Project, error)
	Exists(ctx context.Context, id int64) (bool, error)
	// Update writes title and description if project.Version still matches the
	// stored version. A stale or missing row returns apperrors.ErrConflict.
	Update(ctx context.Context, project *models.Project) error
	// Delete removes the project together with its memberships and tickets.
	Delete(ctx context.Context, id int64) error
}

type projectRepository struct{}

// NewProjectRepository creates a new project repository.
func NewProjectRepository() ProjectRepository {
	return &projectRepository{}
}

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *projectRepository) CreateWithAdmin(ctx context.Context, project *models.Project, creatorEmail string) (membership *models.Membership, err error) {
	scope, err := getScope(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return nil, apperrors.StoreFailure("failed to begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var adminRoleID int64
	err = tx.QueryRow(ctx, `SELECT id FROM roles WHERE title = $1`, string(models.RoleAdmin)).Scan(&adminRoleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: role %q is not seeded", apperrors.ErrConfiguration, models.RoleAdmin)
		}
		return nil, apperrors.StoreFailure("failed to look up admin role", err)
	}

	now := time.Now()
	project.Version = 1
	project.CreatedAt = now
	project.UpdatedAt = now

	err = tx.QueryRow(ctx, `
		INSERT INTO projects (title, description, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		project.Title, project.Description, project.Version, project.CreatedAt, project.UpdatedAt,
	).Scan(&project.ID)
	if err != nil {
		return nil, apperrors.StoreFailure("failed to create project", err)
	}

	membership = &models.Membership{
		ProjectID: project.ID,
		UserEmail: models.NormalizeEmail(creatorEmail),
		RoleID:    adminRoleID,
		RoleTitle: models.RoleAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO project_users (project_id, user_email, role_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		membership.ProjectID, membership.UserEmail, membership.RoleID, membership.CreatedAt, membership.UpdatedAt,
	).Scan(&membership.ID)
	if err != nil {
		return nil, apperrors.StoreFailure("failed to add project creator as admin", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, apperrors.StoreFailure("failed to commit transaction", err)
	}

	return membership, nil
}

func (r *projectRepository) Get(ctx context.Context, id int64) (*models.Project, error) {
	scope, err := getScope(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, title, description, version, created_at, updated_at
		FROM projects
		WHERE id = $1`

	project, err := scanProject(scope.Conn.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.StoreFailure("failed to get project", err)
	}
	return project, nil
}

func (r *projectRepository) Exists(ctx context.Context, id int64) (bool, error) {
	scope, err := getScope(ctx)
	if err != nil {
		return false, err
	}

	var exists bool
	if err := scope.Conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, apperrors.StoreFailure("failed to check project existence", err)
	}
	return exists, nil
}

func (r *projectRepository) Update(ctx context.Context, project *models.Project) error {
	scope, err := getScope(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE projects
		SET title = $1, description = $2, version = version + 1, updated_at = $3
		WHERE id = $4 AND version = $5
		RETURNING version, updated_at`

	err = scope.Conn.QueryRow(ctx, query,
		project.Title, project.Description, time.Now(), project.ID, project.Version,
	).Scan(&project.Version, &project.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrConflict
		}
		return apperrors.StoreFailure("failed to update project", err)
	}
	return nil
}

func (r *projectRepository) Delete(ctx context.Context, id int64) (err error) {
	scope, err := getScope(ctx)
	if err != nil {
		return err
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return apperrors.StoreFailure("failed to begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Explicit child deletes keep the cascade independent of FK options.
	if _, err = tx.Exec(ctx, `DELETE FROM project_users WHERE project_id = $1`, id); err != nil {
		return apperrors.StoreFailure("failed to delete project memberships", err)
	}
	if _, err = tx.Exec(ctx, `DELETE FROM tickets WHERE project_id = $1`, id); err != nil {
		return apperrors.StoreFailure("failed to delete project tickets", err)
	}
	if _, err = tx.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id); err != nil {
		return apperrors.StoreFailure("failed to delete project", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return apperrors.StoreFailure("failed to commit transaction", err)
	}
	return nil
}

// Ensure projectRepository implements ProjectRepository at compile time.
var _ ProjectRepository = (*projectRepository)(nil)
