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

// MembershipRepository is the query contract over project_users.
// Emails are normalized before they reach the store.
type MembershipRepository interface {
	// IsUserAssignedToProject reports whether any membership links email to the project.
	// projectID 0 is never assigned and is answered without a query.
	IsUserAssignedToProject(ctx context.Context, projectID int64, email string) (bool, error)
	// GetMembersOfProject returns all memberships of a project ordered by email.
	GetMembersOfProject(ctx context.Context, projectID int64) ([]*models.Membership, error)
	// GetProjectsForUser returns the distinct projects email is a member of.
	GetProjectsForUser(ctx context.Context, email string) ([]*models.Project, error)
	// GetDistinctMemberEmails returns the emails already present in a project.
	GetDistinctMemberEmails(ctx context.Context, projectID int64) ([]string, error)
	// GetMemberRoles returns every membership row for (project, email) with its
	// role title joined; RoleTitle is empty when the role reference dangles.
	GetMemberRoles(ctx context.Context, projectID int64, email string) ([]*models.Membership, error)
	GetByID(ctx context.Context, id int64) (*models.Membership, error)
	// Add inserts a membership. A second membership for the same (project, email)
	// returns apperrors.ErrAlreadyMember.
	Add(ctx context.Context, m *models.Membership) error
	// Update changes the role of an existing membership. Demoting the project's
	// only Admin returns apperrors.ErrLastAdmin and changes nothing.
	Update(ctx context.Context, m *models.Membership) error
	// Remove deletes a membership. Removing an absent id is a no-op. Removing the
	// project's only Admin returns apperrors.ErrLastAdmin.
	Remove(ctx context.Context, id int64) error
}

type membershipRepository struct{}

// NewMembershipRepository creates a new membership repository.
func NewMembershipRepository() MembershipRepository {
	return &membershipRepository{}
}

const membershipColumns = `pu.id, pu.project_id, pu.user_email, COALESCE(pu.role_id, 0), COALESCE(r.title, ''), pu.created_at, pu.updated_at`

func scanMembership(row pgx.Row) (*models.Membership, error) {
	var m models.Membership
	var title string
	err := row.Scan(&m.ID, &m.ProjectID, &m.UserEmail, &m.RoleID, &title, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.RoleTitle = models.RoleTitle(title)
	return &m, nil
}

func (r *membershipRepository) IsUserAssignedToProject(ctx context.Context, projectID int64, email string) (bool, error) {
	email = models.NormalizeEmail(email)
	if projectID == 0 || email == "" {
		return false, nil
	}

	scope, err := getScope(ctx)
	if err != nil {
		return false, err
	}

	var assigned bool
	err = scope.Conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM project_users WHERE project_id = $1 AND user_email = $2)`,
		projectID, email).Scan(&assigned)
	if err != nil {
		return false, apperrors.StoreFailure("failed to check project assignment", err)
	}
	return assigned, nil
}

func (r *membershipRepository) GetMembersOfProject(ctx context.Context, projectID int64) ([]*models.Membership, error) {
	scope, err := getScope(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + membershipColumns + `
		FROM project_users pu
		LEFT JOIN roles r ON r.id = pu.role_id
		WHERE pu.project_id = $1
		ORDER BY pu.user_email, pu.id`

	return r.queryMemberships(ctx, scope.Conn, query, projectID)
}

func (r *membershipRepository) GetMemberRoles(ctx context.Context, projectID int64, email string) ([]*models.Membership, error) {
	scope, err := getScope(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + membershipColumns + `
		FROM project_users pu
		LEFT JOIN roles r ON r.id = pu.role_id
		WHERE pu.project_id = $1 AND pu.user_email = $2
		ORDER BY pu.id`

	return r.queryMemberships(ctx, scope.Conn, query, projectID, models.NormalizeEmail(email))
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *membershipRepository) queryMemberships(ctx context.Context, q querier, query string, args ...any) ([]*models.Membership, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.StoreFailure("failed to query memberships", err)
	}
	defer rows.Close()

	memberships := make([]*models.Membership, 0)
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, apperrors.StoreFailure("failed to scan membership", err)
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.StoreFailure("error iterating memberships", err)
	}
	return memberships, nil
}

func (r *membershipRepository) GetProjectsForUser(ctx context.Context, email string) ([]*models.Project, error) {
	scope, err := getScope(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT DISTINCT p.id, p.title, p.description, p.version, p.created_at, p.updated_at
		FROM projects p
		JOIN project_users pu ON pu.project_id = p.id
		WHERE pu.user_email = $1
		ORDER BY p.title, p.id`

	rows, err := scope.Conn.Query(ctx, query, models.NormalizeEmail(email))
	if err != nil {
		return nil, apperrors.StoreFailure("failed to query projects for user", err)
	}
	defer rows.Close()

	projects := make([]*models.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, apperrors.StoreFailure("failed to scan project", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.StoreFailure("error iterating projects", err)
	}
	return projects, nil
}

func (r *membershipRepository) GetDistinctMemberEmails(ctx context.Context, projectID int64) ([]string, error) {
	scope, err := getScope(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := scope.Conn.Query(ctx,
		`SELECT DISTINCT user_email FROM project_users WHERE project_id = $1 ORDER BY user_email`,
		projectID)
	if err != nil {
		return nil, apperrors.StoreFailure("failed to query member emails", err)
	}

	emails, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, apperrors.StoreFailure("failed to collect member emails", err)
	}
	return emails, nil
}

func (r *membershipRepository) GetByID(ctx context.Context, id int64) (*models.Membership, error) {
	scope, err := getScope(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + membershipColumns + `
		FROM project_users pu
		LEFT JOIN roles r ON r.id = pu.role_id
		WHERE pu.id = $1`

	m, err := scanMembership(scope.Conn.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.StoreFailure("failed to get membership", err)
	}
	return m, nil
}

func (r *membershipRepository) Add(ctx context.Context, m *models.Membership) error {
	scope, err := getScope(ctx)
	if err != nil {
		return err
	}

	m.UserEmail = models.NormalizeEmail(m.UserEmail)
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now

	query := `
		INSERT INTO project_users (project_id, user_email, role_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err = scope.Conn.QueryRow(ctx, query, m.ProjectID, m.UserEmail, m.RoleID, m.CreatedAt, m.UpdatedAt).Scan(&m.ID)
	if err != nil {
		return translateMembershipWriteError("failed to add membership", err)
	}
	return nil
}

func (r *membershipRepository) Update(ctx context.Context, m *models.Membership) error {
	scope, err := getScope(ctx)
	if err != nil {
		return err
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return apperrors.StoreFailure("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockProjectMembers(ctx, tx, m.ProjectID); err != nil {
		return err
	}

	current, err := membershipRoleTitle(ctx, tx, m.ID, m.ProjectID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	if err != nil {
		return apperrors.StoreFailure("failed to get membership", err)
	}

	var next models.RoleTitle
	err = tx.QueryRow(ctx, `SELECT title FROM roles WHERE id = $1`, m.RoleID).Scan(&next)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrInvalidRole
	}
	if err != nil {
		return apperrors.StoreFailure("failed to get role", err)
	}

	if current == models.RoleAdmin && next != models.RoleAdmin {
		if err := requireAnotherAdmin(ctx, tx, m.ProjectID); err != nil {
			return err
		}
	}

	m.UpdatedAt = time.Now()
	if _, err := tx.Exec(ctx,
		`UPDATE project_users SET role_id = $1, updated_at = $2 WHERE id = $3 AND project_id = $4`,
		m.RoleID, m.UpdatedAt, m.ID, m.ProjectID); err != nil {
		return translateMembershipWriteError("failed to update membership", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.StoreFailure("failed to commit transaction", err)
	}
	return nil
}

func (r *membershipRepository) Remove(ctx context.Context, id int64) error {
	scope, err := getScope(ctx)
	if err != nil {
		return err
	}

	var projectID int64
	err = scope.Conn.QueryRow(ctx, `SELECT project_id FROM project_users WHERE id = $1`, id).Scan(&projectID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return apperrors.StoreFailure("failed to get membership", err)
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return apperrors.StoreFailure("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockProjectMembers(ctx, tx, projectID); err != nil {
		return err
	}

	// Re-read under the lock; a concurrent removal makes this a no-op.
	current, err := membershipRoleTitle(ctx, tx, id, projectID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return apperrors.StoreFailure("failed to get membership", err)
	}

	if current == models.RoleAdmin {
		if err := requireAnotherAdmin(ctx, tx, projectID); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM project_users WHERE id = $1`, id); err != nil {
		return apperrors.StoreFailure("failed to remove membership", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.StoreFailure("failed to commit transaction", err)
	}
	return nil
}

// lockProjectMembers serializes role changes and removals within one project by
// locking its project row until the transaction ends.
func lockProjectMembers(ctx context.Context, tx pgx.Tx, projectID int64) error {
	_, err := tx.Exec(ctx, `SELECT id FROM projects WHERE id = $1 FOR UPDATE`, projectID)
	if err != nil {
		return apperrors.StoreFailure("failed to lock project", err)
	}
	return nil
}

// membershipRoleTitle returns the role title of a membership in the project,
// empty when the role reference dangles, or pgx.ErrNoRows.
func membershipRoleTitle(ctx context.Context, tx pgx.Tx, id, projectID int64) (models.RoleTitle, error) {
	var title string
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(r.title, '')
		FROM project_users pu
		LEFT JOIN roles r ON r.id = pu.role_id
		WHERE pu.id = $1 AND pu.project_id = $2`, id, projectID).Scan(&title)
	return models.RoleTitle(title), err
}

// requireAnotherAdmin returns apperrors.ErrLastAdmin unless the project has
// more than one Admin membership.
func requireAnotherAdmin(ctx context.Context, tx pgx.Tx, projectID int64) error {
	var admins int
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM project_users pu
		JOIN roles r ON r.id = pu.role_id
		WHERE pu.project_id = $1 AND r.title = $2`, projectID, string(models.RoleAdmin)).Scan(&admins)
	if err != nil {
		return apperrors.StoreFailure("failed to count admins", err)
	}
	if admins <= 1 {
		return apperrors.ErrLastAdmin
	}
	return nil
}

func translateMembershipWriteError(msg string, err error) error {
	code, constraint := pgErrorCode(err)
	switch {
	case code == pgUniqueViolation:
		return apperrors.ErrAlreadyMember
	case code == pgForeignKeyViolation && constraint == "project_users_role_id_fkey":
		return apperrors.ErrInvalidRole
	case code == pgForeignKeyViolation:
		return fmt.Errorf("%s: project %w", msg, apperrors.ErrNotFound)
	}
	return apperrors.StoreFailure(msg, err)
}

// Ensure membershipRepository implements MembershipRepository at compile time.
var _ MembershipRepository = (*membershipRepository)(nil)
