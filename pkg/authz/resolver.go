package authz

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-tracker/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-tracker/pkg/models"
)

// RoleSource is the part of the membership store the resolver reads.
type RoleSource interface {
	GetMemberRoles(ctx context.Context, projectID int64, email string) ([]*models.Membership, error)
}

// ProjectSource loads the project a context is being built for.
type ProjectSource interface {
	Get(ctx context.Context, id int64) (*models.Project, error)
}

// Resolver turns (caller, project) into a role by reading memberships.
// Nothing is cached: each call reflects the store at the time of the call.
type Resolver struct {
	roles    RoleSource
	projects ProjectSource
	logger   *zap.Logger
}

// NewResolver creates a Resolver backed by the given stores.
func NewResolver(roles RoleSource, projects ProjectSource, logger *zap.Logger) *Resolver {
	return &Resolver{
		roles:    roles,
		projects: projects,
		logger:   logger.Named("authz"),
	}
}

// rolePrecedence orders role titles from least to most privileged.
var rolePrecedence = map[models.RoleTitle]int{
	models.RoleUser:  1,
	models.RoleAdmin: 2,
}

// ResolveRole returns the caller's role in the project, or models.RoleNone
// when no membership exists. A membership whose role does not resolve is
// logged and ignored. If several memberships exist the most privileged wins.
func (r *Resolver) ResolveRole(ctx context.Context, userEmail string, projectID int64) (models.RoleTitle, error) {
	userEmail = models.NormalizeEmail(userEmail)
	if projectID == 0 || userEmail == "" {
		return models.RoleNone, nil
	}

	memberships, err := r.roles.GetMemberRoles(ctx, projectID, userEmail)
	if err != nil {
		if errors.Is(err, apperrors.ErrStoreFailure) {
			return models.RoleNone, err
		}
		return models.RoleNone, apperrors.StoreFailure("failed to resolve role", err)
	}

	resolved := models.RoleNone
	for _, m := range memberships {
		if m.RoleTitle.IsNone() {
			r.logger.Warn("Membership references a role that does not exist (data integrity)",
				zap.Int64("membership_id", m.ID),
				zap.Int64("project_id", projectID),
				zap.Int64("role_id", m.RoleID))
			continue
		}
		if _, known := rolePrecedence[m.RoleTitle]; !known {
			r.logger.Warn("Membership has an unrecognized role title",
				zap.Int64("membership_id", m.ID),
				zap.String("role", string(m.RoleTitle)))
		}
		if rolePrecedence[m.RoleTitle] > rolePrecedence[resolved] || resolved.IsNone() {
			resolved = m.RoleTitle
		}
	}

	if len(memberships) > 1 {
		r.logger.Warn("Duplicate memberships for one user in a project",
			zap.Int64("project_id", projectID),
			zap.Int("count", len(memberships)),
			zap.String("resolved_role", string(resolved)))
	}

	return resolved, nil
}

// Resolve builds the ProjectContext for one operation. An unknown project
// yields a context with no project and no role, which the guard denies.
func (r *Resolver) Resolve(ctx context.Context, userEmail string, projectID int64) (*ProjectContext, error) {
	if projectID == 0 {
		return NewProjectContext(0, nil, userEmail, models.RoleNone), nil
	}

	project, err := r.projects.Get(ctx, projectID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	role, err := r.ResolveRole(ctx, userEmail, projectID)
	if err != nil {
		return nil, err
	}

	if project == nil {
		// Memberships cannot outlive their project; treat any as stale.
		role = models.RoleNone
	}

	return NewProjectContext(projectID, project, userEmail, role), nil
}
