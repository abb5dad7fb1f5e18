package authz

import (
	"context"

	"github.com/ekaya-inc/ekaya-tracker/pkg/models"
)

// ProjectContext is the resolved authorization scope of one inbound operation:
// which project, which caller, and the caller's role there. It is immutable
// once built and must never be stored beyond the operation that created it.
type ProjectContext struct {
	projectID int64
	project   *models.Project
	userEmail string
	role      models.RoleTitle
}

// NewProjectContext builds a context from fully resolved values. project may be
// nil when the id does not name an existing project.
func NewProjectContext(projectID int64, project *models.Project, userEmail string, role models.RoleTitle) *ProjectContext {
	var snapshot *models.Project
	if project != nil {
		p := *project
		snapshot = &p
	}
	return &ProjectContext{
		projectID: projectID,
		project:   snapshot,
		userEmail: models.NormalizeEmail(userEmail),
		role:      role,
	}
}

// ProjectID returns the project id, or 0 when absent. Safe on a nil receiver.
func (pc *ProjectContext) ProjectID() int64 {
	if pc == nil {
		return 0
	}
	return pc.projectID
}

// Project returns a copy of the loaded project, or nil.
func (pc *ProjectContext) Project() *models.Project {
	if pc == nil || pc.project == nil {
		return nil
	}
	p := *pc.project
	return &p
}

// UserEmail returns the caller's normalized email.
func (pc *ProjectContext) UserEmail() string {
	if pc == nil {
		return ""
	}
	return pc.userEmail
}

// Role returns the caller's role in the project, models.RoleNone for non-members.
func (pc *ProjectContext) Role() models.RoleTitle {
	if pc == nil {
		return models.RoleNone
	}
	return pc.role
}

// IsMember reports whether the caller holds any role in the project.
func (pc *ProjectContext) IsMember() bool {
	return !pc.Role().IsNone()
}

type contextKey struct{}

// WithProjectContext returns a request context carrying pc.
func WithProjectContext(ctx context.Context, pc *ProjectContext) context.Context {
	return context.WithValue(ctx, contextKey{}, pc)
}

// FromContext returns the ProjectContext stored in ctx, if any.
func FromContext(ctx context.Context) (*ProjectContext, bool) {
	pc, ok := ctx.Value(contextKey{}).(*ProjectContext)
	return pc, ok && pc != nil
}
