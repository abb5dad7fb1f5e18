package services

import (
	"context"
	"errors"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-tracker/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-tracker/pkg/audit"
	"github.com/ekaya-inc/ekaya-tracker/pkg/authz"
	"github.com/ekaya-inc/ekaya-tracker/pkg/models"
	"github.com/ekaya-inc/ekaya-tracker/pkg/repositories"
)

// ProjectView is a project together with the caller's role in it.
type ProjectView struct {
	Project *models.Project  `json:"project"`
	Role    models.RoleTitle `json:"role"`
}

// ProjectService defines the interface for project operations.
// Project-scoped methods take the ProjectContext resolved for the current
// operation and authorize against it before touching the store.
type ProjectService interface {
	// List returns the projects userEmail is a member of.
	List(ctx context.Context, userEmail string) ([]*models.Project, error)
	// Create inserts the project and makes userEmail its Admin.
	Create(ctx context.Context, userEmail string, project *models.Project) (*models.Project, error)
	Get(ctx context.Context, pc *authz.ProjectContext) (*ProjectView, error)
	// Update writes title and description. project.ID must match the context's project.
	Update(ctx context.Context, pc *authz.ProjectContext, project *models.Project) (*models.Project, error)
	Delete(ctx context.Context, pc *authz.ProjectContext) error
	// Current resolves a remembered project selection for userEmail.
	Current(ctx context.Context, userEmail string, projectID int64) (*ProjectView, error)
}

type projectService struct {
	projectRepo    repositories.ProjectRepository
	membershipRepo repositories.MembershipRepository
	resolver       *authz.Resolver
	guard          *authz.Guard
	auditor        *audit.SecurityAuditor
	logger         *zap.Logger
}

// NewProjectService creates a new project service with dependencies.
func NewProjectService(
	projectRepo repositories.ProjectRepository,
	membershipRepo repositories.MembershipRepository,
	resolver *authz.Resolver,
	guard *authz.Guard,
	auditor *audit.SecurityAuditor,
	logger *zap.Logger,
) ProjectService {
	return &projectService{
		projectRepo:    projectRepo,
		membershipRepo: membershipRepo,
		resolver:       resolver,
		guard:          guard,
		auditor:        auditor,
		logger:         logger.Named("projects"),
	}
}

func (s *projectService) List(ctx context.Context, userEmail string) ([]*models.Project, error) {
	userEmail = models.NormalizeEmail(userEmail)
	if userEmail == "" {
		return nil, apperrors.ErrUnauthorized
	}
	return s.membershipRepo.GetProjectsForUser(ctx, userEmail)
}

func (s *projectService) Create(ctx context.Context, userEmail string, project *models.Project) (*models.Project, error) {
	userEmail = models.NormalizeEmail(userEmail)
	if userEmail == "" {
		return nil, apperrors.ErrUnauthorized
	}
	if err := validateProject(project); err != nil {
		return nil, err
	}

	membership, err := s.projectRepo.CreateWithAdmin(ctx, project, userEmail)
	if err != nil {
		return nil, err
	}

	s.auditor.LogProjectLifecycle(ctx, audit.EventProjectCreated, project.ID)
	s.auditor.LogMembershipChange(ctx, audit.EventMemberAdded, project.ID, audit.MembershipDetails{
		MembershipID: membership.ID,
		UserEmail:    membership.UserEmail,
		Role:         string(models.RoleAdmin),
	})
	s.logger.Info("Project created",
		zap.Int64("project_id", project.ID),
		zap.String("admin", userEmail))

	return project, nil
}

func (s *projectService) Get(ctx context.Context, pc *authz.ProjectContext) (*ProjectView, error) {
	if err := s.guard.Require(ctx, authz.ActionViewTickets, pc); err != nil {
		return nil, err
	}

	project := pc.Project()
	if project == nil {
		return nil, apperrors.ErrNotFound
	}
	return &ProjectView{Project: project, Role: pc.Role()}, nil
}

func (s *projectService) Update(ctx context.Context, pc *authz.ProjectContext, project *models.Project) (*models.Project, error) {
	if err := s.guard.Require(ctx, authz.ActionAdministerProject, pc); err != nil {
		return nil, err
	}
	if project.ID != pc.ProjectID() {
		return nil, apperrors.Validation("project id %d does not match the requested project", project.ID)
	}
	if err := validateProject(project); err != nil {
		return nil, err
	}
	if snapshot := pc.Project(); project.Version == 0 && snapshot != nil {
		project.Version = snapshot.Version
	}

	err := s.projectRepo.Update(ctx, project)
	if errors.Is(err, apperrors.ErrConflict) {
		exists, existsErr := s.projectRepo.Exists(ctx, project.ID)
		if existsErr != nil {
			return nil, existsErr
		}
		if !exists {
			return nil, apperrors.ErrNotFound
		}
		// ErrConflict stays matchable so the handler reports a stale version as 409.
		return nil, apperrors.StoreFailure("project was modified concurrently", apperrors.ErrConflict)
	}
	if err != nil {
		return nil, err
	}

	return project, nil
}

func (s *projectService) Delete(ctx context.Context, pc *authz.ProjectContext) error {
	if err := s.guard.Require(ctx, authz.ActionAdministerProject, pc); err != nil {
		return err
	}

	if err := s.projectRepo.Delete(ctx, pc.ProjectID()); err != nil {
		return err
	}

	s.auditor.LogProjectLifecycle(ctx, audit.EventProjectDeleted, pc.ProjectID())
	return nil
}

func (s *projectService) Current(ctx context.Context, userEmail string, projectID int64) (*ProjectView, error) {
	if projectID == 0 {
		return nil, apperrors.ErrNotFound
	}

	pc, err := s.resolver.Resolve(ctx, userEmail, projectID)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, pc)
}

func validateProject(project *models.Project) error {
	if project == nil {
		return apperrors.Validation("project is required")
	}
	project.Normalize()
	if project.Title == "" {
		return apperrors.Validation("title is required")
	}
	if utf8.RuneCountInString(project.Title) > models.MaxProjectTitleLength {
		return apperrors.Validation("title must be at most %d characters", models.MaxProjectTitleLength)
	}
	return nil
}

// Ensure projectService implements ProjectService at compile time.
var _ ProjectService = (*projectService)(nil)
