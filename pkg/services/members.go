package services

import (
	"context"
	"errors"
	"net/mail"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-tracker/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-tracker/pkg/audit"
	"github.com/ekaya-inc/ekaya-tracker/pkg/authz"
	"github.com/ekaya-inc/ekaya-tracker/pkg/metrics"
	"github.com/ekaya-inc/ekaya-tracker/pkg/models"
	"github.com/ekaya-inc/ekaya-tracker/pkg/repositories"
)

// MemberList is the project's membership roster plus the roles that can be assigned.
type MemberList struct {
	Members []*models.Membership `json:"members"`
	Roles   []*models.Role       `json:"roles"`
}

// AddPeopleResult reports which invitations created a membership and which
// emails were already members.
type AddPeopleResult struct {
	Added   []*models.Membership `json:"added"`
	Skipped []string             `json:"skipped"`
}

// MembershipService manages who belongs to a project. Every method requires
// the manage-members action on the supplied ProjectContext.
type MembershipService interface {
	List(ctx context.Context, pc *authz.ProjectContext) (*MemberList, error)
	// AddPeople adds each email with roleID. Emails that are already members
	// are skipped, never duplicated.
	AddPeople(ctx context.Context, pc *authz.ProjectContext, emails []string, roleID int64) (*AddPeopleResult, error)
	// UpdateRole changes the role of a membership belonging to the project.
	UpdateRole(ctx context.Context, pc *authz.ProjectContext, membershipID, roleID int64) (*models.Membership, error)
	// Remove deletes a membership. Removing an absent membership succeeds.
	Remove(ctx context.Context, pc *authz.ProjectContext, membershipID int64) error
}

type membershipService struct {
	membershipRepo repositories.MembershipRepository
	roleRepo       repositories.RoleRepository
	guard          *authz.Guard
	auditor        *audit.SecurityAuditor
	metrics        *metrics.Metrics
	logger         *zap.Logger
}

// NewMembershipService creates a new membership service with dependencies.
func NewMembershipService(
	membershipRepo repositories.MembershipRepository,
	roleRepo repositories.RoleRepository,
	guard *authz.Guard,
	auditor *audit.SecurityAuditor,
	m *metrics.Metrics,
	logger *zap.Logger,
) MembershipService {
	return &membershipService{
		membershipRepo: membershipRepo,
		roleRepo:       roleRepo,
		guard:          guard,
		auditor:        auditor,
		metrics:        m,
		logger:         logger.Named("members"),
	}
}

func (s *membershipService) List(ctx context.Context, pc *authz.ProjectContext) (*MemberList, error) {
	if err := s.guard.Require(ctx, authz.ActionManageMembers, pc); err != nil {
		return nil, err
	}

	members, err := s.membershipRepo.GetMembersOfProject(ctx, pc.ProjectID())
	if err != nil {
		return nil, err
	}
	roles, err := s.roleRepo.All(ctx)
	if err != nil {
		return nil, err
	}

	return &MemberList{Members: members, Roles: roles}, nil
}

func (s *membershipService) AddPeople(ctx context.Context, pc *authz.ProjectContext, emails []string, roleID int64) (*AddPeopleResult, error) {
	if err := s.guard.Require(ctx, authz.ActionManageMembers, pc); err != nil {
		return nil, err
	}

	invitees, err := normalizeInvitees(emails)
	if err != nil {
		return nil, err
	}
	role, err := s.lookupRole(ctx, roleID)
	if err != nil {
		return nil, err
	}

	existing, err := s.membershipRepo.GetDistinctMemberEmails(ctx, pc.ProjectID())
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(existing))
	for _, email := range existing {
		present[models.NormalizeEmail(email)] = true
	}

	result := &AddPeopleResult{Added: []*models.Membership{}, Skipped: []string{}}
	for _, email := range invitees {
		if present[email] {
			result.Skipped = append(result.Skipped, email)
			continue
		}

		m := &models.Membership{
			ProjectID: pc.ProjectID(),
			UserEmail: email,
			RoleID:    role.ID,
			RoleTitle: role.Title,
		}
		err := s.membershipRepo.Add(ctx, m)
		if errors.Is(err, apperrors.ErrAlreadyMember) {
			// Added concurrently since the snapshot above.
			result.Skipped = append(result.Skipped, email)
			continue
		}
		if err != nil {
			return nil, err
		}

		present[email] = true
		result.Added = append(result.Added, m)
		s.metrics.RecordMembershipChange("add")
		s.auditor.LogMembershipChange(ctx, audit.EventMemberAdded, pc.ProjectID(), audit.MembershipDetails{
			MembershipID: m.ID,
			UserEmail:    m.UserEmail,
			Role:         string(role.Title),
		})
	}

	if len(result.Skipped) > 0 {
		s.logger.Debug("Skipped existing members",
			zap.Int64("project_id", pc.ProjectID()),
			zap.Int("skipped", len(result.Skipped)))
	}

	return result, nil
}

func (s *membershipService) UpdateRole(ctx context.Context, pc *authz.ProjectContext, membershipID, roleID int64) (*models.Membership, error) {
	if err := s.guard.Require(ctx, authz.ActionManageMembers, pc); err != nil {
		return nil, err
	}

	m, err := s.membershipInProject(ctx, pc, membershipID)
	if err != nil {
		return nil, err
	}
	role, err := s.lookupRole(ctx, roleID)
	if err != nil {
		return nil, err
	}

	previous := m.RoleTitle
	m.RoleID = role.ID
	m.RoleTitle = role.Title
	if err := s.membershipRepo.Update(ctx, m); err != nil {
		if errors.Is(err, apperrors.ErrInvalidRole) {
			return nil, apperrors.Validation("unknown role %d", roleID)
		}
		return nil, err
	}

	s.metrics.RecordMembershipChange("update")
	s.auditor.LogMembershipChange(ctx, audit.EventMemberRoleChanged, pc.ProjectID(), audit.MembershipDetails{
		MembershipID: m.ID,
		UserEmail:    m.UserEmail,
		Role:         string(role.Title),
	})
	s.logger.Info("Member role changed",
		zap.Int64("project_id", pc.ProjectID()),
		zap.Int64("membership_id", m.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(role.Title)))

	return m, nil
}

func (s *membershipService) Remove(ctx context.Context, pc *authz.ProjectContext, membershipID int64) error {
	if err := s.guard.Require(ctx, authz.ActionManageMembers, pc); err != nil {
		return err
	}

	m, err := s.membershipInProject(ctx, pc, membershipID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.membershipRepo.Remove(ctx, m.ID); err != nil {
		return err
	}

	s.metrics.RecordMembershipChange("remove")
	s.auditor.LogMembershipChange(ctx, audit.EventMemberRemoved, pc.ProjectID(), audit.MembershipDetails{
		MembershipID: m.ID,
		UserEmail:    m.UserEmail,
		Role:         string(m.RoleTitle),
	})
	return nil
}

// membershipInProject loads a membership and hides memberships of other
// projects behind ErrNotFound.
func (s *membershipService) membershipInProject(ctx context.Context, pc *authz.ProjectContext, membershipID int64) (*models.Membership, error) {
	m, err := s.membershipRepo.GetByID(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if m.ProjectID != pc.ProjectID() {
		return nil, apperrors.ErrNotFound
	}
	return m, nil
}

func (s *membershipService) lookupRole(ctx context.Context, roleID int64) (*models.Role, error) {
	role, err := s.roleRepo.GetByID(ctx, roleID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.Validation("unknown role %d", roleID)
	}
	return role, err
}

// normalizeInvitees lowercases, validates and de-duplicates invitation emails.
func normalizeInvitees(emails []string) ([]string, error) {
	if len(emails) == 0 {
		return nil, apperrors.Validation("at least one email is required")
	}

	seen := make(map[string]bool, len(emails))
	out := make([]string, 0, len(emails))
	for _, raw := range emails {
		email := models.NormalizeEmail(raw)
		if email == "" {
			continue
		}
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email {
			return nil, apperrors.Validation("invalid email address %q", raw)
		}
		if seen[email] {
			continue
		}
		seen[email] = true
		out = append(out, email)
	}

	if len(out) == 0 {
		return nil, apperrors.Validation("at least one email is required")
	}
	return out, nil
}

// Ensure membershipService implements MembershipService at compile time.
var _ MembershipService = (*membershipService)(nil)
