package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-tracker/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-tracker/pkg/authz"
	"github.com/ekaya-inc/ekaya-tracker/pkg/models"
	"github.com/ekaya-inc/ekaya-tracker/pkg/repositories"
)

// TicketService manages tickets within a project. Reads require the
// view-tickets action, writes the modify-tickets action.
type TicketService interface {
	List(ctx context.Context, pc *authz.ProjectContext) ([]*models.Ticket, error)
	Get(ctx context.Context, pc *authz.ProjectContext, ticketID int64) (*models.Ticket, error)
	// Create files a ticket reported by the caller.
	Create(ctx context.Context, pc *authz.ProjectContext, ticket *models.Ticket) (*models.Ticket, error)
	// Update writes title, description, status and assignee. The reporter never changes.
	Update(ctx context.Context, pc *authz.ProjectContext, ticket *models.Ticket) (*models.Ticket, error)
	Delete(ctx context.Context, pc *authz.ProjectContext, ticketID int64) error
}

type ticketService struct {
	ticketRepo     repositories.TicketRepository
	membershipRepo repositories.MembershipRepository
	guard          *authz.Guard
	logger         *zap.Logger
}

// NewTicketService creates a new ticket service with dependencies.
func NewTicketService(
	ticketRepo repositories.TicketRepository,
	membershipRepo repositories.MembershipRepository,
	guard *authz.Guard,
	logger *zap.Logger,
) TicketService {
	return &ticketService{
		ticketRepo:     ticketRepo,
		membershipRepo: membershipRepo,
		guard:          guard,
		logger:         logger.Named("tickets"),
	}
}

func (s *ticketService) List(ctx context.Context, pc *authz.ProjectContext) ([]*models.Ticket, error) {
	if err := s.guard.Require(ctx, authz.ActionViewTickets, pc); err != nil {
		return nil, err
	}
	return s.ticketRepo.ListByProject(ctx, pc.ProjectID())
}

func (s *ticketService) Get(ctx context.Context, pc *authz.ProjectContext, ticketID int64) (*models.Ticket, error) {
	if err := s.guard.Require(ctx, authz.ActionViewTickets, pc); err != nil {
		return nil, err
	}
	return s.ticketRepo.Get(ctx, pc.ProjectID(), ticketID)
}

func (s *ticketService) Create(ctx context.Context, pc *authz.ProjectContext, ticket *models.Ticket) (*models.Ticket, error) {
	if err := s.guard.Require(ctx, authz.ActionModifyTickets, pc); err != nil {
		return nil, err
	}

	ticket.ProjectID = pc.ProjectID()
	ticket.ReporterEmail = pc.UserEmail()
	if err := s.validate(ctx, ticket); err != nil {
		return nil, err
	}

	if err := s.ticketRepo.Create(ctx, ticket); err != nil {
		return nil, err
	}

	s.logger.Debug("Ticket created",
		zap.Int64("project_id", ticket.ProjectID),
		zap.Int64("ticket_id", ticket.ID))
	return ticket, nil
}

func (s *ticketService) Update(ctx context.Context, pc *authz.ProjectContext, ticket *models.Ticket) (*models.Ticket, error) {
	if err := s.guard.Require(ctx, authz.ActionModifyTickets, pc); err != nil {
		return nil, err
	}

	existing, err := s.ticketRepo.Get(ctx, pc.ProjectID(), ticket.ID)
	if err != nil {
		return nil, err
	}

	ticket.ProjectID = existing.ProjectID
	ticket.ReporterEmail = existing.ReporterEmail
	ticket.CreatedAt = existing.CreatedAt
	if err := s.validate(ctx, ticket); err != nil {
		return nil, err
	}

	if err := s.ticketRepo.Update(ctx, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (s *ticketService) Delete(ctx context.Context, pc *authz.ProjectContext, ticketID int64) error {
	if err := s.guard.Require(ctx, authz.ActionModifyTickets, pc); err != nil {
		return err
	}
	return s.ticketRepo.Delete(ctx, pc.ProjectID(), ticketID)
}

// validate normalizes ticket input. An assignee must be a member of the project.
func (s *ticketService) validate(ctx context.Context, ticket *models.Ticket) error {
	ticket.Title = strings.TrimSpace(ticket.Title)
	ticket.Description = strings.TrimSpace(ticket.Description)
	ticket.AssigneeEmail = models.NormalizeEmail(ticket.AssigneeEmail)

	if ticket.Title == "" {
		return apperrors.Validation("title is required")
	}
	if ticket.StatusID == 0 {
		return apperrors.Validation("status is required")
	}

	if ticket.AssigneeEmail != "" {
		assigned, err := s.membershipRepo.IsUserAssignedToProject(ctx, ticket.ProjectID, ticket.AssigneeEmail)
		if err != nil {
			return err
		}
		if !assigned {
			return apperrors.Validation("assignee %s is not a member of the project", ticket.AssigneeEmail)
		}
	}
	return nil
}

// Ensure ticketService implements TicketService at compile time.
var _ TicketService = (*ticketService)(nil)
