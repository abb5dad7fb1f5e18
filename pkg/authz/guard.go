// Package authz decides what a caller may do inside one project.
//
// A request resolves the caller's role once into a ProjectContext. Every
// project-scoped operation then asks Authorize (or Require) before touching
// the store. Decisions depend only on the ProjectContext passed in; there is
// no process-wide "current project".
package authz

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-tracker/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-tracker/pkg/models"
)

// Action is a class of project-scoped operation.
type Action string

const (
	// ActionViewTickets covers reading a project and its tickets.
	ActionViewTickets Action = "view_tickets"
	// ActionModifyTickets covers creating, editing and deleting tickets.
	ActionModifyTickets Action = "modify_tickets"
	// ActionManageMembers covers listing, inviting, re-roling and removing members.
	ActionManageMembers Action = "manage_members"
	// ActionAdministerProject covers editing and deleting the project itself.
	ActionAdministerProject Action = "administer_project"
)

// Decision is the outcome of an authorization check. The zero value is Deny.
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Authorize decides whether the caller described by pc may perform action.
// A nil context, a missing project id or an anonymous caller is denied for
// every action, as is any action not listed here.
func Authorize(action Action, pc *ProjectContext) Decision {
	if pc == nil || pc.ProjectID() == 0 || pc.UserEmail() == "" {
		return Deny
	}

	switch action {
	case ActionViewTickets, ActionModifyTickets:
		if !pc.Role().IsNone() {
			return Allow
		}
	case ActionManageMembers, ActionAdministerProject:
		// Membership AND Admin; an Admin title without a membership row never passes.
		if pc.IsMember() && pc.Role() == models.RoleAdmin {
			return Allow
		}
	}
	return Deny
}

// Require returns apperrors.ErrUnauthorized unless Authorize allows the action.
func Require(action Action, pc *ProjectContext) error {
	if Authorize(action, pc) == Allow {
		return nil
	}
	return fmt.Errorf("%w: %s", apperrors.ErrUnauthorized, action)
}

// DecisionObserver is notified of every decision the Guard makes.
type DecisionObserver interface {
	ObserveDecision(ctx context.Context, action Action, pc *ProjectContext, decision Decision)
}

// Guard enforces Authorize for services and reports each decision to its observers.
type Guard struct {
	observers []DecisionObserver
	logger    *zap.Logger
}

// NewGuard creates a Guard. Observers are typically the metrics recorder and
// the security auditor.
func NewGuard(logger *zap.Logger, observers ...DecisionObserver) *Guard {
	return &Guard{
		observers: observers,
		logger:    logger.Named("authz"),
	}
}

// Require authorizes action against pc, notifying observers of the outcome.
func (g *Guard) Require(ctx context.Context, action Action, pc *ProjectContext) error {
	decision := Authorize(action, pc)
	for _, o := range g.observers {
		o.ObserveDecision(ctx, action, pc, decision)
	}

	if decision == Allow {
		return nil
	}

	g.logger.Debug("Action denied",
		zap.String("action", string(action)),
		zap.Int64("project_id", pc.ProjectID()),
		zap.String("role", string(pc.Role())))
	return fmt.Errorf("%w: %s", apperrors.ErrUnauthorized, action)
}
