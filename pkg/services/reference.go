package services

import (
	"context"

	"github.com/ekaya-inc/ekaya-tracker/pkg/models"
	"github.com/ekaya-inc/ekaya-tracker/pkg/repositories"
)

// ReferenceService exposes the seeded roles and statuses. Any authenticated
// user may read them.
type ReferenceService interface {
	Roles(ctx context.Context) ([]*models.Role, error)
	Statuses(ctx context.Context) ([]*models.Status, error)
}

type referenceService struct {
	roleRepo   repositories.RoleRepository
	statusRepo repositories.StatusRepository
}

// NewReferenceService creates a new reference data service.
func NewReferenceService(roleRepo repositories.RoleRepository, statusRepo repositories.StatusRepository) ReferenceService {
	return &referenceService{roleRepo: roleRepo, statusRepo: statusRepo}
}

func (s *referenceService) Roles(ctx context.Context) ([]*models.Role, error) {
	return s.roleRepo.All(ctx)
}

func (s *referenceService) Statuses(ctx context.Context) ([]*models.Status, error) {
	return s.statusRepo.All(ctx)
}

var _ ReferenceService = (*referenceService)(nil)
