package packages

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rileybruner/tenantgrid-backend/pkg/db/models"
)

// Service exposes package lookups for the reconciler and the expiry sweep.
type Service interface {
	GetPackage(ctx context.Context, id uuid.UUID) (*models.Package, error)
	EffectiveWarningDays(pkg *models.Package, globalDays int) int
	WarningWindowDays(ctx context.Context, globalDays int) (int, error)
}

type service struct {
	repo Repository
}

// NewService wires a package service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("package repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetPackage(ctx context.Context, id uuid.UUID) (*models.Package, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("package id is required")
	}
	return s.repo.FindByID(ctx, id)
}

// EffectiveWarningDays resolves the warning window for one package: the
// per-package override wins over the global default.
func (s *service) EffectiveWarningDays(pkg *models.Package, globalDays int) int {
	if pkg != nil && pkg.ExpiryWarningDays != nil && *pkg.ExpiryWarningDays > 0 {
		return *pkg.ExpiryWarningDays
	}
	if globalDays > 0 {
		return globalDays
	}
	return 0
}

// WarningWindowDays returns the widest window any package needs so the sweep
// can query a single expiry range and filter per package afterwards.
func (s *service) WarningWindowDays(ctx context.Context, globalDays int) (int, error) {
	maxOverride, err := s.repo.MaxExpiryWarningDays(ctx)
	if err != nil {
		return 0, err
	}
	if maxOverride > globalDays {
		return maxOverride, nil
	}
	return globalDays, nil
}
