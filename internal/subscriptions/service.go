package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rileybruner/tenantgrid-backend/pkg/db/models"
	dbtypes "github.com/rileybruner/tenantgrid-backend/pkg/db/types"
	"github.com/rileybruner/tenantgrid-backend/pkg/enums"
	pkgerrors "github.com/rileybruner/tenantgrid-backend/pkg/errors"
	"github.com/rileybruner/tenantgrid-backend/pkg/logger"
)

type ServiceParams struct {
	Repo   Repository
	Logger *logger.Logger
}

// Service applies the subscription transition rules shared by the webhook
// reconciler and the expiry sweep.
type Service struct {
	repo   Repository
	logger *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription repo required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{repo: params.Repo, logger: params.Logger}, nil
}

// FindByTenant loads the tenant's subscription, or nil when none exists.
func (s *Service) FindByTenant(ctx context.Context, tenantID uuid.UUID) (*models.TenantSubscription, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id required")
	}
	sub, err := s.repo.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tenant subscription")
	}
	return sub, nil
}

// AssignInput describes a package assignment triggered by a successful charge
// or an operator action.
type AssignInput struct {
	TenantID   uuid.UUID
	Package    *models.Package
	StartTrial bool
	At         time.Time
}

// AssignPackage grants the package to the tenant, updating the existing
// subscription row in place so the one-row-per-tenant index never trips.
// Re-applying an assignment the tenant already holds is a no-op, which keeps
// redelivered charge events from extending periods twice.
func (s *Service) AssignPackage(ctx context.Context, input AssignInput) (*models.TenantSubscription, error) {
	if input.TenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id required")
	}
	if input.Package == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "package required")
	}
	at := input.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	existing, err := s.repo.FindByTenant(ctx, input.TenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tenant subscription")
	}
	if existing != nil &&
		existing.PackageID == input.Package.ID &&
		existing.Status.IsBillable() &&
		!existing.StartedAt.Before(at) {
		return existing, nil
	}

	status := enums.SubscriptionStatusActive
	var trialEndsAt *time.Time
	if input.StartTrial && input.Package.TrialDays > 0 {
		status = enums.SubscriptionStatusTrial
		ends := at.AddDate(0, 0, input.Package.TrialDays)
		trialEndsAt = &ends
	}

	expiresAt := periodEnd(input.Package.BillingCycle, at)

	if existing == nil {
		sub := &models.TenantSubscription{
			ID:            uuid.New(),
			TenantID:      input.TenantID,
			PackageID:     input.Package.ID,
			Status:        status,
			StartedAt:     at,
			ExpiresAt:     expiresAt,
			TrialEndsAt:   trialEndsAt,
			UsageCounters: dbtypes.CounterMap{},
		}
		if err := s.repo.Create(ctx, sub); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create tenant subscription")
		}
		return sub, nil
	}

	existing.PackageID = input.Package.ID
	existing.Status = status
	existing.StartedAt = at
	existing.ExpiresAt = expiresAt
	existing.TrialEndsAt = trialEndsAt
	existing.UsageCounters = dbtypes.CounterMap{}
	existing.Overrides = nil
	existing.ExpiryWarningSent = false
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update tenant subscription")
	}
	return existing, nil
}

// Suspend flips a trial/active subscription to suspended, optionally scoped
// to a package. Returns false when no billable subscription matched.
func (s *Service) Suspend(ctx context.Context, tenantID uuid.UUID, packageID *uuid.UUID) (bool, error) {
	if tenantID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "tenant id required")
	}
	changed, err := s.repo.SuspendIfBillable(ctx, tenantID, packageID, time.Now().UTC())
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "suspend subscription")
	}
	return changed, nil
}

// Reactivate moves a suspended subscription back to active. Subscriptions in
// any other state are left alone.
func (s *Service) Reactivate(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	if tenantID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "tenant id required")
	}
	changed, err := s.repo.ReactivateIfSuspended(ctx, tenantID, time.Now().UTC())
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reactivate subscription")
	}
	return changed, nil
}

func periodEnd(cycle enums.BillingCycle, from time.Time) *time.Time {
	switch cycle {
	case enums.BillingCycleMonthly:
		end := from.AddDate(0, 1, 0)
		return &end
	case enums.BillingCycleAnnual:
		end := from.AddDate(1, 0, 0)
		return &end
	default:
		// Lifetime packages never expire.
		return nil
	}
}
