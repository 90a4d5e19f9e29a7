package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rileybruner/tenantgrid-backend/pkg/db/models"
	"github.com/rileybruner/tenantgrid-backend/pkg/enums"
)

var billableStatuses = []enums.SubscriptionStatus{
	enums.SubscriptionStatusTrial,
	enums.SubscriptionStatusActive,
}

// Repository handles tenant subscription persistence. Status transitions go
// through conditional updates so concurrent writers cannot double-apply them;
// callers learn from the returned bool whether their transition won.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByTenant(ctx context.Context, tenantID uuid.UUID) (*models.TenantSubscription, error)
	Create(ctx context.Context, sub *models.TenantSubscription) error
	Update(ctx context.Context, sub *models.TenantSubscription) error
	SuspendIfBillable(ctx context.Context, tenantID uuid.UUID, packageID *uuid.UUID, now time.Time) (bool, error)
	ReactivateIfSuspended(ctx context.Context, tenantID uuid.UUID, now time.Time) (bool, error)
	ExpireIfDue(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	MarkWarningSent(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	ListExpiring(ctx context.Context, now, cutoff time.Time) ([]models.TenantSubscription, error)
	ListExpired(ctx context.Context, now time.Time) ([]models.TenantSubscription, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a subscription repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByTenant(ctx context.Context, tenantID uuid.UUID) (*models.TenantSubscription, error) {
	var sub models.TenantSubscription
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&sub).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) Create(ctx context.Context, sub *models.TenantSubscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *repository) Update(ctx context.Context, sub *models.TenantSubscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

// SuspendIfBillable flips a trial/active subscription to suspended. When
// packageID is set the transition only applies if the subscription is on that
// package.
func (r *repository) SuspendIfBillable(ctx context.Context, tenantID uuid.UUID, packageID *uuid.UUID, now time.Time) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.TenantSubscription{}).
		Where("tenant_id = ?", tenantID).
		Where("status IN (?)", billableStatuses)
	if packageID != nil {
		query = query.Where("package_id = ?", *packageID)
	}
	res := query.Updates(map[string]any{
		"status":     enums.SubscriptionStatusSuspended,
		"updated_at": now,
	})
	return res.RowsAffected > 0, res.Error
}

func (r *repository) ReactivateIfSuspended(ctx context.Context, tenantID uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.TenantSubscription{}).
		Where("tenant_id = ?", tenantID).
		Where("status = ?", enums.SubscriptionStatusSuspended).
		Updates(map[string]any{
			"status":     enums.SubscriptionStatusActive,
			"updated_at": now,
		})
	return res.RowsAffected > 0, res.Error
}

// ExpireIfDue transitions a past-due billable subscription to expired. The
// guard makes the sweep idempotent under redelivery and overlapping runs.
func (r *repository) ExpireIfDue(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.TenantSubscription{}).
		Where("id = ?", id).
		Where("status IN (?)", billableStatuses).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Updates(map[string]any{
			"status":     enums.SubscriptionStatusExpired,
			"updated_at": now,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *repository) MarkWarningSent(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.TenantSubscription{}).
		Where("id = ?", id).
		Where("expiry_warning_sent = ?", false).
		Updates(map[string]any{
			"expiry_warning_sent": true,
			"updated_at":          now,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *repository) ListExpiring(ctx context.Context, now, cutoff time.Time) ([]models.TenantSubscription, error) {
	var subs []models.TenantSubscription
	err := r.db.WithContext(ctx).
		Where("status IN (?)", billableStatuses).
		Where("expiry_warning_sent = ?", false).
		Where("expires_at IS NOT NULL AND expires_at > ? AND expires_at <= ?", now, cutoff).
		Order("expires_at ASC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) ListExpired(ctx context.Context, now time.Time) ([]models.TenantSubscription, error) {
	var subs []models.TenantSubscription
	err := r.db.WithContext(ctx).
		Where("status IN (?)", billableStatuses).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Order("expires_at ASC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}
