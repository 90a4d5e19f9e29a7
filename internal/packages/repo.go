package packages

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rileybruner/tenantgrid-backend/pkg/db/models"
)

// Repository manages persistence for purchasable packages.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Package, error)
	ListActive(ctx context.Context) ([]models.Package, error)
	MaxExpiryWarningDays(ctx context.Context) (int, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a package repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Package, error) {
	var pkg models.Package
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&pkg).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &pkg, nil
}

func (r *repository) ListActive(ctx context.Context) ([]models.Package, error) {
	var pkgs []models.Package
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&pkgs).Error; err != nil {
		return nil, err
	}
	return pkgs, nil
}

// MaxExpiryWarningDays returns the widest per-package warning override, or 0
// when no package overrides the global default.
func (r *repository) MaxExpiryWarningDays(ctx context.Context) (int, error) {
	var max *int
	err := r.db.WithContext(ctx).
		Model(&models.Package{}).
		Select("MAX(expiry_warning_days)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}
