package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rileybruner/tenantgrid-backend/pkg/enums"
)

// Package is a purchasable plan. Prices are integer minor units.
type Package struct {
	ID                uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name              string             `gorm:"column:name;not null;uniqueIndex"`
	PriceMinor        int64              `gorm:"column:price_minor;not null"`
	Currency          string             `gorm:"column:currency;not null;default:'USD'"`
	BillingCycle      enums.BillingCycle `gorm:"column:billing_cycle;type:billing_cycle;not null"`
	TrialDays         int                `gorm:"column:trial_days;not null;default:0"`
	ExpiryWarningDays *int               `gorm:"column:expiry_warning_days"`
	IsActive          bool               `gorm:"column:is_active;not null;default:true"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
