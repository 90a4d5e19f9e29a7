package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/rileybruner/tenantgrid-backend/pkg/db/types"
	"github.com/rileybruner/tenantgrid-backend/pkg/enums"
)

// TenantSubscription binds a tenant to its current package. One row per
// tenant; package changes update the row in place.
type TenantSubscription struct {
	ID                uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID          uuid.UUID                `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex"`
	PackageID         uuid.UUID                `gorm:"column:package_id;type:uuid;not null;index"`
	Status            enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'active'"`
	StartedAt         time.Time                `gorm:"column:started_at;not null"`
	ExpiresAt         *time.Time               `gorm:"column:expires_at;index"`
	TrialEndsAt       *time.Time               `gorm:"column:trial_ends_at"`
	UsageCounters     dbtypes.CounterMap       `gorm:"column:usage_counters;type:jsonb"`
	Overrides         json.RawMessage          `gorm:"column:overrides;type:jsonb"`
	ExpiryWarningSent bool                     `gorm:"column:expiry_warning_sent;not null;default:false"`
	CreatedAt         time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
