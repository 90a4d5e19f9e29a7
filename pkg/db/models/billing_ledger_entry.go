package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/rileybruner/tenantgrid-backend/pkg/enums"
)

// BillingLedgerEntry is an append-only record of a monetary event. Entries
// are never updated or deleted; corrections land as new entries.
type BillingLedgerEntry struct {
	ID          uuid.UUID               `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID    uuid.UUID               `gorm:"column:tenant_id;type:uuid;not null;index"`
	PackageID   *uuid.UUID              `gorm:"column:package_id;type:uuid"`
	Provider    enums.WebhookProvider   `gorm:"column:provider;type:webhook_provider;not null"`
	ProviderRef string                  `gorm:"column:provider_ref;not null"`
	AmountMinor int64                   `gorm:"column:amount_minor;not null"`
	Currency    string                  `gorm:"column:currency;not null"`
	Status      enums.LedgerEntryStatus `gorm:"column:status;type:ledger_entry_status;not null"`
	Metadata    json.RawMessage         `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
}
