package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/rileybruner/tenantgrid-backend/pkg/enums"
)

// IncomingWebhookEvent is the durable idempotency record for a provider
// webhook delivery. Uniqueness is enforced on (provider, event_id).
type IncomingWebhookEvent struct {
	ID                  uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Provider            enums.WebhookProvider    `gorm:"column:provider;type:webhook_provider;not null;uniqueIndex:idx_webhook_events_provider_event"`
	EventID             string                   `gorm:"column:event_id;not null;uniqueIndex:idx_webhook_events_provider_event"`
	EventType           string                   `gorm:"column:event_type;not null"`
	AccountID           *string                  `gorm:"column:account_id"`
	PayloadHash         string                   `gorm:"column:payload_hash;not null"`
	Status              enums.WebhookEventStatus `gorm:"column:status;type:webhook_event_status;not null;default:'received'"`
	Attempts            int                      `gorm:"column:attempts;not null;default:0"`
	ProcessingLockUntil *time.Time               `gorm:"column:processing_lock_until"`
	ReceivedAt          time.Time                `gorm:"column:received_at;not null"`
	LastAttemptAt       time.Time                `gorm:"column:last_attempt_at;not null"`
	ProcessedAt         *time.Time               `gorm:"column:processed_at"`
	ExpiresAt           time.Time                `gorm:"column:expires_at;not null;index"`
	LastError           json.RawMessage          `gorm:"column:last_error;type:jsonb"`
	CreatedAt           time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides GORM's pluralization.
func (IncomingWebhookEvent) TableName() string {
	return "incoming_webhook_events"
}
