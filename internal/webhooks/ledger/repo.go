package webhookledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rileybruner/tenantgrid-backend/pkg/db/models"
	"github.com/rileybruner/tenantgrid-backend/pkg/enums"
)

// UniqueConstraintName is the index guarding one row per (provider, event_id).
const UniqueConstraintName = "idx_webhook_events_provider_event"

// Repository persists incoming webhook events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	TryReacquire(ctx context.Context, provider enums.WebhookProvider, eventID string, now, lockUntil time.Time) (*models.IncomingWebhookEvent, error)
	Insert(ctx context.Context, record *models.IncomingWebhookEvent) error
	FindByProviderEvent(ctx context.Context, provider enums.WebhookProvider, eventID string) (*models.IncomingWebhookEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, now time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, now time.Time, lastError json.RawMessage) error
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a webhook event repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// TryReacquire extends the processing lease on an existing, reclaimable
// record. A record is reclaimable while it is not processed and its lease is
// absent or expired. Returns nil when no row matched.
func (r *repository) TryReacquire(ctx context.Context, provider enums.WebhookProvider, eventID string, now, lockUntil time.Time) (*models.IncomingWebhookEvent, error) {
	res := r.db.WithContext(ctx).
		Model(&models.IncomingWebhookEvent{}).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Where("status <> ?", enums.WebhookEventStatusProcessed).
		Where("processing_lock_until IS NULL OR processing_lock_until <= ?", now).
		Updates(map[string]any{
			"attempts":              gorm.Expr("attempts + 1"),
			"processing_lock_until": lockUntil,
			"last_attempt_at":       now,
			"updated_at":            now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return r.FindByProviderEvent(ctx, provider, eventID)
}

func (r *repository) Insert(ctx context.Context, record *models.IncomingWebhookEvent) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) FindByProviderEvent(ctx context.Context, provider enums.WebhookProvider, eventID string) (*models.IncomingWebhookEvent, error) {
	var record models.IncomingWebhookEvent
	err := r.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", provider, eventID).
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repository) MarkProcessed(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.IncomingWebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":                enums.WebhookEventStatusProcessed,
			"processed_at":          now,
			"processing_lock_until": nil,
			"updated_at":            now,
		}).Error
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, now time.Time, lastError json.RawMessage) error {
	return r.db.WithContext(ctx).
		Model(&models.IncomingWebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":                enums.WebhookEventStatusFailed,
			"processing_lock_until": nil,
			"last_error":            lastError,
			"updated_at":            now,
		}).Error
}

func (r *repository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", cutoff).
		Delete(&models.IncomingWebhookEvent{})
	return res.RowsAffected, res.Error
}
