package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/rileybruner/tenantgrid-backend/pkg/db/models"
	"github.com/rileybruner/tenantgrid-backend/pkg/enums"
	"github.com/rileybruner/tenantgrid-backend/pkg/logger"
)

const (
	defaultPublishTimeout = 10 * time.Second
	defaultPublishRetries = 3
	defaultPublishBackoff = 200 * time.Millisecond
)

// PublishResult resolves the server-assigned message id of a publish.
type PublishResult interface {
	Get(ctx context.Context) (string, error)
}

// Publisher abstracts the Pub/Sub publisher handle.
type Publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) PublishResult
}

// Dispatcher persists in-app notifications and fans them out over Pub/Sub.
// Both sides are best effort: a failed write or publish never propagates to
// the caller, it is logged and dropped.
type Dispatcher struct {
	repo      Repository
	publisher Publisher
	logg      *logger.Logger
	retries   uint64
	backoff   time.Duration
}

// DispatcherParams wires Dispatcher dependencies.
type DispatcherParams struct {
	Repo           Repository
	Publisher      Publisher
	Logger         *logger.Logger
	PublishRetries int
	PublishBackoff time.Duration
}

// DispatchInput describes one notification to deliver.
type DispatchInput struct {
	TenantID uuid.UUID
	Type     enums.NotificationType
	Title    string
	Message  string
	Metadata json.RawMessage
}

type notificationEvent struct {
	NotificationID uuid.UUID              `json:"notification_id"`
	TenantID       uuid.UUID              `json:"tenant_id"`
	Type           enums.NotificationType `json:"type"`
	Title          string                 `json:"title"`
	Message        string                 `json:"message"`
	Metadata       json.RawMessage        `json:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// NewDispatcher validates dependencies and builds a Dispatcher. The publisher
// may be nil, in which case notifications are stored but not fanned out.
func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	retries := params.PublishRetries
	if retries <= 0 {
		retries = defaultPublishRetries
	}
	backoff := params.PublishBackoff
	if backoff <= 0 {
		backoff = defaultPublishBackoff
	}
	return &Dispatcher{
		repo:      params.Repo,
		publisher: params.Publisher,
		logg:      params.Logger,
		retries:   uint64(retries),
		backoff:   backoff,
	}, nil
}

// Dispatch stores the notification row and publishes the fan-out event.
func (d *Dispatcher) Dispatch(ctx context.Context, input DispatchInput) {
	logCtx := d.logg.WithFields(ctx, map[string]any{
		"tenant_id":         input.TenantID.String(),
		"notification_type": string(input.Type),
	})

	if input.TenantID == uuid.Nil || !input.Type.IsValid() {
		d.logg.Warn(logCtx, "dropping malformed notification")
		return
	}

	notification := &models.Notification{
		ID:        uuid.New(),
		TenantID:  input.TenantID,
		Type:      input.Type,
		Title:     input.Title,
		Message:   input.Message,
		Metadata:  input.Metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.repo.Create(ctx, notification); err != nil {
		d.logg.Error(logCtx, "failed to store notification", err)
		return
	}

	if d.publisher == nil {
		return
	}
	if err := d.publish(ctx, notification); err != nil {
		d.logg.Error(logCtx, "failed to publish notification event", err)
		return
	}
	d.logg.Info(logCtx, "notification dispatched")
}

func (d *Dispatcher) publish(ctx context.Context, notification *models.Notification) error {
	event := notificationEvent{
		NotificationID: notification.ID,
		TenantID:       notification.TenantID,
		Type:           notification.Type,
		Title:          notification.Title,
		Message:        notification.Message,
		Metadata:       notification.Metadata,
		CreatedAt:      notification.CreatedAt,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode notification event: %w", err)
	}

	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_type":      string(notification.Type),
			"notification_id": notification.ID.String(),
			"tenant_id":       notification.TenantID.String(),
		},
	}

	backoff := retry.WithMaxRetries(d.retries, retry.NewExponential(d.backoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
		defer cancel()

		result := d.publisher.Publish(publishCtx, msg)
		if result == nil {
			return fmt.Errorf("publisher returned nil result")
		}
		if _, err := result.Get(publishCtx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// NewPubSubPublisher adapts a Pub/Sub publisher handle to the Publisher interface.
func NewPubSubPublisher(p *pubsub.Publisher) Publisher {
	if p == nil {
		return nil
	}
	return &pubsubPublisher{inner: p}
}

type pubsubPublisher struct {
	inner *pubsub.Publisher
}

func (p *pubsubPublisher) Publish(ctx context.Context, msg *pubsub.Message) PublishResult {
	if p == nil || p.inner == nil {
		return nil
	}
	return p.inner.Publish(ctx, msg)
}
