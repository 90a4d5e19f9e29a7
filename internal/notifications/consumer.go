package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/rileybruner/tenantgrid-backend/pkg/logger"
)

const (
	consumerScope      = "notification-fanout"
	consumerDedupeTTL  = 24 * time.Hour
	consumerDedupeFlag = "1"
)

// Sender delivers a notification to an external channel (email, push, chat).
type Sender interface {
	Send(ctx context.Context, event DeliveryEvent) error
}

// DeliveryEvent is the decoded fan-out payload handed to senders.
type DeliveryEvent struct {
	NotificationID string          `json:"notification_id"`
	TenantID       string          `json:"tenant_id"`
	Type           string          `json:"type"`
	Title          string          `json:"title"`
	Message        string          `json:"message"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type dedupeStore interface {
	IdempotencyKey(scope, id string) string
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// Consumer drains the notification subscription and forwards each event to
// the configured sender exactly once per message id.
type Consumer struct {
	subscription *pubsub.Subscriber
	sender       Sender
	dedupe       dedupeStore
	logg         *logger.Logger
}

// NewConsumer builds a notification fan-out consumer.
func NewConsumer(subscription *pubsub.Subscriber, sender Sender, dedupe dedupeStore, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender required")
	}
	if dedupe == nil {
		return nil, fmt.Errorf("dedupe store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		subscription: subscription,
		sender:       sender,
		dedupe:       dedupe,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process returns true when the message should be acked.
func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) bool {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": msg.Attributes["event_type"],
	})

	var event DeliveryEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		// Malformed payloads never become deliverable; drop them.
		c.logg.Error(logCtx, "failed to decode notification event", err)
		return true
	}
	if event.NotificationID == "" {
		c.logg.Warn(logCtx, "notification event missing id")
		return true
	}

	key := c.dedupe.IdempotencyKey(consumerScope, event.NotificationID)
	fresh, err := c.dedupe.SetNX(ctx, key, consumerDedupeFlag, consumerDedupeTTL)
	if err != nil {
		c.logg.Error(logCtx, "dedupe check failed", err)
		return false
	}
	if !fresh {
		c.logg.Info(logCtx, "notification already delivered")
		return true
	}

	if err := c.sender.Send(ctx, event); err != nil {
		c.logg.Error(logCtx, "notification delivery failed", err)
		_ = c.dedupe.Del(ctx, key)
		return false
	}

	c.logg.Info(logCtx, "notification delivered")
	return true
}

// LogSender is the default sender used when no external channel is wired. It
// records the delivery in the structured log stream.
type LogSender struct {
	logg *logger.Logger
}

// NewLogSender builds a sender that only logs deliveries.
func NewLogSender(logg *logger.Logger) (*LogSender, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &LogSender{logg: logg}, nil
}

// Send implements Sender.
func (s *LogSender) Send(ctx context.Context, event DeliveryEvent) error {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"notification_id": event.NotificationID,
		"tenant_id":       event.TenantID,
		"type":            event.Type,
		"title":           event.Title,
	})
	s.logg.Info(logCtx, "notification delivery")
	return nil
}
