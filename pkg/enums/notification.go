package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeSubscriptionExpiring    NotificationType = "subscription_expiring"
	NotificationTypeSubscriptionExpired     NotificationType = "subscription_expired"
	NotificationTypeSubscriptionSuspended   NotificationType = "subscription_suspended"
	NotificationTypeSubscriptionReactivated NotificationType = "subscription_reactivated"
	NotificationTypePaymentFailed           NotificationType = "payment_failed"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeSubscriptionExpiring,
	NotificationTypeSubscriptionExpired,
	NotificationTypeSubscriptionSuspended,
	NotificationTypeSubscriptionReactivated,
	NotificationTypePaymentFailed,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
