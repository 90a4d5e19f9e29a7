package enums

import "fmt"

// WebhookProvider identifies the upstream payment provider an event came from.
type WebhookProvider string

const (
	WebhookProviderStripe WebhookProvider = "stripe"
	WebhookProviderSquare WebhookProvider = "square"
)

var validWebhookProviders = []WebhookProvider{
	WebhookProviderStripe,
	WebhookProviderSquare,
}

// String implements fmt.Stringer.
func (p WebhookProvider) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p WebhookProvider) IsValid() bool {
	for _, candidate := range validWebhookProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseWebhookProvider converts raw input into a WebhookProvider.
func ParseWebhookProvider(value string) (WebhookProvider, error) {
	for _, candidate := range validWebhookProviders {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid webhook provider %q", value)
}
