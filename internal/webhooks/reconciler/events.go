package reconciler

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/rileybruner/tenantgrid-backend/pkg/enums"
	pkgerrors "github.com/rileybruner/tenantgrid-backend/pkg/errors"
)

// VerifiedEvent is the closed set of payment events the reconciler acts on.
// Decoders return nil for event types outside the set; the caller treats nil
// as successfully processed.
type VerifiedEvent interface {
	isVerifiedEvent()
}

// ChargeSucceeded is a captured payment carrying tenant/package metadata.
type ChargeSucceeded struct {
	Provider    enums.WebhookProvider
	TenantID    uuid.UUID
	PackageID   uuid.UUID
	AmountMinor int64
	Currency    string
	OccurredAt  time.Time
	ProviderRef string
}

// ChargeRefunded is a full or partial refund of a previous charge.
type ChargeRefunded struct {
	Provider    enums.WebhookProvider
	TenantID    uuid.UUID
	PackageID   *uuid.UUID
	AmountMinor int64
	Currency    string
	OccurredAt  time.Time
	ProviderRef string
}

// DisputeCreated references a charge; the tenant is resolved by a provider
// lookup since dispute payloads carry no inline metadata.
type DisputeCreated struct {
	Provider    enums.WebhookProvider
	ChargeRef   string
	ProviderRef string
	OccurredAt  time.Time
}

// InvoicePaymentFailed marks a failed recurring collection for a tenant.
type InvoicePaymentFailed struct {
	Provider    enums.WebhookProvider
	TenantID    uuid.UUID
	Currency    string
	OccurredAt  time.Time
	ProviderRef string
}

// InvoicePaid marks a successful recurring collection for a tenant.
type InvoicePaid struct {
	Provider    enums.WebhookProvider
	TenantID    uuid.UUID
	OccurredAt  time.Time
	ProviderRef string
}

func (ChargeSucceeded) isVerifiedEvent()      {}
func (ChargeRefunded) isVerifiedEvent()       {}
func (DisputeCreated) isVerifiedEvent()       {}
func (InvoicePaymentFailed) isVerifiedEvent() {}
func (InvoicePaid) isVerifiedEvent()          {}

// DecodeStripeEvent maps a verified Stripe event onto the closed union.
func DecodeStripeEvent(event *stripe.Event) (VerifiedEvent, error) {
	if event == nil || event.Data == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	occurredAt := time.Unix(event.Created, 0).UTC()

	switch event.Type {
	case stripe.EventTypeChargeSucceeded:
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge event")
		}
		return ChargeSucceeded{
			Provider:    enums.WebhookProviderStripe,
			TenantID:    metadataUUID(ch.Metadata, "tenant_id"),
			PackageID:   metadataUUID(ch.Metadata, "package_id"),
			AmountMinor: ch.Amount,
			Currency:    normalizeCurrency(string(ch.Currency)),
			OccurredAt:  occurredAt,
			ProviderRef: ch.ID,
		}, nil
	case stripe.EventTypeChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode refund event")
		}
		var packageID *uuid.UUID
		if id := metadataUUID(ch.Metadata, "package_id"); id != uuid.Nil {
			packageID = &id
		}
		return ChargeRefunded{
			Provider:    enums.WebhookProviderStripe,
			TenantID:    metadataUUID(ch.Metadata, "tenant_id"),
			PackageID:   packageID,
			AmountMinor: ch.AmountRefunded,
			Currency:    normalizeCurrency(string(ch.Currency)),
			OccurredAt:  occurredAt,
			ProviderRef: ch.ID,
		}, nil
	case stripe.EventTypeChargeDisputeCreated:
		var dispute stripe.Dispute
		if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode dispute event")
		}
		chargeRef := ""
		if dispute.Charge != nil {
			chargeRef = dispute.Charge.ID
		}
		return DisputeCreated{
			Provider:    enums.WebhookProviderStripe,
			ChargeRef:   chargeRef,
			ProviderRef: dispute.ID,
			OccurredAt:  occurredAt,
		}, nil
	case stripe.EventTypeInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode invoice event")
		}
		return InvoicePaymentFailed{
			Provider:    enums.WebhookProviderStripe,
			TenantID:    metadataUUID(inv.Metadata, "tenant_id"),
			Currency:    normalizeCurrency(string(inv.Currency)),
			OccurredAt:  occurredAt,
			ProviderRef: inv.ID,
		}, nil
	case stripe.EventTypeInvoicePaid:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode invoice event")
		}
		return InvoicePaid{
			Provider:    enums.WebhookProviderStripe,
			TenantID:    metadataUUID(inv.Metadata, "tenant_id"),
			OccurredAt:  occurredAt,
			ProviderRef: inv.ID,
		}, nil
	default:
		return nil, nil
	}
}

// SquareEvent is the webhook envelope Square delivers.
type SquareEvent struct {
	EventID    string          `json:"event_id"`
	Type       string          `json:"type"`
	MerchantID string          `json:"merchant_id"`
	CreatedAt  time.Time       `json:"created_at"`
	Data       squareEventData `json:"data"`
}

type squareEventData struct {
	Type   string            `json:"type"`
	ID     string            `json:"id"`
	Object squareEventObject `json:"object"`
}

type squareEventObject struct {
	Payment *squarePayment `json:"payment"`
	Refund  *squareRefund  `json:"refund"`
	Dispute *squareDispute `json:"dispute"`
}

type squareMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type squarePayment struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	ReferenceID string      `json:"reference_id"`
	AmountMoney squareMoney `json:"amount_money"`
}

type squareRefund struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	PaymentID   string      `json:"payment_id"`
	ReferenceID string      `json:"reference_id"`
	AmountMoney squareMoney `json:"amount_money"`
}

type squareDispute struct {
	ID              string `json:"id"`
	DisputedPayment struct {
		PaymentID string `json:"payment_id"`
	} `json:"disputed_payment"`
}

// DecodeSquareEvent maps a verified Square webhook body onto the closed
// union. Checkout writes "tenant_id:package_id" into reference_id, which is
// how payments and refunds carry their owner.
func DecodeSquareEvent(body []byte) (VerifiedEvent, error) {
	var event SquareEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode square event")
	}
	occurredAt := event.CreatedAt.UTC()
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	switch strings.ToLower(event.Type) {
	case "payment.created", "payment.updated":
		payment := event.Data.Object.Payment
		if payment == nil || !strings.EqualFold(payment.Status, "COMPLETED") {
			return nil, nil
		}
		tenantID, packageID := parseSquareReference(payment.ReferenceID)
		return ChargeSucceeded{
			Provider:    enums.WebhookProviderSquare,
			TenantID:    tenantID,
			PackageID:   packageID,
			AmountMinor: payment.AmountMoney.Amount,
			Currency:    normalizeCurrency(payment.AmountMoney.Currency),
			OccurredAt:  occurredAt,
			ProviderRef: payment.ID,
		}, nil
	case "refund.created", "refund.updated":
		refund := event.Data.Object.Refund
		if refund == nil || !strings.EqualFold(refund.Status, "COMPLETED") {
			return nil, nil
		}
		tenantID, packageID := parseSquareReference(refund.ReferenceID)
		var packagePtr *uuid.UUID
		if packageID != uuid.Nil {
			packagePtr = &packageID
		}
		return ChargeRefunded{
			Provider:    enums.WebhookProviderSquare,
			TenantID:    tenantID,
			PackageID:   packagePtr,
			AmountMinor: refund.AmountMoney.Amount,
			Currency:    normalizeCurrency(refund.AmountMoney.Currency),
			OccurredAt:  occurredAt,
			ProviderRef: refund.ID,
		}, nil
	case "dispute.created":
		dispute := event.Data.Object.Dispute
		if dispute == nil {
			return nil, nil
		}
		return DisputeCreated{
			Provider:    enums.WebhookProviderSquare,
			ChargeRef:   dispute.DisputedPayment.PaymentID,
			ProviderRef: dispute.ID,
			OccurredAt:  occurredAt,
		}, nil
	default:
		return nil, nil
	}
}

func metadataUUID(metadata map[string]string, key string) uuid.UUID {
	if metadata == nil {
		return uuid.Nil
	}
	id, err := uuid.Parse(strings.TrimSpace(metadata[key]))
	if err != nil {
		return uuid.Nil
	}
	return id
}

func parseSquareReference(reference string) (uuid.UUID, uuid.UUID) {
	parts := strings.SplitN(strings.TrimSpace(reference), ":", 2)
	tenantID, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, uuid.Nil
	}
	if len(parts) < 2 {
		return tenantID, uuid.Nil
	}
	packageID, err := uuid.Parse(parts[1])
	if err != nil {
		return tenantID, uuid.Nil
	}
	return tenantID, packageID
}

func normalizeCurrency(currency string) string {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if c == "" {
		return "USD"
	}
	return c
}
