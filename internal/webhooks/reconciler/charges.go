package reconciler

import (
	"context"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/charge"

	pkgsquare "github.com/rileybruner/tenantgrid-backend/pkg/square"
	pkgstripe "github.com/rileybruner/tenantgrid-backend/pkg/stripe"
)

type stripeChargeClient struct{}

// NewStripeChargeClient wraps the Stripe charge API so dispute handling can
// be tested against a stub.
func NewStripeChargeClient(api *pkgstripe.Client) ChargeClient {
	if api == nil {
		return nil
	}
	return &stripeChargeClient{}
}

func (c *stripeChargeClient) GetCharge(ctx context.Context, chargeID string) (*ChargeInfo, error) {
	params := &stripe.ChargeParams{}
	params.Context = ctx
	ch, err := charge.Get(chargeID, params)
	if err != nil {
		return nil, err
	}
	return &ChargeInfo{
		Metadata:    ch.Metadata,
		Currency:    string(ch.Currency),
		AmountMinor: ch.Amount,
	}, nil
}

type squareChargeClient struct {
	api *pkgsquare.Client
}

// NewSquareChargeClient resolves disputed Square payments. The payment's
// reference id carries "tenant_id:package_id", which is surfaced through the
// same metadata keys Stripe charges use.
func NewSquareChargeClient(api *pkgsquare.Client) ChargeClient {
	if api == nil {
		return nil
	}
	return &squareChargeClient{api: api}
}

func (c *squareChargeClient) GetCharge(ctx context.Context, chargeID string) (*ChargeInfo, error) {
	payment, err := c.api.GetPayment(ctx, chargeID)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{}
	tenantID, packageID := parseSquareReference(derefString(payment.ReferenceID))
	if tenantID != uuid.Nil {
		metadata["tenant_id"] = tenantID.String()
	}
	if packageID != uuid.Nil {
		metadata["package_id"] = packageID.String()
	}

	info := &ChargeInfo{Metadata: metadata}
	if money := payment.AmountMoney; money != nil {
		if money.Amount != nil {
			info.AmountMinor = *money.Amount
		}
		if money.Currency != nil {
			info.Currency = string(*money.Currency)
		}
	}
	return info, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
