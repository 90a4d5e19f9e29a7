package webhooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/rileybruner/tenantgrid-backend/api/responses"
	webhookledger "github.com/rileybruner/tenantgrid-backend/internal/webhooks/ledger"
	"github.com/rileybruner/tenantgrid-backend/internal/webhooks/reconciler"
	"github.com/rileybruner/tenantgrid-backend/pkg/enums"
	pkgerrors "github.com/rileybruner/tenantgrid-backend/pkg/errors"
	"github.com/rileybruner/tenantgrid-backend/pkg/logger"
	"github.com/rileybruner/tenantgrid-backend/pkg/metrics"
)

type slotLedger interface {
	AcquireSlot(ctx context.Context, input webhookledger.AcquireInput) (webhookledger.SlotResult, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause error) error
}

type eventReconciler interface {
	Reconcile(ctx context.Context, ev reconciler.VerifiedEvent) error
}

type stripeClient interface {
	SigningSecret() string
}

// Receipt is the acknowledgement body returned to the provider.
type Receipt struct {
	Received  bool   `json:"received"`
	Duplicate bool   `json:"duplicate"`
	State     string `json:"state"`
}

// StripeWebhook verifies, claims and reconciles Stripe payment events.
// Every delivery passes through the ledger: only the caller that wins the
// slot runs the reconciler, replays are acknowledged without side effects.
func StripeWebhook(ledger slotLedger, recon eventReconciler, client stripeClient, wm *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	provider := enums.WebhookProviderStripe

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		start := time.Now()

		if ledger == nil || recon == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook pipeline unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			wm.IncOutcome(provider.String(), "rejected")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEvent(payload, sigHeader, client.SigningSecret())
		if err != nil {
			wm.IncOutcome(provider.String(), "rejected")
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "verify signature"))
			return
		}

		var accountID *string
		if event.Account != "" {
			accountID = &event.Account
		}

		slot, err := ledger.AcquireSlot(ctx, webhookledger.AcquireInput{
			Provider:    provider,
			EventID:     event.ID,
			EventType:   string(event.Type),
			AccountID:   accountID,
			PayloadHash: hashPayload(payload),
		})
		if err != nil {
			wm.IncOutcome(provider.String(), "error")
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if slot.State != webhookledger.StateAcquired {
			wm.IncOutcome(provider.String(), string(slot.State))
			responses.WriteSuccess(w, Receipt{Received: true, Duplicate: true, State: string(slot.State)})
			return
		}

		verified, err := reconciler.DecodeStripeEvent(&event)
		if err == nil {
			err = recon.Reconcile(ctx, verified)
		}
		finish(ctx, ledger, wm, logg, provider, slot.Record.ID, start, err)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, Receipt{Received: true, State: "processed"})
	}
}

// finish settles the ledger row and records metrics for a claimed slot.
func finish(ctx context.Context, ledger slotLedger, wm *metrics.WebhookMetrics, logg *logger.Logger, provider enums.WebhookProvider, recordID uuid.UUID, start time.Time, handleErr error) {
	if handleErr != nil {
		wm.IncOutcome(provider.String(), "failed")
		if err := ledger.MarkFailed(ctx, recordID, handleErr); err != nil && logg != nil {
			logg.Error(ctx, "mark webhook event failed", err)
		}
	} else {
		wm.IncOutcome(provider.String(), "processed")
		if err := ledger.MarkProcessed(ctx, recordID); err != nil && logg != nil {
			logg.Error(ctx, "mark webhook event processed", err)
		}
	}
	wm.ObserveHandleDuration(provider.String(), time.Since(start))
}

func hashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
