package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rileybruner/tenantgrid-backend/api/responses"
	webhookledger "github.com/rileybruner/tenantgrid-backend/internal/webhooks/ledger"
	"github.com/rileybruner/tenantgrid-backend/internal/webhooks/reconciler"
	"github.com/rileybruner/tenantgrid-backend/pkg/config"
	"github.com/rileybruner/tenantgrid-backend/pkg/enums"
	pkgerrors "github.com/rileybruner/tenantgrid-backend/pkg/errors"
	"github.com/rileybruner/tenantgrid-backend/pkg/logger"
	"github.com/rileybruner/tenantgrid-backend/pkg/metrics"
)

const squareSignatureHeader = "x-square-hmacsha256-signature"

// SquareWebhook verifies, claims and reconciles Square payment events.
func SquareWebhook(ledger slotLedger, recon eventReconciler, cfg config.SquareConfig, wm *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	provider := enums.WebhookProviderSquare

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		start := time.Now()

		if ledger == nil || recon == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook pipeline unavailable"))
			return
		}
		if cfg.SigningKey == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "square signing key unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get(squareSignatureHeader)
		if sigHeader == "" {
			wm.IncOutcome(provider.String(), "rejected")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "square signature missing"))
			return
		}
		if !validateSquareSignature(payload, cfg.SigningKey, cfg.NotificationURL, sigHeader) {
			wm.IncOutcome(provider.String(), "rejected")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid square signature"))
			return
		}

		var envelope reconciler.SquareEvent
		if err := json.Unmarshal(payload, &envelope); err != nil {
			wm.IncOutcome(provider.String(), "rejected")
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}
		eventID := strings.TrimSpace(envelope.EventID)
		if eventID == "" {
			wm.IncOutcome(provider.String(), "rejected")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event_id missing"))
			return
		}

		var accountID *string
		if envelope.MerchantID != "" {
			accountID = &envelope.MerchantID
		}

		slot, err := ledger.AcquireSlot(ctx, webhookledger.AcquireInput{
			Provider:    provider,
			EventID:     eventID,
			EventType:   envelope.Type,
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

		verified, err := reconciler.DecodeSquareEvent(payload)
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

// validateSquareSignature checks the HMAC-SHA256 of the notification URL
// concatenated with the raw body, as Square signs deliveries.
func validateSquareSignature(payload []byte, signingKey, notificationURL, header string) bool {
	if header == "" || signingKey == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(signingKey))
	mac.Write([]byte(notificationURL))
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}
