package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	webhookledger "github.com/rileybruner/tenantgrid-backend/internal/webhooks/ledger"
	"github.com/rileybruner/tenantgrid-backend/internal/webhooks/reconciler"
	"github.com/rileybruner/tenantgrid-backend/pkg/db/models"
	pkgerrors "github.com/rileybruner/tenantgrid-backend/pkg/errors"
	"github.com/rileybruner/tenantgrid-backend/pkg/types"
)

type fakeLedger struct {
	state     webhookledger.SlotState
	acquires  []webhookledger.AcquireInput
	processed []uuid.UUID
	failed    []uuid.UUID
	record    *models.IncomingWebhookEvent
}

func (f *fakeLedger) AcquireSlot(ctx context.Context, input webhookledger.AcquireInput) (webhookledger.SlotResult, error) {
	f.acquires = append(f.acquires, input)
	state := f.state
	if state == "" {
		state = webhookledger.StateAcquired
	}
	record := f.record
	if record == nil {
		record = &models.IncomingWebhookEvent{ID: uuid.New()}
	}
	return webhookledger.SlotResult{State: state, Record: record}, nil
}

func (f *fakeLedger) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	f.processed = append(f.processed, id)
	return nil
}

func (f *fakeLedger) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakeReconciler struct {
	events []reconciler.VerifiedEvent
	err    error
}

func (f *fakeReconciler) Reconcile(ctx context.Context, ev reconciler.VerifiedEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

type fakeSigningClient struct {
	secret string
}

func (c *fakeSigningClient) SigningSecret() string {
	return c.secret
}

func TestStripeWebhook_AcquiresAndProcesses(t *testing.T) {
	payload, header := buildSignedChargeEvent(t)
	ledger := &fakeLedger{}
	recon := &fakeReconciler{}
	handler := StripeWebhook(ledger, recon, &fakeSigningClient{secret: "whsec_test"}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(recon.events) != 1 {
		t.Fatalf("expected one reconciled event, got %d", len(recon.events))
	}
	if _, ok := recon.events[0].(reconciler.ChargeSucceeded); !ok {
		t.Fatalf("expected ChargeSucceeded, got %T", recon.events[0])
	}
	if len(ledger.processed) != 1 {
		t.Fatalf("slot should be marked processed once, got %d", len(ledger.processed))
	}
	if len(ledger.acquires) != 1 || ledger.acquires[0].EventID == "" {
		t.Fatalf("acquire input missing event id: %+v", ledger.acquires)
	}
	if ledger.acquires[0].PayloadHash == "" {
		t.Fatal("payload hash must be recorded")
	}
}

func TestStripeWebhook_DuplicateAcknowledgedWithoutWork(t *testing.T) {
	payload, header := buildSignedChargeEvent(t)
	ledger := &fakeLedger{state: webhookledger.StateDuplicateProcessed}
	recon := &fakeReconciler{}
	handler := StripeWebhook(ledger, recon, &fakeSigningClient{secret: "whsec_test"}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d", rec.Code)
	}
	if len(recon.events) != 0 {
		t.Fatal("duplicate deliveries must not reach the reconciler")
	}

	var envelope types.SuccessEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	receipt := envelope.Data.(map[string]any)
	if receipt["duplicate"] != true || receipt["state"] != string(webhookledger.StateDuplicateProcessed) {
		t.Fatalf("unexpected receipt %v", receipt)
	}
}

func TestStripeWebhook_InProgressAcknowledged(t *testing.T) {
	payload, header := buildSignedChargeEvent(t)
	ledger := &fakeLedger{state: webhookledger.StateInProgress}
	recon := &fakeReconciler{}
	handler := StripeWebhook(ledger, recon, &fakeSigningClient{secret: "whsec_test"}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 while in progress, got %d", rec.Code)
	}
	if len(recon.events) != 0 {
		t.Fatal("contested deliveries must not reach the reconciler")
	}
}

func TestStripeWebhook_InvalidSignature(t *testing.T) {
	payload, _ := buildSignedChargeEvent(t)
	ledger := &fakeLedger{}
	recon := &fakeReconciler{}
	handler := StripeWebhook(ledger, recon, &fakeSigningClient{secret: "whsec_test"}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=invalid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid signature, got %d", rec.Code)
	}
	if len(ledger.acquires) != 0 {
		t.Fatal("unverified deliveries must not touch the ledger")
	}
}

func TestStripeWebhook_MissingSignature(t *testing.T) {
	payload, _ := buildSignedChargeEvent(t)
	handler := StripeWebhook(&fakeLedger{}, &fakeReconciler{}, &fakeSigningClient{secret: "whsec_test"}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a signature, got %d", rec.Code)
	}
}

func TestStripeWebhook_ReconcileFailureMarksFailed(t *testing.T) {
	payload, header := buildSignedChargeEvent(t)
	ledger := &fakeLedger{}
	recon := &fakeReconciler{err: pkgerrors.New(pkgerrors.CodeDependency, "db unavailable")}
	handler := StripeWebhook(ledger, recon, &fakeSigningClient{secret: "whsec_test"}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 so the provider retries, got %d", rec.Code)
	}
	if len(ledger.failed) != 1 {
		t.Fatalf("slot should be marked failed once, got %d", len(ledger.failed))
	}
	if len(ledger.processed) != 0 {
		t.Fatal("failed deliveries must not be marked processed")
	}
}

func buildSignedChargeEvent(t *testing.T) ([]byte, string) {
	t.Helper()
	charge := &stripe.Charge{
		ID:       "ch_" + uuid.NewString(),
		Amount:   5000,
		Currency: "usd",
		Metadata: map[string]string{
			"tenant_id":  uuid.NewString(),
			"package_id": uuid.NewString(),
		},
	}
	rawCharge, err := json.Marshal(charge)
	if err != nil {
		t.Fatalf("marshal charge: %v", err)
	}
	event := &stripe.Event{
		ID:         "evt_" + uuid.NewString(),
		Type:       stripe.EventTypeChargeSucceeded,
		Object:     "event",
		APIVersion: stripe.APIVersion,
		Created:    time.Now().Unix(),
		Data: &stripe.EventData{
			Raw: rawCharge,
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	header := buildStripeSignatureHeader(payload, "whsec_test", time.Now().Unix())
	return payload, header
}

func buildStripeSignatureHeader(payload []byte, secret string, ts int64) string {
	signedPayload := fmt.Sprintf("%d.%s", ts, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
