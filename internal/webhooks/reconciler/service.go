package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rileybruner/tenantgrid-backend/internal/ledger"
	"github.com/rileybruner/tenantgrid-backend/internal/notifications"
	"github.com/rileybruner/tenantgrid-backend/internal/subscriptions"
	"github.com/rileybruner/tenantgrid-backend/pkg/config"
	"github.com/rileybruner/tenantgrid-backend/pkg/db/models"
	"github.com/rileybruner/tenantgrid-backend/pkg/enums"
	pkgerrors "github.com/rileybruner/tenantgrid-backend/pkg/errors"
	"github.com/rileybruner/tenantgrid-backend/pkg/logger"
)

type subscriptionService interface {
	FindByTenant(ctx context.Context, tenantID uuid.UUID) (*models.TenantSubscription, error)
	AssignPackage(ctx context.Context, input subscriptions.AssignInput) (*models.TenantSubscription, error)
	Suspend(ctx context.Context, tenantID uuid.UUID, packageID *uuid.UUID) (bool, error)
	Reactivate(ctx context.Context, tenantID uuid.UUID) (bool, error)
}

type packageService interface {
	GetPackage(ctx context.Context, id uuid.UUID) (*models.Package, error)
}

type ledgerService interface {
	RecordEntry(ctx context.Context, input ledger.RecordEntryInput) (*models.BillingLedgerEntry, error)
}

type notifier interface {
	Dispatch(ctx context.Context, input notifications.DispatchInput)
}

// ChargeInfo is the subset of a provider charge the dispute handler needs.
type ChargeInfo struct {
	Metadata    map[string]string
	Currency    string
	AmountMinor int64
}

// ChargeClient resolves charges against the payment provider.
type ChargeClient interface {
	GetCharge(ctx context.Context, chargeID string) (*ChargeInfo, error)
}

// ServiceParams wires reconciler dependencies. Charges and SquareCharges are
// the per-provider lookups the dispute handler uses; either may be nil, in
// which case disputes from that provider are skipped.
type ServiceParams struct {
	Subscriptions subscriptionService
	Packages      packageService
	Ledger        ledgerService
	Notifier      notifier
	Charges       ChargeClient
	SquareCharges ChargeClient
	Logger        *logger.Logger
	Config        config.WebhookConfig
}

// Service applies verified payment events to subscription state. It is only
// invoked while the caller owns the event's processing slot.
type Service struct {
	subscriptions subscriptionService
	packages      packageService
	ledger        ledgerService
	notifier      notifier
	charges       ChargeClient
	squareCharges ChargeClient
	logg          *logger.Logger
	staleSkew     time.Duration
	underpayFloor int64
	underpayPct   int64
}

// NewService validates dependencies and builds the reconciler.
func NewService(params ServiceParams) (*Service, error) {
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription service required")
	}
	if params.Packages == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "package service required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger service required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifier required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}

	staleSkew := params.Config.StaleEventSkew
	if staleSkew <= 0 {
		staleSkew = 15 * time.Minute
	}
	underpayFloor := params.Config.UnderpayFloorMinor
	if underpayFloor <= 0 {
		underpayFloor = 50
	}
	underpayPct := params.Config.UnderpayPercent
	if underpayPct <= 0 {
		underpayPct = 5
	}

	return &Service{
		subscriptions: params.Subscriptions,
		packages:      params.Packages,
		ledger:        params.Ledger,
		notifier:      params.Notifier,
		charges:       params.Charges,
		squareCharges: params.SquareCharges,
		logg:          params.Logger,
		staleSkew:     staleSkew,
		underpayFloor: underpayFloor,
		underpayPct:   underpayPct,
	}, nil
}

// Reconcile dispatches one verified event. Business rejections (stale events,
// underpayments, unknown tenants) are logged and swallowed so the provider
// stops retrying; subscription mutation failures propagate so the event is
// marked failed and redelivered.
func (s *Service) Reconcile(ctx context.Context, ev VerifiedEvent) error {
	switch event := ev.(type) {
	case nil:
		return nil
	case ChargeSucceeded:
		return s.handleChargeSucceeded(ctx, event)
	case ChargeRefunded:
		return s.handleChargeRefunded(ctx, event)
	case DisputeCreated:
		return s.handleDisputeCreated(ctx, event)
	case InvoicePaymentFailed:
		return s.handleInvoicePaymentFailed(ctx, event)
	case InvoicePaid:
		return s.handleInvoicePaid(ctx, event)
	default:
		return pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("unhandled event variant %T", ev))
	}
}

func (s *Service) handleChargeSucceeded(ctx context.Context, event ChargeSucceeded) error {
	logCtx := s.eventContext(ctx, event.Provider, event.ProviderRef, event.TenantID)

	if event.TenantID == uuid.Nil || event.PackageID == uuid.Nil {
		s.logg.Info(logCtx, "charge missing tenant or package metadata, skipping")
		return nil
	}

	pkg, err := s.packages.GetPackage(ctx, event.PackageID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load package")
	}
	if pkg == nil {
		s.logg.Warn(logCtx, "charge references unknown package, skipping")
		return nil
	}

	sub, err := s.subscriptions.FindByTenant(ctx, event.TenantID)
	if err != nil {
		return err
	}
	if sub != nil && sub.StartedAt.Sub(event.OccurredAt) > s.staleSkew {
		s.logg.Warn(logCtx, "discarding stale charge event")
		return nil
	}

	if s.isUnderpaid(pkg.PriceMinor, event.AmountMinor) {
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"expected_minor": pkg.PriceMinor,
			"paid_minor":     event.AmountMinor,
		}), "discarding underpaid charge event")
		return nil
	}

	if _, err := s.subscriptions.AssignPackage(ctx, subscriptions.AssignInput{
		TenantID: event.TenantID,
		Package:  pkg,
		At:       event.OccurredAt,
	}); err != nil {
		// Assignment cannot be made to succeed by redelivering the same
		// event, so the charge is dropped rather than retried forever.
		s.logg.Error(logCtx, "package assignment failed", err)
		return nil
	}

	s.recordEntry(logCtx, ledger.RecordEntryInput{
		TenantID:    event.TenantID,
		PackageID:   &pkg.ID,
		Provider:    event.Provider,
		ProviderRef: event.ProviderRef,
		AmountMinor: event.AmountMinor,
		Currency:    event.Currency,
		Status:      enums.LedgerEntryStatusPaid,
	})
	return nil
}

func (s *Service) handleChargeRefunded(ctx context.Context, event ChargeRefunded) error {
	logCtx := s.eventContext(ctx, event.Provider, event.ProviderRef, event.TenantID)

	if event.TenantID == uuid.Nil {
		s.logg.Info(logCtx, "refund missing tenant metadata, skipping")
		return nil
	}

	s.recordEntry(logCtx, ledger.RecordEntryInput{
		TenantID:    event.TenantID,
		PackageID:   event.PackageID,
		Provider:    event.Provider,
		ProviderRef: event.ProviderRef,
		AmountMinor: event.AmountMinor,
		Currency:    event.Currency,
		Status:      enums.LedgerEntryStatusRefunded,
	})

	// Suspension requires an identifiable package: refunds on historical or
	// unrelated charges must not touch the tenant's current subscription.
	if event.PackageID == nil {
		s.logg.Info(logCtx, "refund carries no package reference, recording only")
		return nil
	}

	changed, err := s.subscriptions.Suspend(ctx, event.TenantID, event.PackageID)
	if err != nil {
		return err
	}

	if changed {
		s.notifySuspended(logCtx, event.TenantID, event.ProviderRef, "Your subscription was suspended after a refund.")
	}
	return nil
}

func (s *Service) handleDisputeCreated(ctx context.Context, event DisputeCreated) error {
	logCtx := s.eventContext(ctx, event.Provider, event.ProviderRef, uuid.Nil)

	if event.ChargeRef == "" {
		s.logg.Warn(logCtx, "dispute missing charge reference, skipping")
		return nil
	}
	charges := s.chargeClientFor(event.Provider)
	if charges == nil {
		s.logg.Warn(logCtx, "no charge lookup available for provider, skipping dispute")
		return nil
	}

	charge, err := charges.GetCharge(ctx, event.ChargeRef)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup disputed charge")
	}
	tenantID := metadataUUID(charge.Metadata, "tenant_id")
	if tenantID == uuid.Nil {
		s.logg.Warn(logCtx, "disputed charge has no tenant metadata, skipping")
		return nil
	}
	var packageID *uuid.UUID
	if id := metadataUUID(charge.Metadata, "package_id"); id != uuid.Nil {
		packageID = &id
	}

	changed, err := s.subscriptions.Suspend(ctx, tenantID, packageID)
	if err != nil {
		return err
	}

	s.recordEntry(logCtx, ledger.RecordEntryInput{
		TenantID:    tenantID,
		PackageID:   packageID,
		Provider:    event.Provider,
		ProviderRef: event.ProviderRef,
		AmountMinor: 0,
		Currency:    normalizeCurrency(charge.Currency),
		Status:      enums.LedgerEntryStatusDisputeCreated,
	})

	if changed {
		s.notifySuspended(logCtx, tenantID, event.ProviderRef, "Your subscription was suspended while a payment dispute is open.")
	}
	return nil
}

func (s *Service) handleInvoicePaymentFailed(ctx context.Context, event InvoicePaymentFailed) error {
	logCtx := s.eventContext(ctx, event.Provider, event.ProviderRef, event.TenantID)

	if event.TenantID == uuid.Nil {
		s.logg.Info(logCtx, "invoice failure missing tenant metadata, skipping")
		return nil
	}

	changed, err := s.subscriptions.Suspend(ctx, event.TenantID, nil)
	if err != nil {
		return err
	}

	s.recordEntry(logCtx, ledger.RecordEntryInput{
		TenantID:    event.TenantID,
		Provider:    event.Provider,
		ProviderRef: event.ProviderRef,
		AmountMinor: 0,
		Currency:    normalizeCurrency(event.Currency),
		Status:      enums.LedgerEntryStatusPaymentFailed,
	})

	if changed {
		s.notify(logCtx, notifications.DispatchInput{
			TenantID: event.TenantID,
			Type:     enums.NotificationTypePaymentFailed,
			Title:    "Payment failed",
			Message:  "We could not collect your latest payment, so your subscription is suspended.",
			Metadata: providerRefMetadata(event.ProviderRef),
		})
	}
	return nil
}

func (s *Service) handleInvoicePaid(ctx context.Context, event InvoicePaid) error {
	logCtx := s.eventContext(ctx, event.Provider, event.ProviderRef, event.TenantID)

	if event.TenantID == uuid.Nil {
		s.logg.Info(logCtx, "invoice missing tenant metadata, skipping")
		return nil
	}

	changed, err := s.subscriptions.Reactivate(ctx, event.TenantID)
	if err != nil {
		return err
	}
	if changed {
		s.notify(logCtx, notifications.DispatchInput{
			TenantID: event.TenantID,
			Type:     enums.NotificationTypeSubscriptionReactivated,
			Title:    "Subscription reactivated",
			Message:  "Your payment went through and your subscription is active again.",
			Metadata: providerRefMetadata(event.ProviderRef),
		})
	}
	return nil
}

func (s *Service) chargeClientFor(provider enums.WebhookProvider) ChargeClient {
	switch provider {
	case enums.WebhookProviderStripe:
		return s.charges
	case enums.WebhookProviderSquare:
		return s.squareCharges
	default:
		return nil
	}
}

// isUnderpaid reports whether paid falls short of expected by more than
// max(fixed floor, percentage of expected).
func (s *Service) isUnderpaid(expectedMinor, paidMinor int64) bool {
	expected := decimal.NewFromInt(expectedMinor)
	paid := decimal.NewFromInt(paidMinor)
	tolerance := decimal.Max(
		decimal.NewFromInt(s.underpayFloor),
		expected.Mul(decimal.NewFromInt(s.underpayPct)).Div(decimal.NewFromInt(100)),
	)
	return paid.LessThan(expected.Sub(tolerance))
}

func (s *Service) recordEntry(logCtx context.Context, input ledger.RecordEntryInput) {
	if _, err := s.ledger.RecordEntry(logCtx, input); err != nil {
		s.logg.Error(logCtx, "failed to record ledger entry", err)
	}
}

func (s *Service) notifySuspended(logCtx context.Context, tenantID uuid.UUID, providerRef, message string) {
	s.notify(logCtx, notifications.DispatchInput{
		TenantID: tenantID,
		Type:     enums.NotificationTypeSubscriptionSuspended,
		Title:    "Subscription suspended",
		Message:  message,
		Metadata: providerRefMetadata(providerRef),
	})
}

func (s *Service) notify(logCtx context.Context, input notifications.DispatchInput) {
	s.notifier.Dispatch(logCtx, input)
}

func (s *Service) eventContext(ctx context.Context, provider enums.WebhookProvider, providerRef string, tenantID uuid.UUID) context.Context {
	logCtx := s.logg.WithProvider(ctx, string(provider))
	if providerRef != "" {
		logCtx = s.logg.WithField(logCtx, "provider_ref", providerRef)
	}
	if tenantID != uuid.Nil {
		logCtx = s.logg.WithTenantID(logCtx, tenantID.String())
	}
	return logCtx
}

func providerRefMetadata(providerRef string) json.RawMessage {
	if providerRef == "" {
		return nil
	}
	data, err := json.Marshal(map[string]string{"provider_ref": providerRef})
	if err != nil {
		return nil
	}
	return data
}
