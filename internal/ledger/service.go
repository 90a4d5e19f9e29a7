package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/rileybruner/tenantgrid-backend/pkg/db/models"
	"github.com/rileybruner/tenantgrid-backend/pkg/enums"
)

// Service defines operations that record billing ledger entries. The ledger
// is append-only; a redelivered provider event may produce a second entry for
// the same provider ref, which downstream reporting tolerates.
type Service interface {
	RecordEntry(ctx context.Context, input RecordEntryInput) (*models.BillingLedgerEntry, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.BillingLedgerEntry, error)
}

type service struct {
	repo Repository
}

// RecordEntryInput captures the immutable data a ledger entry requires.
type RecordEntryInput struct {
	TenantID    uuid.UUID               `json:"tenant_id"`
	PackageID   *uuid.UUID              `json:"package_id"`
	Provider    enums.WebhookProvider   `json:"provider"`
	ProviderRef string                  `json:"provider_ref"`
	AmountMinor int64                   `json:"amount_minor"`
	Currency    string                  `json:"currency"`
	Status      enums.LedgerEntryStatus `json:"status"`
	Metadata    json.RawMessage         `json:"metadata"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) RecordEntry(ctx context.Context, input RecordEntryInput) (*models.BillingLedgerEntry, error) {
	if input.TenantID == uuid.Nil {
		return nil, fmt.Errorf("tenant id is required")
	}
	if !input.Provider.IsValid() {
		return nil, fmt.Errorf("invalid provider %q", input.Provider)
	}
	if input.ProviderRef == "" {
		return nil, fmt.Errorf("provider ref is required")
	}
	if !input.Status.IsValid() {
		return nil, fmt.Errorf("invalid ledger entry status %q", input.Status)
	}
	if input.Currency == "" {
		return nil, fmt.Errorf("currency is required")
	}

	entry := &models.BillingLedgerEntry{
		ID:          uuid.New(),
		TenantID:    input.TenantID,
		PackageID:   input.PackageID,
		Provider:    input.Provider,
		ProviderRef: input.ProviderRef,
		AmountMinor: input.AmountMinor,
		Currency:    input.Currency,
		Status:      input.Status,
		Metadata:    input.Metadata,
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.BillingLedgerEntry, error) {
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("tenant id is required")
	}
	return s.repo.ListByTenantID(ctx, tenantID)
}
