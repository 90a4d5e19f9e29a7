package webhookledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/rileybruner/tenantgrid-backend/pkg/db"
	"github.com/rileybruner/tenantgrid-backend/pkg/db/models"
	"github.com/rileybruner/tenantgrid-backend/pkg/enums"
	pkgerrors "github.com/rileybruner/tenantgrid-backend/pkg/errors"
	"github.com/rileybruner/tenantgrid-backend/pkg/logger"
)

// SlotState is the outcome of a slot acquisition attempt.
type SlotState string

const (
	StateAcquired           SlotState = "acquired"
	StateDuplicateProcessed SlotState = "duplicate_processed"
	StateInProgress         SlotState = "in_progress"
)

const (
	DefaultProcessingLease = 10 * time.Minute
	DefaultRetention       = 720 * time.Hour
)

// AcquireInput identifies a provider delivery.
type AcquireInput struct {
	Provider    enums.WebhookProvider
	EventID     string
	EventType   string
	AccountID   *string
	PayloadHash string
}

// SlotResult reports what happened to an acquisition attempt.
type SlotResult struct {
	State  SlotState
	Record *models.IncomingWebhookEvent
}

type ServiceParams struct {
	Repo            Repository
	Logger          *logger.Logger
	ProcessingLease time.Duration
	Retention       time.Duration
}

// Service owns the idempotency ledger for incoming webhook deliveries.
type Service struct {
	repo      Repository
	logger    *logger.Logger
	lease     time.Duration
	retention time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook event repo required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	lease := params.ProcessingLease
	if lease <= 0 {
		lease = DefaultProcessingLease
	}
	retention := params.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Service{
		repo:      params.Repo,
		logger:    params.Logger,
		lease:     lease,
		retention: retention,
	}, nil
}

// AcquireSlot claims the exclusive right to process a delivery. Exactly one
// caller per (provider, event id) gets StateAcquired at a time; everyone else
// learns whether the event is already processed or still being worked on.
func (s *Service) AcquireSlot(ctx context.Context, input AcquireInput) (SlotResult, error) {
	if input.Provider == "" || !input.Provider.IsValid() {
		return SlotResult{}, pkgerrors.New(pkgerrors.CodeValidation, "webhook provider required")
	}
	if input.EventID == "" {
		return SlotResult{}, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}

	now := time.Now().UTC()
	lockUntil := now.Add(s.lease)

	record, err := s.repo.TryReacquire(ctx, input.Provider, input.EventID, now, lockUntil)
	if err != nil {
		return SlotResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reacquire webhook slot")
	}
	if record != nil {
		return SlotResult{State: StateAcquired, Record: record}, nil
	}

	fresh := &models.IncomingWebhookEvent{
		ID:                  uuid.New(),
		Provider:            input.Provider,
		EventID:             input.EventID,
		EventType:           input.EventType,
		AccountID:           input.AccountID,
		PayloadHash:         input.PayloadHash,
		Status:              enums.WebhookEventStatusReceived,
		Attempts:            1,
		ProcessingLockUntil: &lockUntil,
		ReceivedAt:          now,
		LastAttemptAt:       now,
		ExpiresAt:           now.Add(s.retention),
	}
	if err := s.repo.Insert(ctx, fresh); err != nil {
		if db.IsUniqueViolation(err, "") {
			return s.resolveContested(ctx, input)
		}
		return SlotResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert webhook event")
	}

	return SlotResult{State: StateAcquired, Record: fresh}, nil
}

// resolveContested classifies a delivery that lost the insert race or hit an
// existing non-reclaimable row.
func (s *Service) resolveContested(ctx context.Context, input AcquireInput) (SlotResult, error) {
	record, err := s.repo.FindByProviderEvent(ctx, input.Provider, input.EventID)
	if err != nil {
		return SlotResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve contested webhook slot")
	}
	if record == nil {
		// Row vanished between insert and re-read. Treat as in progress so
		// the provider retries later.
		return SlotResult{State: StateInProgress}, nil
	}
	if record.Status == enums.WebhookEventStatusProcessed {
		return SlotResult{State: StateDuplicateProcessed, Record: record}, nil
	}
	return SlotResult{State: StateInProgress, Record: record}, nil
}

// MarkProcessed finalizes a delivery and releases its lease.
func (s *Service) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.MarkProcessed(ctx, id, time.Now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark webhook event processed")
	}
	return nil
}

// MarkFailed records the handler error and releases the lease so a later
// redelivery can reacquire the slot.
func (s *Service) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	lastError := encodeLastError(cause)
	if err := s.repo.MarkFailed(ctx, id, time.Now().UTC(), lastError); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark webhook event failed")
	}
	return nil
}

// PurgeExpired drops ledger rows past their retention horizon.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	deleted, err := s.repo.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purge expired webhook events")
	}
	if deleted > 0 {
		s.logger.Info(s.logger.WithField(ctx, "deleted", deleted), "purged expired webhook events")
	}
	return deleted, nil
}

func encodeLastError(cause error) json.RawMessage {
	payload := map[string]string{"message": "unknown error"}
	if cause != nil {
		payload["message"] = cause.Error()
		if typed := pkgerrors.As(cause); typed != nil {
			payload["code"] = string(typed.Code())
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return raw
}
