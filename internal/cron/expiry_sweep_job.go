package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/rileybruner/tenantgrid-backend/internal/notifications"
	"github.com/rileybruner/tenantgrid-backend/pkg/db/models"
	"github.com/rileybruner/tenantgrid-backend/pkg/enums"
	"github.com/rileybruner/tenantgrid-backend/pkg/logger"
)

const defaultWarningDays = 7

type subscriptionSweepRepo interface {
	ListExpiring(ctx context.Context, now, cutoff time.Time) ([]models.TenantSubscription, error)
	ListExpired(ctx context.Context, now time.Time) ([]models.TenantSubscription, error)
	ExpireIfDue(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	MarkWarningSent(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
}

type packageCatalog interface {
	GetPackage(ctx context.Context, id uuid.UUID) (*models.Package, error)
	EffectiveWarningDays(pkg *models.Package, globalDays int) int
	WarningWindowDays(ctx context.Context, globalDays int) (int, error)
}

type tenantDeactivator interface {
	Deactivate(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
}

type sweepNotifier interface {
	Dispatch(ctx context.Context, input notifications.DispatchInput)
}

// ExpirySweepJobParams configures the subscription expiry sweep.
type ExpirySweepJobParams struct {
	Logger        *logger.Logger
	Subscriptions subscriptionSweepRepo
	Packages      packageCatalog
	Tenants       tenantDeactivator
	Notifier      sweepNotifier
	WarningDays   int
}

// NewExpirySweepJob constructs the subscription expiry sweep cron job.
func NewExpirySweepJob(params ExpirySweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	if params.Packages == nil {
		return nil, fmt.Errorf("package service required")
	}
	if params.Tenants == nil {
		return nil, fmt.Errorf("tenant repository required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	warningDays := params.WarningDays
	if warningDays <= 0 {
		warningDays = defaultWarningDays
	}
	return &expirySweepJob{
		logg:          params.Logger,
		subscriptions: params.Subscriptions,
		packages:      params.Packages,
		tenants:       params.Tenants,
		notifier:      params.Notifier,
		warningDays:   warningDays,
		now:           time.Now,
	}, nil
}

type expirySweepJob struct {
	logg          *logger.Logger
	subscriptions subscriptionSweepRepo
	packages      packageCatalog
	tenants       tenantDeactivator
	notifier      sweepNotifier
	warningDays   int
	now           func() time.Time
}

func (j *expirySweepJob) Name() string { return "subscription-expiry-sweep" }

func (j *expirySweepJob) Run(ctx context.Context) error {
	var errs []error
	if err := j.warnExpiring(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := j.expireDue(ctx); err != nil {
		errs = append(errs, err)
	}
	return multierr.Combine(errs...)
}

// warnExpiring flags subscriptions inside their warning window exactly once.
// Candidates are queried with the widest window any package configures and
// filtered per package afterwards.
func (j *expirySweepJob) warnExpiring(ctx context.Context) error {
	now := j.now().UTC()

	window, err := j.packages.WarningWindowDays(ctx, j.warningDays)
	if err != nil {
		return fmt.Errorf("resolve warning window: %w", err)
	}
	if window <= 0 {
		return nil
	}

	cutoff := now.Add(time.Duration(window) * 24 * time.Hour)
	candidates, err := j.subscriptions.ListExpiring(ctx, now, cutoff)
	if err != nil {
		return fmt.Errorf("query expiring subscriptions: %w", err)
	}

	var errs []error
	count := 0
	for _, sub := range candidates {
		if sub.ExpiresAt == nil {
			continue
		}
		pkg, err := j.packages.GetPackage(ctx, sub.PackageID)
		if err != nil {
			errs = append(errs, fmt.Errorf("load package for %s: %w", sub.ID, err))
			continue
		}
		effective := j.packages.EffectiveWarningDays(pkg, j.warningDays)
		if effective <= 0 {
			continue
		}
		if sub.ExpiresAt.Sub(now) > time.Duration(effective)*24*time.Hour {
			continue
		}

		changed, err := j.subscriptions.MarkWarningSent(ctx, sub.ID, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("mark warning sent for %s: %w", sub.ID, err))
			continue
		}
		if !changed {
			continue
		}

		j.notifier.Dispatch(ctx, notifications.DispatchInput{
			TenantID: sub.TenantID,
			Type:     enums.NotificationTypeSubscriptionExpiring,
			Title:    "Subscription expiring soon",
			Message:  fmt.Sprintf("Your subscription expires on %s. Renew to keep access.", sub.ExpiresAt.Format("January 2, 2006")),
			Metadata: expiryMetadata(*sub.ExpiresAt),
		})
		count++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"count": count, "window_days": window})
	j.logg.Info(logCtx, "expiry warning loop complete")
	return multierr.Combine(errs...)
}

// expireDue transitions past-due trial/active subscriptions to expired. The
// conditional update guarantees the transition and its side effects fire once.
func (j *expirySweepJob) expireDue(ctx context.Context) error {
	now := j.now().UTC()

	rows, err := j.subscriptions.ListExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("query expired subscriptions: %w", err)
	}

	var errs []error
	count := 0
	for _, sub := range rows {
		changed, err := j.subscriptions.ExpireIfDue(ctx, sub.ID, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire subscription %s: %w", sub.ID, err))
			continue
		}
		if !changed {
			continue
		}

		if _, err := j.tenants.Deactivate(ctx, sub.TenantID, now); err != nil {
			errs = append(errs, fmt.Errorf("deactivate tenant %s: %w", sub.TenantID, err))
		}

		var metadata json.RawMessage
		if sub.ExpiresAt != nil {
			metadata = expiryMetadata(*sub.ExpiresAt)
		}
		j.notifier.Dispatch(ctx, notifications.DispatchInput{
			TenantID: sub.TenantID,
			Type:     enums.NotificationTypeSubscriptionExpired,
			Title:    "Subscription expired",
			Message:  "Your subscription has expired and your workspace is now read-only.",
			Metadata: metadata,
		})
		count++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"count": count})
	j.logg.Info(logCtx, "expiry loop complete")
	return multierr.Combine(errs...)
}

func expiryMetadata(expiresAt time.Time) json.RawMessage {
	data, err := json.Marshal(map[string]string{"expires_at": expiresAt.UTC().Format(time.RFC3339)})
	if err != nil {
		return nil
	}
	return data
}
