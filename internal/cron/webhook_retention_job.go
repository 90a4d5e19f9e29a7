package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/rileybruner/tenantgrid-backend/pkg/logger"
)

type webhookLedgerPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// WebhookRetentionJobParams configures the webhook ledger cleanup.
type WebhookRetentionJobParams struct {
	Logger *logger.Logger
	Ledger webhookLedgerPurger
}

// NewWebhookRetentionJob constructs the job that garbage-collects webhook
// ledger records past their retention window.
func NewWebhookRetentionJob(params WebhookRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("webhook ledger service required")
	}
	return &webhookRetentionJob{
		logg:   params.Logger,
		ledger: params.Ledger,
		now:    time.Now,
	}, nil
}

type webhookRetentionJob struct {
	logg   *logger.Logger
	ledger webhookLedgerPurger
	now    func() time.Time
}

func (j *webhookRetentionJob) Name() string { return "webhook-retention" }

func (j *webhookRetentionJob) Run(ctx context.Context) error {
	deleted, err := j.ledger.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("webhook retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"rows_deleted": deleted})
	j.logg.Info(logCtx, "webhook retention cleanup complete")
	return nil
}
