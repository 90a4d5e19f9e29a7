package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/rileybruner/tenantgrid-backend/pkg/logger"
)

type fakePurger struct {
	deleted int64
	err     error
	calls   int
}

func (f *fakePurger) PurgeExpired(ctx context.Context) (int64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.deleted, nil
}

func TestWebhookRetentionJobPurges(t *testing.T) {
	purger := &fakePurger{deleted: 12}
	job, err := NewWebhookRetentionJob(WebhookRetentionJobParams{
		Logger: logger.New(logger.Options{ServiceName: "cron-test"}),
		Ledger: purger,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if job.Name() != "webhook-retention" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run job: %v", err)
	}
	if purger.calls != 1 {
		t.Fatalf("expected one purge call, got %d", purger.calls)
	}
}

func TestWebhookRetentionJobPropagatesErrors(t *testing.T) {
	purger := &fakePurger{err: errors.New("db down")}
	job, err := NewWebhookRetentionJob(WebhookRetentionJobParams{
		Logger: logger.New(logger.Options{ServiceName: "cron-test"}),
		Ledger: purger,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected purge error to propagate")
	}
}
