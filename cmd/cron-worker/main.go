package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rileybruner/tenantgrid-backend/internal/cron"
	"github.com/rileybruner/tenantgrid-backend/internal/notifications"
	"github.com/rileybruner/tenantgrid-backend/internal/packages"
	"github.com/rileybruner/tenantgrid-backend/internal/subscriptions"
	"github.com/rileybruner/tenantgrid-backend/internal/tenants"
	webhookledger "github.com/rileybruner/tenantgrid-backend/internal/webhooks/ledger"
	"github.com/rileybruner/tenantgrid-backend/pkg/config"
	"github.com/rileybruner/tenantgrid-backend/pkg/db"
	"github.com/rileybruner/tenantgrid-backend/pkg/logger"
	"github.com/rileybruner/tenantgrid-backend/pkg/metrics"
	"github.com/rileybruner/tenantgrid-backend/pkg/migrate"
	"github.com/rileybruner/tenantgrid-backend/pkg/pubsub"
	"github.com/rileybruner/tenantgrid-backend/pkg/redis"
)

const lockKeyFormat = "tg:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	var publisher notifications.Publisher
	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Warn(context.Background(), "pubsub unavailable, notification fan-out disabled")
	} else {
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		publisher = notifications.NewPubSubPublisher(pubsubClient.NotificationPublisher())
	}

	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		Repo:      notifications.NewRepository(dbClient.DB()),
		Publisher: publisher,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notification dispatcher", err)
		os.Exit(1)
	}

	packageService, err := packages.NewService(packages.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create package service", err)
		os.Exit(1)
	}

	ledgerService, err := webhookledger.NewService(webhookledger.ServiceParams{
		Repo:            webhookledger.NewRepository(dbClient.DB()),
		Logger:          logg,
		ProcessingLease: cfg.Webhook.ProcessingLease,
		Retention:       cfg.Webhook.Retention,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook ledger", err)
		os.Exit(1)
	}

	sweepJob, err := cron.NewExpirySweepJob(cron.ExpirySweepJobParams{
		Logger:        logg,
		Subscriptions: subscriptions.NewRepository(dbClient.DB()),
		Packages:      packageService,
		Tenants:       tenants.NewRepository(dbClient.DB()),
		Notifier:      dispatcher,
		WarningDays:   cfg.Sweep.WarningDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create expiry sweep job", err)
		os.Exit(1)
	}

	retentionJob, err := cron.NewWebhookRetentionJob(cron.WebhookRetentionJobParams{
		Logger: logg,
		Ledger: ledgerService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook retention job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(sweepJob, retentionJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
