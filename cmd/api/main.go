package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rileybruner/tenantgrid-backend/api/routes"
	"github.com/rileybruner/tenantgrid-backend/internal/ledger"
	"github.com/rileybruner/tenantgrid-backend/internal/notifications"
	"github.com/rileybruner/tenantgrid-backend/internal/packages"
	"github.com/rileybruner/tenantgrid-backend/internal/subscriptions"
	webhookledger "github.com/rileybruner/tenantgrid-backend/internal/webhooks/ledger"
	"github.com/rileybruner/tenantgrid-backend/internal/webhooks/reconciler"
	"github.com/rileybruner/tenantgrid-backend/pkg/config"
	"github.com/rileybruner/tenantgrid-backend/pkg/db"
	"github.com/rileybruner/tenantgrid-backend/pkg/logger"
	"github.com/rileybruner/tenantgrid-backend/pkg/metrics"
	"github.com/rileybruner/tenantgrid-backend/pkg/migrate"
	"github.com/rileybruner/tenantgrid-backend/pkg/pubsub"
	"github.com/rileybruner/tenantgrid-backend/pkg/redis"
	"github.com/rileybruner/tenantgrid-backend/pkg/square"
	"github.com/rileybruner/tenantgrid-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	// Square dispute handling needs payment lookups; without credentials the
	// webhook endpoint still works but square disputes are skipped.
	var squareChargeClient reconciler.ChargeClient
	squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
	if err != nil {
		logg.Warn(context.Background(), "square client unavailable, square dispute lookup disabled")
	} else {
		squareChargeClient = reconciler.NewSquareChargeClient(squareClient)
	}

	// Notification fan-out degrades to store-only when Pub/Sub is unreachable.
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

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:   subscriptions.NewRepository(dbClient.DB()),
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}

	packageService, err := packages.NewService(packages.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create package service", err)
		os.Exit(1)
	}

	billingLedger, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create billing ledger", err)
		os.Exit(1)
	}

	notificationsRepo := notifications.NewRepository(dbClient.DB())
	notificationsService, err := notifications.NewService(notificationsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		Repo:      notificationsRepo,
		Publisher: publisher,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notification dispatcher", err)
		os.Exit(1)
	}

	reconcilerService, err := reconciler.NewService(reconciler.ServiceParams{
		Subscriptions: subscriptionService,
		Packages:      packageService,
		Ledger:        billingLedger,
		Notifier:      dispatcher,
		Charges:       reconciler.NewStripeChargeClient(stripeClient),
		SquareCharges: squareChargeClient,
		Logger:        logg,
		Config:        cfg.Webhook,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciler", err)
		os.Exit(1)
	}

	webhookMetrics := metrics.NewWebhookMetrics(prometheus.DefaultRegisterer)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			ledgerService,
			reconcilerService,
			stripeClient,
			notificationsService,
			webhookMetrics,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
