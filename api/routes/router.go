package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rileybruner/tenantgrid-backend/api/controllers"
	webhookcontrollers "github.com/rileybruner/tenantgrid-backend/api/controllers/webhooks"
	"github.com/rileybruner/tenantgrid-backend/api/middleware"
	"github.com/rileybruner/tenantgrid-backend/internal/notifications"
	webhookledger "github.com/rileybruner/tenantgrid-backend/internal/webhooks/ledger"
	"github.com/rileybruner/tenantgrid-backend/internal/webhooks/reconciler"
	"github.com/rileybruner/tenantgrid-backend/pkg/config"
	"github.com/rileybruner/tenantgrid-backend/pkg/logger"
	"github.com/rileybruner/tenantgrid-backend/pkg/metrics"
	"github.com/rileybruner/tenantgrid-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisP controllers.Pinger,
	ledgerService *webhookledger.Service,
	reconcilerService *reconciler.Service,
	stripeClient *stripe.Client,
	notificationsService notifications.Service,
	webhookMetrics *metrics.WebhookMetrics,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(ledgerService, reconcilerService, stripeClient, webhookMetrics, logg))
		r.Post("/square", webhookcontrollers.SquareWebhook(ledgerService, reconcilerService, cfg.Square, webhookMetrics, logg))
	})

	r.Route("/api/v1/tenants/{tenantId}/notifications", func(r chi.Router) {
		r.Get("/", controllers.ListNotifications(notificationsService, logg))
		r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
		r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
	})

	return r
}
