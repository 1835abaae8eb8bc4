package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/homeplate-app/homeplate-backend/api/controllers"
	webhookcontrollers "github.com/homeplate-app/homeplate-backend/api/controllers/webhooks"
	"github.com/homeplate-app/homeplate-backend/api/middleware"
	checkoutsvc "github.com/homeplate-app/homeplate-backend/internal/checkout"
	"github.com/homeplate-app/homeplate-backend/internal/connect"
	"github.com/homeplate-app/homeplate-backend/internal/orders"
	stripewebhook "github.com/homeplate-app/homeplate-backend/internal/webhooks/stripe"
	"github.com/homeplate-app/homeplate-backend/pkg/config"
	"github.com/homeplate-app/homeplate-backend/pkg/db"
	"github.com/homeplate-app/homeplate-backend/pkg/logger"
	"github.com/homeplate-app/homeplate-backend/pkg/redis"
	"github.com/homeplate-app/homeplate-backend/pkg/stripe"
)

// RouterParams carry everything the HTTP surface depends on.
type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             db.Pinger
	Redis          redis.Pinger
	Checkout       checkoutsvc.Service
	Orders         orders.Service
	Connect        connect.Service
	StripeClient   *stripe.Client
	WebhookService *stripewebhook.Service
	WebhookGuard   *stripewebhook.IdempotencyGuard
}

// NewRouter builds the chi router with the full middleware chain.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(p.Logger),
		middleware.RequestID(p.Logger),
		middleware.Logging(p.Logger),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(p.Config))
		r.Get("/ready", controllers.HealthReady(p.Config, p.Logger, p.DB, p.Redis))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(p.WebhookService, p.StripeClient, p.WebhookGuard, p.Logger))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// The sweep endpoint is unauthenticated: it is invoked by platform
		// schedulers and does nothing an attacker could not wait for.
		r.Post("/orders/sweep", controllers.SweepOrders(p.Orders, p.Logger))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(p.Config.JWT, p.Logger))

			r.Post("/checkout", controllers.Checkout(p.Checkout, p.Logger))

			r.Route("/orders", func(r chi.Router) {
				r.Post("/accept", controllers.AcceptOrder(p.Orders, p.Logger))
				r.Post("/capture", controllers.CaptureOrder(p.Orders, p.Logger))
				r.Post("/cancel", controllers.CancelOrder(p.Orders, p.Logger))
			})

			r.Route("/connect", func(r chi.Router) {
				r.Post("/onboard", controllers.ConnectOnboard(p.Connect, p.Logger))
				r.Post("/status", controllers.ConnectStatus(p.Connect, p.Logger))
			})
		})
	})

	return r
}
