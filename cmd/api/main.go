package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/homeplate-app/homeplate-backend/api/routes"
	checkoutsvc "github.com/homeplate-app/homeplate-backend/internal/checkout"
	"github.com/homeplate-app/homeplate-backend/internal/chefs"
	"github.com/homeplate-app/homeplate-backend/internal/connect"
	"github.com/homeplate-app/homeplate-backend/internal/orders"
	"github.com/homeplate-app/homeplate-backend/internal/payments"
	stripewebhook "github.com/homeplate-app/homeplate-backend/internal/webhooks/stripe"
	"github.com/homeplate-app/homeplate-backend/pkg/config"
	"github.com/homeplate-app/homeplate-backend/pkg/db"
	"github.com/homeplate-app/homeplate-backend/pkg/logger"
	"github.com/homeplate-app/homeplate-backend/pkg/migrate"
	"github.com/homeplate-app/homeplate-backend/pkg/redis"
	pkgstripe "github.com/homeplate-app/homeplate-backend/pkg/stripe"
)

const webhookGuardTTL = 24 * time.Hour

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

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to initialize stripe", err)
		os.Exit(1)
	}
	gateway := payments.NewGateway(stripeClient)

	ordersRepo := orders.NewRepository(dbClient.DB())
	chefsRepo := chefs.NewRepository(dbClient.DB())

	checkoutService, err := checkoutsvc.NewService(checkoutsvc.ServiceParams{
		Logger:   logg,
		Orders:   ordersRepo,
		Dishes:   checkoutsvc.NewDishRepository(dbClient.DB()),
		Gateway:  gateway,
		Checkout: cfg.Checkout,
		Stripe:   cfg.Stripe,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Logger:     logg,
		Repo:       ordersRepo,
		Chefs:      chefsRepo,
		Gateway:    gateway,
		FeePercent: cfg.Stripe.FeePercent,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	connectService, err := connect.NewService(connect.ServiceParams{
		Logger:  logg,
		Chefs:   chefsRepo,
		Gateway: gateway,
		Stripe:  cfg.Stripe,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create connect service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Logger: logg,
		Orders: ordersRepo,
		Chefs:  chefsRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, webhookGuardTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

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
		Handler: routes.NewRouter(routes.RouterParams{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Checkout:       checkoutService,
			Orders:         orderService,
			Connect:        connectService,
			StripeClient:   stripeClient,
			WebhookService: webhookService,
			WebhookGuard:   webhookGuard,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
