package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mercatolabs/mercato-backend/api/controllers"
	"github.com/mercatolabs/mercato-backend/api/routes"
	"github.com/mercatolabs/mercato-backend/internal/cart"
	"github.com/mercatolabs/mercato-backend/internal/checkout"
	"github.com/mercatolabs/mercato-backend/internal/coupons"
	"github.com/mercatolabs/mercato-backend/internal/notifications"
	"github.com/mercatolabs/mercato-backend/internal/orders"
	"github.com/mercatolabs/mercato-backend/internal/payments"
	"github.com/mercatolabs/mercato-backend/internal/shipping"
	"github.com/mercatolabs/mercato-backend/pkg/config"
	"github.com/mercatolabs/mercato-backend/pkg/db"
	"github.com/mercatolabs/mercato-backend/pkg/gateway"
	"github.com/mercatolabs/mercato-backend/pkg/gateway/squaregw"
	"github.com/mercatolabs/mercato-backend/pkg/gateway/stripegw"
	"github.com/mercatolabs/mercato-backend/pkg/logger"
	"github.com/mercatolabs/mercato-backend/pkg/metrics"
	"github.com/mercatolabs/mercato-backend/pkg/migrate"
	"github.com/mercatolabs/mercato-backend/pkg/outbox"
	"github.com/mercatolabs/mercato-backend/pkg/redis"
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

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	reg := prometheus.NewRegistry()
	checkoutMetrics := metrics.NewCheckoutMetrics(reg)

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	tokenValidator, err := cart.NewJWTGuestTokenValidator(cfg.GuestJWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create guest token validator", err)
		os.Exit(1)
	}
	cartRepo := cart.NewRepository(dbClient.DB())
	cartService, err := cart.NewService(cartRepo, tokenValidator, cfg.GuestJWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	couponRepo := coupons.NewRepository(dbClient.DB())
	evaluator, err := coupons.NewEvaluator(couponRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create coupon evaluator", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	ordersService, err := orders.NewService(dbClient, ordersRepo, outboxSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	shippingService := shipping.NewService(cfg.Checkout)

	checkoutService, err := checkout.NewService(
		dbClient,
		checkout.NewSessionRepository(dbClient.DB()),
		cartService,
		cartRepo,
		couponRepo,
		evaluator,
		ordersRepo,
		shippingService,
		outboxSvc,
		cfg.Checkout,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	registry := gateway.NewRegistry(cfg.Payments.DefaultGatewayID)
	stripeClient, err := stripegw.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe gateway", err)
		os.Exit(1)
	}
	registry.Register(stripeClient)
	squareClient, err := squaregw.NewClient(context.Background(), cfg.Square, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create square gateway", err)
		os.Exit(1)
	}
	registry.Register(squareClient)

	paymentsService, err := payments.NewService(
		dbClient,
		payments.NewAttemptRepository(dbClient.DB()),
		ordersRepo,
		registry,
		redisClient,
		outboxSvc,
		checkoutMetrics,
		logg,
		cfg.Payments,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:   cfg,
			Logger:   logg,
			Redis:    redisClient,
			Gatherer: reg,
			Pingers: map[string]controllers.Pinger{
				"db":    dbClient,
				"redis": redisClient,
			},
			Checkout:      checkoutService,
			Cart:          cartService,
			Shipping:      shippingService,
			Orders:        ordersService,
			Payments:      paymentsService,
			Notifications: notificationsService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
