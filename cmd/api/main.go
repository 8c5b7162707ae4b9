package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rarewear/storefront-api/internal/handlers"
	"github.com/rarewear/storefront-api/internal/payments"
	"github.com/rarewear/storefront-api/internal/platform/auth"
	"github.com/rarewear/storefront-api/internal/platform/config"
	pfirestore "github.com/rarewear/storefront-api/internal/platform/firestore"
	"github.com/rarewear/storefront-api/internal/platform/jobs"
	"github.com/rarewear/storefront-api/internal/platform/observability"
	firestoreRepo "github.com/rarewear/storefront-api/internal/repositories/firestore"
	"github.com/rarewear/storefront-api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	var (
		orderEvents services.OrderEventPublisher
		stockEvents services.StockEventPublisher
	)
	if strings.TrimSpace(cfg.Events.Topic) != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()

		topic := pubsubClient.Topic(cfg.Events.Topic)
		defer topic.Stop()

		publisher, err := jobs.NewPubSubEventPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise event publisher", zap.Error(err))
		}
		orderEvents = publisher
		stockEvents = publisher
	} else {
		logger.Warn("events topic not configured; domain events disabled")
	}

	var verifier auth.TokenVerifier
	if strings.TrimSpace(cfg.Firebase.ProjectID) != "" {
		firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
		if err != nil {
			logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
		}
		verifier = firebaseVerifier
	} else {
		logger.Warn("firebase project not configured; authenticated routes will reject requests")
	}
	authenticator := auth.NewAuthenticator(verifier)

	productRepo, err := firestoreRepo.NewProductRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise product repository", zap.Error(err))
	}
	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	inventoryRepo, err := firestoreRepo.NewInventoryRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise inventory repository", zap.Error(err))
	}
	statsRepo, err := firestoreRepo.NewStatsRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise stats repository", zap.Error(err))
	}
	healthRepo, err := firestoreRepo.NewHealthRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise health repository", zap.Error(err))
	}

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: productRepo,
		Clock:    time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:              orderRepo,
		Products:            productRepo,
		Clock:               time.Now,
		TaxRateBasisPoints:  cfg.Checkout.TaxRateBasisPoints,
		OrderNumberAttempts: cfg.Checkout.OrderNumberAttempts,
		Events:              orderEvents,
		Logger:              zapEventLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	inventoryService, err := services.NewInventoryService(services.InventoryServiceDeps{
		Inventory: inventoryRepo,
		Clock:     time.Now,
		Events:    stockEvents,
		Logger:    zapEventLogger(logger.Named("inventory")),
	})
	if err != nil {
		logger.Fatal("failed to initialise inventory service", zap.Error(err))
	}

	adminService, err := services.NewAdminService(services.AdminServiceDeps{
		Stats:                   statsRepo,
		ExcludeCancelledRevenue: cfg.Checkout.RevenueExcludeCancelled,
	})
	if err != nil {
		logger.Fatal("failed to initialise admin service", zap.Error(err))
	}

	var stripeWebhook *payments.StripeWebhook
	if strings.TrimSpace(cfg.Stripe.WebhookSecret) != "" {
		stripeWebhook, err = payments.NewStripeWebhook(cfg.Stripe.WebhookSecret)
		if err != nil {
			logger.Fatal("failed to initialise stripe webhook", zap.Error(err))
		}
	} else {
		logger.Warn("stripe webhook secret not configured; payment callbacks disabled")
	}

	productHandlers := handlers.NewProductHandlers(catalogService)
	checkoutHandlers := handlers.NewCheckoutHandlers(orderService)
	orderHandlers := handlers.NewOrderHandlers(orderService)
	adminCatalogHandlers := handlers.NewAdminCatalogHandlers(catalogService, inventoryService)
	adminOrderHandlers := handlers.NewAdminOrderHandlers(orderService, inventoryService)
	dashboardHandlers := handlers.NewDashboardHandlers(adminService)
	webhookHandlers := handlers.NewWebhookHandlers(stripeWebhook, orderService, logger.Named("webhooks"))
	healthHandlers := handlers.NewHealthHandlers(healthRepo)

	requireAuth := authenticator.RequireAuth()
	requireAdmin := authenticator.RequireAdmin()

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceContextMiddleware(),
			chimiddleware.Recoverer,
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithCheckoutRoutes(func(r chi.Router) {
			r.Use(requireAuth)
			checkoutHandlers.Routes(r)
		}),
		handlers.WithMeRoutes(func(r chi.Router) {
			r.Use(requireAuth)
			orderHandlers.MeRoutes(r)
		}),
		handlers.WithOrderRoutes(func(r chi.Router) {
			r.Use(requireAuth)
			orderHandlers.Routes(r)
		}),
		handlers.WithAdminRoutes(func(r chi.Router) {
			r.Use(requireAdmin)
			adminCatalogHandlers.Routes(r)
			adminOrderHandlers.Routes(r)
			dashboardHandlers.Routes(r)
		}),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func zapEventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("domain event", zFields...)
	}
}
