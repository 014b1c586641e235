package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angelmondragon/bazaar-backend/api/routes"
	"github.com/angelmondragon/bazaar-backend/internal/auth"
	"github.com/angelmondragon/bazaar-backend/internal/cart"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	product "github.com/angelmondragon/bazaar-backend/internal/products"
	"github.com/angelmondragon/bazaar-backend/internal/reviews"
	"github.com/angelmondragon/bazaar-backend/internal/uploads"
	"github.com/angelmondragon/bazaar-backend/internal/users"
	"github.com/angelmondragon/bazaar-backend/internal/wishlist"
	"github.com/angelmondragon/bazaar-backend/pkg/auth/session"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/migrate"
	"github.com/angelmondragon/bazaar-backend/pkg/redis"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

const shutdownTimeout = 15 * time.Second

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
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	decimal.MarshalJSONWithoutQuotes = true

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	closeAll := func(ctx context.Context) {
		if err := multierr.Combine(redisClient.Close(), dbClient.Close()); err != nil {
			logg.Error(ctx, "error closing connections", err)
		}
	}

	handler, err := buildHandler(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		closeAll(context.Background())
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

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	case <-runCtx.Done():
		logg.Info(ctx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			exitCode = 1
		}
		cancel()
	}

	closeAll(ctx)
	logg.Info(ctx, "api server stopped")
	os.Exit(exitCode)
}

func buildHandler(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (http.Handler, error) {
	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := metrics.NewHTTPMetrics(registry)
	marketplaceMetrics := metrics.NewMarketplaceMetrics(registry)

	store, err := uploads.NewLocalStore(cfg.Uploads)
	if err != nil {
		return nil, err
	}

	conn := dbClient.DB()
	userRepo := users.NewRepository(conn)
	productRepo := product.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:              userRepo,
		SessionManager:        sessionManager,
		JWTConfig:             cfg.JWT,
		PasswordConfig:        cfg.Password,
		AllowPrivilegedSignup: cfg.FeatureFlags.AllowPrivilegedSignup,
	})
	if err != nil {
		return nil, err
	}

	userService, err := users.NewService(userRepo, sessionManager)
	if err != nil {
		return nil, err
	}

	productService, err := product.NewService(productRepo, store, userRepo, logg)
	if err != nil {
		return nil, err
	}

	cartService, err := cart.NewService(cart.NewRepository(conn), productRepo)
	if err != nil {
		return nil, err
	}

	wishlistService, err := wishlist.NewService(wishlist.NewRepository(conn), productRepo, cartService)
	if err != nil {
		return nil, err
	}

	pricing, err := orders.PricingFromConfig(cfg.Orders)
	if err != nil {
		return nil, err
	}
	orderService, err := orders.NewService(orders.ServiceParams{
		Tx:             dbClient,
		Orders:         orderRepo,
		Products:       productRepo,
		Users:          userRepo,
		Pricing:        pricing,
		NumberAttempts: cfg.Orders.NumberAttempts,
		Metrics:        marketplaceMetrics,
		Logger:         logg,
	})
	if err != nil {
		return nil, err
	}

	reviewService, err := reviews.NewService(reviews.ServiceParams{
		Tx:       dbClient,
		Reviews:  reviews.NewRepository(conn),
		Products: productRepo,
		Orders:   orderRepo,
		Metrics:  marketplaceMetrics,
	})
	if err != nil {
		return nil, err
	}

	return routes.NewRouter(cfg, logg, routes.Dependencies{
		DB:       dbClient,
		Cache:    redisClient,
		Sessions: sessionManager,
		Metrics:  httpMetrics,
		Uploads:  store,
		Auth:     authService,
		Users:    userService,
		Products: productService,
		Cart:     cartService,
		Wishlist: wishlistService,
		Orders:   orderService,
		Reviews:  reviewService,
	}), nil
}
