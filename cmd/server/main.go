// Package main is the entry point for the application.
// It initializes all dependencies, sets up the HTTP server,
// starts the reconciliation jobs and shuts everything down on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tapdeal/internal/config"
	"tapdeal/internal/handlers"
	"tapdeal/internal/metrics"
	"tapdeal/internal/repositories"
	"tapdeal/internal/repositories/cache"
	"tapdeal/internal/repositories/memory"
	"tapdeal/internal/routes"
	"tapdeal/internal/services/analytics"
	"tapdeal/internal/services/bill"
	"tapdeal/internal/services/gateway"
	"tapdeal/internal/services/order"
	"tapdeal/internal/services/partner"
	"tapdeal/internal/services/qr"
	"tapdeal/internal/services/reconcile"
	"tapdeal/internal/services/webhook"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	partnerCacheTTL = 5 * time.Minute
	shutdownTimeout = 15 * time.Second
)

func main() {
	config.LoadEnv()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	config.InitLogger(cfg.LogLevel, cfg.IsProduction())

	// Rates and percentages are rendered as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *gorm.DB
	var store repositories.Store
	switch cfg.Database.Driver {
	case "memory":
		log.Warn().Msg("⚠️ using the in-memory store, data is lost on restart")
		store = memory.NewStore()
	default:
		db, err = repositories.InitDB(cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer repositories.Close(db)
		store = repositories.NewStore(db)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	collector := metrics.NewPrometheusCollector(registry)

	// Redis is optional: without it partner lookups are not cached and
	// webhook events are deduplicated by the database alone.
	var (
		cacheService *cache.CacheService
		partnerCache partner.Cache
		locker       webhook.Locker
		healthCache  handlers.HealthChecker
	)
	if cfg.Redis.Host != "" {
		client := cache.NewRedisClient(&cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cacheService = cache.NewCacheService(client, partnerCacheTTL)
		if err := cacheService.HealthCheck(ctx); err != nil {
			log.Warn().Err(err).Msg("⚠️ redis unavailable at startup")
		} else {
			log.Info().Msg("✅ Redis connected")
		}
		partnerCache, locker, healthCache = cacheService, cacheService, cacheService
		defer func() {
			if err := cacheService.Close(); err != nil {
				log.Warn().Err(err).Msg("⚠️ failed to close redis connection")
			}
		}()
	}

	gw, err := gateway.New(cfg.Gateway, collector)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure payment gateway")
	}

	partners := partner.NewService(store, partnerCache, cfg.Bill.MaxDiscountRate, collector)
	bills := bill.NewService(store, partners, qr.NewCodec(cfg.QRTokenSecret), bill.ConfigFrom(cfg), collector)
	stats := analytics.NewService(store)
	orders := order.NewService(store, bills, partners, stats, gw, order.ConfigFrom(cfg), collector)
	dispatcher := webhook.NewDispatcher(store, gw, orders, locker, collector)
	sweeper := reconcile.NewSweeper(store, gw, orders, bills, reconcile.ConfigFrom(cfg), collector)

	app := fiber.New(fiber.Config{
		AppName:      "tapdeal",
		ErrorHandler: handlers.ErrorHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH",
		AllowCredentials: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path} ${locals:requestid}\n",
	}))

	routes.SetupRoutes(app, routes.Dependencies{
		Store:      store,
		Cache:      healthCache,
		Gateway:    gw,
		Bills:      bills,
		Orders:     orders,
		Partners:   partners,
		Analytics:  stats,
		Dispatcher: dispatcher,
		JWTSecret:  cfg.JWTSecret,
		Gatherer:   registry,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	log.Info().
		Str("port", cfg.Port).
		Str("env", cfg.Env).
		Str("gateway", gw.Provider()).
		Msg("🚀 tapdeal listening")
	if err := app.Listen(":" + cfg.Port); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("server stopped")
	}

	stop()
	wg.Wait()
}
