package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/username/commissions/src/config"
	"github.com/username/commissions/src/database"
	"github.com/username/commissions/src/handlers"
	"github.com/username/commissions/src/logger"
	"github.com/username/commissions/src/security"
	"github.com/username/commissions/src/services"
)

func newQuoteCache(ctx context.Context, cfg *config.AppConfig) services.QuoteCache {
	switch cfg.QuoteCacheBackend {
	case "none":
		logger.L.Info("Quote cache disabled")
		return services.NewNoopQuoteCache()
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.L.Warn("Redis unreachable at startup, quotes will be computed uncached until it recovers", "addr", cfg.RedisAddr, "error", err)
		}
		logger.L.Info("Quote cache using redis", "addr", cfg.RedisAddr, "ttl", cfg.QuoteCacheTTL)
		return services.NewRedisQuoteCache(rdb, services.WithQuoteTTL(cfg.QuoteCacheTTL))
	default:
		logger.L.Info("Quote cache in memory", "ttl", cfg.QuoteCacheTTL)
		return services.NewMemoryQuoteCache(cfg.QuoteCacheTTL)
	}
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Commission service starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.L.Info("Loading rate schedule...", "path", config.Cfg.RateSchedulePath)
	schedule, err := config.LoadRateSchedule(config.Cfg.RateSchedulePath)
	if err != nil {
		logger.L.Error("Failed to load rate schedule", "error", err)
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	defer database.DB.Close()
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing services and handlers...")
	quoteCache := newQuoteCache(ctx, config.Cfg)
	commissionService, err := services.NewCommissionService(schedule, database.DB, quoteCache, services.Options{
		BatchConcurrency: config.Cfg.BatchConcurrency,
		MaxBatchSize:     config.Cfg.MaxBatchSize,
		MaxSplitParts:    config.Cfg.MaxSplitParts,
	})
	if err != nil {
		logger.L.Error("Failed to build commission engine", "error", err)
		os.Exit(1)
	}
	if err := commissionService.ReloadPartnerRates(ctx); err != nil {
		logger.L.Error("Failed to load partner rates", "error", err)
		os.Exit(1)
	}
	commissionService.StartPartnerReloader(ctx, config.Cfg.PartnerReloadInterval)

	authService := security.NewAuthService(config.Cfg.JWTSecret)
	commissionHandler := handlers.NewCommissionHandler(commissionService, config.Cfg.MaxBodySizeBytes)
	partnerHandler := handlers.NewPartnerHandler(commissionService, config.Cfg.MaxBodySizeBytes)

	logger.L.Info("Configuring routes...")
	router := handlers.NewRouter(commissionHandler, partnerHandler, authService)

	logger.L.Info("Applying global middleware...")
	finalHandler := handlers.CORSMiddleware(config.Cfg.AllowedOrigins)(
		handlers.RateLimitMiddleware(config.Cfg.RateLimitRPS, config.Cfg.RateLimitBurst)(router))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.L.Info("Shutdown signal received, draining connections...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.L.Error("Graceful shutdown failed", "error", err)
		}
	}()

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	}
	logger.L.Info("Server stopped gracefully.")
}
