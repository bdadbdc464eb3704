package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"costing/internal/amqp"
	"costing/internal/backend"
	"costing/internal/cache"
	"costing/internal/cli"
	apphttp "costing/internal/http"
	"costing/internal/log"
	"costing/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid finance backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize finance backend", log.FieldError, err, "backend", backendCfg.Type)
		os.Exit(1)
	}

	journal := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	// Publishing is optional; without AMQP saves are still journaled and
	// the worker picks them up on its sweep.
	var publisher services.Publisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("AMQP unavailable, saves will not be announced", log.FieldError, err)
		} else {
			publisher = amqpClient
		}
	}

	costingCfg := services.DefaultCostingConfig()
	costingCfg.CategoryTTL = cfg.CategoryCacheTTL
	costing := services.NewCostingService(result.API, journal, publisher, logger, costingCfg)
	console := services.NewConsoleService(result.API, logger)

	caches := cache.NewManager(logger.Logger)
	for _, c := range costing.Caches() {
		caches.Register(c)
	}
	caches.StartCleanup(10 * time.Minute)

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, costing, console, journal, logger)

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		caches.Stop()
		if amqpClient != nil {
			_ = amqpClient.Close()
		}
		if err := journal.Close(); err != nil {
			logger.Error("Failed to close journal", log.FieldError, err)
		}
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Failed to close finance backend", log.FieldError, err)
			}
		}
	})

	logger.Info("Starting costing server",
		"port", cfg.Port,
		"backend", backendCfg.Type,
		"amqp", publisher != nil,
		log.FieldOperation, log.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
