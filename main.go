package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BLINK-sys/Printer-WEB-APIServer/config"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/api"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/auth"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/cache"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/catalog"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/database"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/events"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/license"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/logging"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/metrics"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/vault"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		MaxSizeMB:   cfg.LoggingConfig.MaxSizeMB,
		MaxBackups:  cfg.LoggingConfig.MaxBackups,
		Component:   "main",
	})
	logging.SetDefault(logger)
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	// Secrets from Vault override file and environment values
	if err := vault.LoadInto(ctx, cfg); err != nil {
		return err
	}

	store, closeStore, err := database.Open(ctx, cfg.DatabaseConfig)
	if err != nil {
		return err
	}
	defer closeStore()

	eventBus := events.NewEventBus()

	var metricsManager *metrics.Manager
	if cfg.MetricsConfig.Enabled {
		metricsManager = metrics.NewManager(store)
		metricsManager.Subscribe(eventBus)
	}

	// Refresh-token denylist: Redis when configured, in-process otherwise
	var denylist cache.Denylist = cache.NewLocalDenylist()
	if cfg.RedisConfig.Enabled {
		cacheService, err := cache.NewCacheService(cfg.RedisConfig)
		if err != nil {
			return err
		}
		defer cacheService.Close()
		denylist = cache.NewRedisDenylist(cacheService)
	}

	licenses := license.NewService(store, license.Config{
		TrialDurationDays:      cfg.LicenseConfig.TrialDurationDays,
		DefaultKeyDurationDays: cfg.LicenseConfig.DefaultKeyDurationDays,
		MaxBatchSize:           cfg.LicenseConfig.MaxBatchSize,
		AllowStackedActivation: cfg.LicenseConfig.AllowStackedActivation,
	}, license.WithPublisher(eventBus))

	authService, err := auth.NewService(store, licenses, auth.Config{
		JWTSecret:            cfg.AuthConfig.JWTSecret,
		Issuer:               cfg.AuthConfig.Issuer,
		AccessTokenDuration:  cfg.AuthConfig.AccessTokenDuration,
		RefreshTokenDuration: cfg.AuthConfig.RefreshTokenDuration,
		BcryptCost:           cfg.AuthConfig.BcryptCost,
		MinPasswordLength:    cfg.AuthConfig.MinPasswordLength,
	}, denylist, eventBus)
	if err != nil {
		return err
	}

	metricsPath := ""
	if cfg.MetricsConfig.Enabled {
		metricsPath = cfg.MetricsConfig.Path
	}
	server := api.NewServer(api.ServerConfig{
		Host:           cfg.ServerConfig.Host,
		Port:           cfg.ServerConfig.Port,
		ProductionMode: cfg.ServerConfig.ProductionMode,
		AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
		MetricsPath:    metricsPath,
	}, api.Services{
		Store:    store,
		EventBus: eventBus,
		Licenses: licenses,
		Auth:     authService,
		Catalog:  catalog.NewService(store, catalog.NewHTTPFetcher(), eventBus),
		Metrics:  metricsManager,
		Denylist: denylist,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
