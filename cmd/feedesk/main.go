package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"feedesk/internal/cache"
	"feedesk/internal/cli"
	"feedesk/internal/core"
	apphttp "feedesk/internal/http"
	"feedesk/internal/ledger"
	applog "feedesk/internal/log"
	"feedesk/internal/services"
)

func main() {
	cfg := cli.LoadConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentApp)
	cli.MustValidate(logger, cfg.Validate)

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	be, err := cli.OpenBackend(startCtx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	if cfg.SeedDemo {
		if err := ledger.SeedDemo(startCtx, be.Store, time.Now()); err != nil {
			logger.Error("Failed to seed demo data", "error", err)
			os.Exit(1)
		}
	}

	payments := services.NewPaymentService(be.Store, be.Store, core.NewIdentityGenerator(), cfg.PaymentMethod)
	receipts := services.NewReceiptService(be.Store, cfg.ReceiptCacheSize, cfg.ReceiptCacheTTL)
	roster := services.NewRosterService(be.Store)
	dashboard := services.NewAdminDashboard(be.Store, be.Feed, cfg.DashboardPaymentLimit)
	if err := dashboard.Start(startCtx); err != nil {
		logger.Error("Failed to start admin dashboard", "error", err)
		os.Exit(1)
	}

	caches := cache.NewManager()
	if c := receipts.Cleaner(); c != nil {
		caches.Register("receipts", c)
	}
	caches.StartCleanup(cfg.CacheCleanupInterval)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Store:     be.Store,
		Payments:  payments,
		Receipts:  receipts,
		Roster:    roster,
		Dashboard: dashboard,
		Profiles:  services.NewProfileService(be.Store),
		Ping:      be.Ping,
	}, apphttp.Options{
		Logger:           logger,
		PaymentRateLimit: cfg.RateLimitPerMin,
	})

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		dashboard.Stop()
		caches.Stop()
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	})

	logger.Info("Starting feedesk server", "port", cfg.Port, "backend", cfg.DataBackend, "amqp", be.AMQP != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
