package main

import (
	"context"
	"errors"
	"os"
	"time"

	"feedesk/internal/cli"
	applog "feedesk/internal/log"
	"feedesk/internal/sheets"
	gsheet "feedesk/internal/sheets/google"
	memsheet "feedesk/internal/sheets/memory"
	"feedesk/internal/worker"
)

// catchUpWindow bounds the startup export of payments that may have been
// missed while the worker was down.
const catchUpWindow = 24 * time.Hour

func main() {
	cfg := cli.LoadConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)
	logger.Info("Starting feedesk-worker")
	cli.MustValidate(logger, cfg.ValidateWorker)

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	be, err := cli.OpenBackend(startCtx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if be.AMQP == nil {
		logger.Error("AMQP broker unreachable, nothing to consume", "url_set", cfg.AMQPURL != "")
		_ = be.Cleanup()
		os.Exit(1)
	}

	var writer sheets.LedgerWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(startCtx, gsheet.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			SheetName:          cfg.GoogleSheetName,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			_ = be.Cleanup()
			os.Exit(1)
		}
		if err := client.EnsureHeader(startCtx); err != nil {
			logger.Warn("Failed to write sheet header", "error", err)
		}
		writer = client
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	} else {
		writer = memsheet.New()
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, exporting to memory")
	}

	exporter := worker.NewExportWorker(be.Store, writer)

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(context.Context) {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	})

	if _, err := exporter.ExportSince(ctx, time.Now().Add(-catchUpWindow)); err != nil {
		logger.Error("Startup export failed", "error", err)
	}

	go func() {
		err := be.AMQP.ConsumePaymentChanges(ctx, exporter.HandlePaymentChange)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
			_ = be.Cleanup()
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
