package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"budget/internal/backend"
	"budget/internal/config"
	"budget/internal/export/sheets"
	applog "budget/internal/log"
	"budget/internal/worker"
)

func main() {
	cfg := config.Load()

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Component: applog.ComponentWorker,
		JSON:      cfg.LogFormat == "json",
		Output:    os.Stdout,
	})
	applog.SetDefault(logger)

	logger.Info("Starting budget-worker")

	if err := errors.Join(cfg.Validate(), cfg.ValidateWorker()); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Failed to release backend", applog.FieldError, err)
		}
	}()
	if res.Publisher == nil {
		logger.Error("AMQP broker unreachable, the worker cannot consume ledger events", "url_set", cfg.AMQPURL != "")
		return
	}

	writer, err := sheets.NewGoogleWriter(ctx, cfg.GoogleSpreadsheetID, sheets.Credentials{
		JSON:            cfg.GoogleServiceAccountJSON,
		File:            cfg.GoogleServiceAccountFile,
		OAuthClientJSON: cfg.GoogleOAuthClientJSON,
		OAuthClientFile: cfg.GoogleOAuthClientFile,
		OAuthTokenJSON:  cfg.GoogleOAuthTokenJSON,
		OAuthTokenFile:  cfg.GoogleOAuthTokenFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		return
	}
	exportWorker := worker.NewExportWorker(res.Store, sheets.NewExporter(writer, cfg.GoogleExpensesSheet, cfg.GoogleSummarySheet))

	// Catch up on anything that changed while the worker was down.
	if err := exportWorker.ExportNow(ctx); err != nil {
		logger.Error("Startup export failed", applog.FieldError, err)
	}

	go func() {
		if err := res.Publisher.ConsumeLedgerEvents(ctx, exportWorker.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Event consumption failed", applog.FieldError, err)
		}
		cancel()
	}()
	periodicDone := make(chan struct{})
	go func() {
		defer close(periodicDone)
		exportWorker.RunPeriodic(ctx, cfg.ExportInterval)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}
	cancel()

	select {
	case <-periodicDone:
	case <-time.After(5 * time.Second):
		logger.Warn("Periodic export did not stop in time")
	}
	logger.Info("Worker shutdown complete", "last_version", exportWorker.LastVersion())
}
