package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"budget/internal/backend"
	"budget/internal/cache"
	"budget/internal/config"
	apphttp "budget/internal/http"
	applog "budget/internal/log"
	"budget/internal/rates"
	"budget/internal/services"
)

func main() {
	cfg := config.Load()

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Component: applog.ComponentApp,
		JSON:      cfg.LogFormat == "json",
		Output:    os.Stdout,
	})
	applog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
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

	refresher := rates.NewRefresher(
		rates.NewHTTPSource(cfg.RatesURL, cfg.RatesTimeout),
		cfg.RatesBase,
		rates.WithTTL(cfg.RatesTTL),
	)
	svc := services.NewBudgetService(res.Store, refresher, res.EventPublisher())
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("Failed to close service", applog.FieldError, err)
		}
	}()
	if err := svc.Open(ctx); err != nil {
		logger.Error("Failed to load ledger", applog.FieldError, err)
		os.Exit(1)
	}

	// Warm the table in the background. A failure keeps the persisted one.
	go func() {
		if _, _, err := svc.RefreshRates(ctx, false); err != nil {
			logger.Error("Initial rates refresh could not be persisted", applog.FieldError, err)
		}
	}()
	refresher.Start(cfg.RatesRefreshInterval, func(ctx context.Context, r rates.Result) {
		if _, err := svc.InstallRates(ctx, r.Table); err != nil {
			logger.Error("Scheduled rates refresh could not be persisted", applog.FieldError, err)
		}
	})
	defer refresher.Stop()

	caches := cache.NewManager()
	caches.StartCleanup(10 * time.Minute)
	defer caches.Stop()

	srv := apphttp.NewServer(svc, apphttp.Options{
		Addr:               ":" + cfg.Port,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RateLimitBurst:     cfg.RateLimitBurst,
		Caches:             caches,
		Ready:              res.Ready,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		cancel()
	}()

	logger.Info("Starting budget server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		applog.FieldRatesBase, cfg.RatesBase,
		"amqp_enabled", res.Publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		cancel()
		return
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
