package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"encargos/internal/auth"
	"encargos/internal/cache"
	"encargos/internal/cli"
	"encargos/internal/config"
	"encargos/internal/exchange"
	apphttp "encargos/internal/http"
	applog "encargos/internal/log"
	"encargos/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig((*config.Config).ValidateServer)
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentApp)

	res := cli.InitBackend(context.Background(), logger.Logger, cfg)

	// A nil *amqp.Client must not reach the services as a non-nil interface.
	var publisher services.EventPublisher
	if res.Events != nil {
		publisher = res.Events
	}

	statsSvc := services.NewStatsService(res.Store, res.Store)
	tokens := auth.NewTokenManager(cfg.SessionSecret, cfg.SessionTTL)
	svc := apphttp.Services{
		Orders:   services.NewOrderService(res.Store, res.Store, publisher, statsSvc),
		Payments: services.NewPaymentService(res.Store, res.Store, publisher, statsSvc),
		Notes:    services.NewNoteService(res.Store),
		Stats:    statsSvc,
		Auth:     services.NewAuthService(res.Store, tokens, bcrypt.DefaultCost),
	}

	caches := cache.NewManager(logger.WithComponent(applog.ComponentCache).Logger)
	caches.Register(statsSvc.Cache())
	caches.StartCleanup(time.Minute)

	background, stopBackground := context.WithCancel(context.Background())

	poller := exchange.NewPoller(exchange.NewClient(cfg.ExchangeRateURL, nil), cfg.ExchangeRateInterval)
	go poller.Run(background)

	var reconciler *services.ReconcileProcessor
	if cfg.ReconcileInterval > 0 {
		reconciler = services.NewReconcileProcessor(res.Store, statsSvc, services.ReconcileProcessorConfig{
			Interval:  cfg.ReconcileInterval,
			BatchSize: cfg.ReconcileBatchSize,
		})
		if err := reconciler.Start(background); err != nil {
			logger.Error("Failed to start reconcile processor", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("Status reconciliation disabled")
	}

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:          ":" + cfg.Port,
		Logger:        logger,
		Services:      svc,
		Rates:         poller,
		Store:         res.Store,
		SecureCookies: cfg.SecureCookies,
	})
	if err != nil {
		logger.Error("Failed to create HTTP server", "error", err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		stopBackground()
		if reconciler != nil {
			if err := reconciler.Stop(ctx); err != nil {
				logger.Warn("Reconcile processor stop", "error", err)
			}
		}
		caches.Stop()
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	})

	logger.Info("Starting encargos server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"events", res.Events != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
