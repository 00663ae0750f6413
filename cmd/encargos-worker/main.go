package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"encargos/internal/backend"
	"encargos/internal/cli"
	"encargos/internal/config"
	applog "encargos/internal/log"
	"encargos/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig((*config.Config).Validate)
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentWorker)

	logger.Info("Starting encargos-worker")

	// The worker reads what the server wrote, so it needs the shared database.
	if backend.BackendType(cfg.DataBackend) != backend.SQLiteBackend {
		logger.Error("The worker requires DATA_BACKEND=sqlite", "backend", cfg.DataBackend)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, nil)

	res := cli.InitBackend(ctx, logger.Logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	exporter, err := backend.CreateExporter(ctx, bcfg, logger.WithComponent(applog.ComponentSheets).Logger)
	if err != nil {
		logger.Error("Failed to initialize ledger exporter", "error", err)
		os.Exit(1)
	}

	ledgerWorker := worker.NewLedgerWorker(res.Store, exporter, cfg.SyncBatchSize)

	// Catch up on anything missed while the worker was down.
	logger.Info("Performing startup sync check...")
	if err := ledgerWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if res.Events != nil {
		g.Go(func() error {
			err := res.Events.ConsumeLedgerEvents(gctx, ledgerWorker.HandleEvent)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("AMQP disabled, relying on periodic sync only")
	}

	g.Go(func() error {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				synced, failed, err := ledgerWorker.SweepBatch(gctx)
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Periodic sync failed", "error", err)
					continue
				}
				if synced > 0 || failed > 0 {
					logger.Info("Periodic sync completed", "synced", synced, "errors", failed)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		_ = res.Cleanup()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
