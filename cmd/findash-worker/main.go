package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"findash/internal/amqp"
	"findash/internal/backend"
	"findash/internal/cli"
	"findash/internal/config"
	"findash/internal/log"
	"findash/internal/metrics"
	"findash/internal/services"
	"findash/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentWorker, (*config.Config).ValidateWorker)
	logger.Info("Starting findash-worker")

	ctx, cancel := cli.SignalContext()
	defer cancel()

	staging := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer staging.Close()

	upstreamCfg, err := backend.ImportFromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid import backend configuration", err)
	}
	upstream, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).Open(ctx, upstreamCfg)
	if err != nil {
		cli.Fatal(logger, "Failed to open import source", err, log.FieldBackend, cfg.ImportSourceBackend)
	}
	defer upstream.Close()

	m := metrics.New()
	importer := services.NewImportService(upstream.Reader, staging, cfg.ImportSourceBackend, m)
	importWorker := worker.NewImportWorker(importer, cfg.ImportSchedule)

	var metricsSrv *http.Server
	if cfg.WorkerMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", m.Handler())
		metricsSrv = &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server error", log.FieldError, err)
			}
		}()
		logger.Info("Serving worker metrics", "addr", cfg.WorkerMetricsAddr)
	}

	// Stage once at startup so the dashboard has data before the first tick.
	if err := importWorker.RunOnce(ctx, services.TriggerStartup); err != nil {
		logger.Error("Startup import failed", log.FieldError, err)
		// Don't exit - the schedule and queue will retry
	}

	if err := importWorker.Start(ctx); err != nil {
		cli.Fatal(logger, "Failed to start import schedule", err)
	}

	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			cli.Fatal(logger, "Failed to initialize AMQP client", err)
		}
		defer client.Close()

		go func() {
			if err := client.ConsumeImports(ctx, importWorker.HandleImportMessage); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err)
				cancel()
			}
		}()
		logger.Info("Consuming import requests", "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled, imports run on schedule only")
	}

	<-ctx.Done()
	logger.Info("Shutting down worker...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := importWorker.Stop(shutdownCtx); err != nil {
		logger.Warn("Shutdown timeout reached", log.FieldError, err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	logger.Info("Worker shutdown complete")
}
