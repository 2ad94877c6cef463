package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"findash/internal/amqp"
	"findash/internal/backend"
	"findash/internal/cache"
	"findash/internal/catalog"
	"findash/internal/cli"
	"findash/internal/config"
	apphttp "findash/internal/http"
	"findash/internal/log"
	"findash/internal/metrics"
	"findash/internal/middleware/ratelimit"
	"findash/internal/services"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentApp, (*config.Config).Validate)

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		cli.Fatal(logger, "Failed to load catalog", err, "path", cfg.CatalogFile)
	}

	ctx, cancel := cli.SignalContext()
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	source, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).Open(ctx, backendCfg)
	if err != nil {
		cli.Fatal(logger, "Failed to open data backend", err, log.FieldBackend, cfg.DataBackend)
	}
	defer source.Close()

	m := metrics.New()
	dashboard, err := services.NewDashboardService(source.Reader, cat, m, cfg.FetchTimeout)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize dashboard service", err)
	}

	// Sources with an in-process cache get swept in the background.
	janitor := cache.NewJanitor()
	if c, ok := source.Reader.(cache.Cleaner); ok && cfg.SourceCacheTTL > 0 {
		janitor.Register(c)
		janitor.Start(ctx, cfg.SourceCacheTTL)
	}

	opts := apphttp.Options{
		Dashboard: dashboard,
		Metrics:   m,
		Logger:    logger,
		Checks:    map[string]apphttp.ReadinessCheck{},
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
	}
	if source.Staging != nil {
		opts.Checks["staging"] = source.Staging.Ping
	}
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, imports disabled", log.FieldError, err)
		} else {
			defer client.Close()
			opts.Publisher = client
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled, POST /api/imports will return 503")
	}

	srv, err := apphttp.NewServer(net.JoinHostPort("", cfg.Port), opts)
	if err != nil {
		cli.Fatal(logger, "Failed to create server", err)
	}
	srv.MaxHeaderBytes = 1 << 16

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting findash server", "port", cfg.Port, log.FieldBackend, cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			cli.Fatal(logger, "Server error", err, "port", cfg.Port)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", log.FieldError, err)
	}
	cancel()
	janitor.Wait()
	logger.Info("Server stopped gracefully")
}
