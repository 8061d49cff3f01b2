package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sentinai/netguard/internal/analytics"
	"github.com/sentinai/netguard/internal/api"
	"github.com/sentinai/netguard/internal/auth"
	"github.com/sentinai/netguard/internal/collector"
	"github.com/sentinai/netguard/internal/config"
	"github.com/sentinai/netguard/internal/eventbus"
	"github.com/sentinai/netguard/internal/incidents"
	"github.com/sentinai/netguard/internal/logging"
	"github.com/sentinai/netguard/internal/metrics"
	"github.com/sentinai/netguard/internal/reporting"
	"github.com/sentinai/netguard/internal/server"
	"github.com/sentinai/netguard/internal/storage"
	"log/slog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging, "netguard")
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting NetGuard")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Local fallback cache is always available; the remote store may not be.
	local := storage.NewLocalStore(cfg.Storage.CachePath, cfg.Storage.MaxHistoryLimit, logger)

	var remote storage.RemoteStore
	mongoStore, err := storage.NewMongoStore(ctx, cfg.Storage.MongoURI, cfg.Storage.Database,
		cfg.Storage.Collection, cfg.Storage.ProbeTimeout, logger)
	if err != nil {
		logger.Warn("mongo client unavailable, running on local cache only", "error", err)
	} else {
		remote = mongoStore
		defer mongoStore.Close(context.Background())
	}

	telemetryMetrics, err := metrics.New()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}

	gateway := storage.NewGateway(local, remote, storage.GatewayConfig{
		ProbeTimeout:     cfg.Storage.ProbeTimeout,
		ReconnectTimeout: cfg.Storage.ReconnectTimeout,
	}, logger, telemetryMetrics)
	logger.Info("persistence gateway ready", "mode", string(gateway.Mode()))

	reconciler := storage.NewReconciler(gateway, cfg.Storage.SyncWindow, logger)

	userStore := auth.NewUserStore(cfg.Auth.UsersPath, logger)
	authService := auth.NewService(userStore, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, logger)
	authService.EnsureAdmin()
	logger.Info("auth configured", "jwt_secret_set", cfg.Auth.JWTSecret != "change-this-secret")

	bus, err := eventbus.New(cfg.Bus, logger)
	if err != nil {
		logger.Error("failed to connect event bus", "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	incidentService := incidents.NewService(gateway, logger)
	statsService := analytics.NewService(gateway, cfg.Storage.MaxHistoryLimit, logger)
	reportService := reporting.NewService(gateway, cfg.Reporting.Dir, logger)

	handler := api.NewRouter(authService, incidentService, statsService, reportService,
		gateway, reconciler, bus, telemetryMetrics, cfg.Auth.JWTSecret, logger)

	if cfg.Collector.Enabled {
		logger.Info("starting auth-log collector", "host", cfg.Collector.Host)
		go collector.New(cfg.Collector, gateway, bus, logger).Run(ctx)
	}

	srv := server.New(cfg.Server, logger, handler)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("NetGuard started successfully", "port", cfg.Server.Port)

	waitForSignal(logger)

	logger.Info("shutting down")
	cancel()
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

func waitForSignal(logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	logger.Info("received signal", "signal", sig.String())
	signal.Stop(c)
	close(c)
}
