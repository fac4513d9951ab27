package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"obligation_manager/internal/api"
	"obligation_manager/internal/config"
	"obligation_manager/internal/processor"
	"obligation_manager/internal/repository"
	"obligation_manager/internal/repository/memory"
	"obligation_manager/internal/repository/sqlite"
	"obligation_manager/internal/scheduler"
	"obligation_manager/internal/service"
	"obligation_manager/pkg/crypto"
	"obligation_manager/pkg/metrics"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const (
	appName = "obligation_manager"
)

func main() {
	logger := setupLogger()
	logger.Info("Starting application",
		slog.String("name", appName))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	metricsCollector := metrics.NewMetricsCollector(logger)
	signer := crypto.NewSigner(cfg.SigningSecret, logger)

	obligationRepo, txRepo, closeStorage, err := setupStorage(cfg, logger)
	if err != nil {
		logger.Error("Failed to open storage", slog.String("error", err.Error()))
		os.Exit(1)
	}

	notificationService := setupNotificationService(logger)
	proc := processor.NewObligationProcessor(obligationRepo, txRepo, metricsCollector, notificationService, logger)
	apiHandler := api.NewAPIHandler(proc, metricsCollector, signer, logger)

	processingScheduler := scheduler.New(proc, cfg.ProcessCron, logger)
	if err := processingScheduler.Start(); err != nil {
		logger.Error("Failed to start scheduler", slog.String("error", err.Error()))
		os.Exit(1)
	}

	metricsServer := metricsCollector.StartMetricsServer(cfg.MetricsAddr)
	httpServer := startHTTPServer(cfg.HTTPAddr, apiHandler, logger)

	waitForShutdown(logger, httpServer, metricsServer, processingScheduler, notificationService, closeStorage)
	logger.Info("Application shutdown complete")
}

func setupLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

func setupStorage(cfg *config.Config, logger *slog.Logger) (repository.ObligationRepository, repository.TransactionRepository, func() error, error) {
	switch cfg.StorageDriver {
	case "sqlite":
		store, err := sqlite.Open(cfg.SQLitePath, 5*time.Second, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return store.Obligations(), store.Transactions(), store.Close, nil
	case "memory":
		return memory.NewObligationRepository(), memory.NewTransactionRepository(), func() error { return nil }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown storage driver: %s", cfg.StorageDriver)
	}
}

func setupNotificationService(logger *slog.Logger) *service.NotificationService {
	emailService := &service.MockEmailService{}
	smsService := &service.MockSMSService{}
	slackService := &service.MockSlackService{}

	return service.NewNotificationService(
		emailService,
		smsService,
		slackService,
		3,
		logger,
	)
}

func startHTTPServer(addr string, apiHandler *api.APIHandler, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	apiHandler.RegisterRoutes(mux)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"name": "%s", "status": "ok"}`, appName)
	})

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	return server
}

func waitForShutdown(
	logger *slog.Logger,
	httpServer *http.Server,
	metricsServer *http.Server,
	processingScheduler *scheduler.Scheduler,
	notificationService *service.NotificationService,
	closeStorage func() error,
) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := processingScheduler.Stop(ctx); err != nil {
		logger.Error("Scheduler shutdown failed", slog.String("error", err.Error()))
	}

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}

	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
	}

	if err := notificationService.Shutdown(ctx); err != nil {
		logger.Error("Notification service shutdown failed", slog.String("error", err.Error()))
	}

	if err := closeStorage(); err != nil {
		logger.Error("Storage shutdown failed", slog.String("error", err.Error()))
	}
}
