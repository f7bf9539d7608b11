package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rebinmas/printserver/internal/api"
	"github.com/rebinmas/printserver/internal/api/handlers"
	"github.com/rebinmas/printserver/internal/api/middleware"
	"github.com/rebinmas/printserver/internal/config"
	"github.com/rebinmas/printserver/internal/core"
	"github.com/rebinmas/printserver/internal/db"
	"github.com/rebinmas/printserver/internal/docproc"
	"github.com/rebinmas/printserver/internal/files"
	"github.com/rebinmas/printserver/internal/logging"
	"github.com/rebinmas/printserver/internal/printer"
	"github.com/rebinmas/printserver/internal/webhook"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	logger.Info("starting printserver",
		slog.Int("port", cfg.Server.Port),
		slog.String("database", cfg.Database.Path),
	)

	if err := db.Init(db.Config{Path: cfg.Database.Path}); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	store, err := files.New(cfg.Storage.UploadDir, cfg.Storage.ProcessedDir)
	if err != nil {
		return fmt.Errorf("failed to initialize file storage: %w", err)
	}

	sender := webhook.NewSender(db.Webhooks, webhook.Config{
		RetryCount:  cfg.Webhooks.MaxRetries,
		RetryDelay:  cfg.Webhooks.RetryDelay,
		WorkerCount: cfg.Webhooks.WorkerCount,
		QueueSize:   cfg.Webhooks.QueueSize,
	}, logger)
	sender.Start()
	defer sender.Stop()

	printers := printer.NewManager(printer.Config{
		HealthCheckInterval: cfg.Printers.HealthCheckInterval,
		ConnectionTimeout:   cfg.Printers.ConnectionTimeout,
	}, db.Printers, store, sender, logger)
	if err := printers.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start printer manager: %w", err)
	}
	defer printers.Stop()

	historyStore := db.NewJobHistoryStore()
	registry := core.NewRegistry(core.RegistryConfig{
		HistoryCap:   cfg.History.Cap,
		HistoryGrace: cfg.History.Grace,
	}, sender, historyStore, logger)
	if err := registry.Restore(); err != nil {
		return fmt.Errorf("failed to restore job history: %w", err)
	}

	monitors := core.NewMonitorRunner(registry, printers, core.MonitorConfig{
		PollInterval: cfg.Monitor.PollInterval,
		FallbackStep: cfg.Monitor.FallbackStep,
	}, logger)
	defer monitors.Stop()

	processor := docproc.NewClient(cfg.Processor.URL, cfg.Processor.Timeout, store, logger)

	limits := core.Limits{
		MaxCopies:     cfg.Limits.MaxCopies,
		ScaleMin:      cfg.Limits.ScaleMin,
		ScaleMax:      cfg.Limits.ScaleMax,
		BrightnessMin: cfg.Limits.BrightnessMin,
		BrightnessMax: cfg.Limits.BrightnessMax,
		ContrastMin:   cfg.Limits.ContrastMin,
		ContrastMax:   cfg.Limits.ContrastMax,
	}

	gateway := core.NewGateway(
		registry,
		core.NewResolver(limits),
		store,
		printers,
		processor,
		printers,
		monitors,
		logger,
	)

	auth, err := middleware.NewAuthMiddleware(cfg.Security.JWTSecret, db.Users, db.Settings)
	if err != nil {
		return fmt.Errorf("failed to initialize auth: %w", err)
	}

	router := api.NewRouter(&api.Dependencies{
		Logger:   logger,
		Auth:     auth,
		Jobs:     handlers.NewJobHandler(gateway, registry),
		Printers: handlers.NewPrinterHandler(printers),
		Files:    handlers.NewFileHandler(store, cfg.Storage.MaxUploadMB),
		Webhooks: handlers.NewWebhookHandler(db.Webhooks),
		Settings: handlers.NewSettingsHandler(db.Settings, printers, limits),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	logger.Info("printserver is running", slog.String("address", srv.Addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", slog.Any("error", err))
		return err
	}

	logger.Info("shutdown complete")
	return nil
}
