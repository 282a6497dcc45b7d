package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/farmguard/internal/app"
	"github.com/BradenHooton/farmguard/internal/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	application, err := app.New(startCtx, cfg, logger)
	if err != nil {
		cancel()
		logger.Error("failed to initialize", slog.Any("error", err))
		os.Exit(1)
	}
	defer application.Close()

	if err := application.DB.Migrate(startCtx); err != nil {
		cancel()
		logger.Error("failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}

	// Bootstrap first admin user if configured
	if err := application.EnsureAdminUser(startCtx); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Background workers: alert delivery and the maintenance sweep
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	go application.Alerts.Run(workerCtx)
	go application.Cleanup.Start(workerCtx)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      application.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	workerCancel()
	application.Cleanup.Stop()

	logger.Info("server stopped gracefully")
}
