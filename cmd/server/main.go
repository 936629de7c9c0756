package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wasteportal-backend/internal/config"
	"wasteportal-backend/internal/database"
	"wasteportal-backend/internal/logging"
	"wasteportal-backend/internal/notify"
	"wasteportal-backend/internal/router"
	"wasteportal-backend/internal/storage"

	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	for _, w := range cfg.Warnings {
		logger.Warn("configuration", zap.String("warning", w))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Init(cfg, logger); err != nil {
		return err
	}

	store, err := storage.New(ctx, cfg)
	if err != nil {
		return err
	}
	notifier, err := notify.New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	app := router.New(router.Deps{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Notifier: notifier,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("port", cfg.HTTPPort), zap.String("storage", cfg.StorageDriver))
		errCh <- app.Listen(":" + cfg.HTTPPort)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
