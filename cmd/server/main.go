package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tripgenie/tripgenie-backend/internal/api"
	"github.com/tripgenie/tripgenie-backend/internal/config"
	"github.com/tripgenie/tripgenie-backend/internal/logging"
	"github.com/tripgenie/tripgenie-backend/internal/repository/factory"
	"github.com/tripgenie/tripgenie-backend/internal/services"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Session store
	store, err := factory.NewStore(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open session store")
	}

	// Initialize services
	svc, err := services.NewServices(cfg, store, services.Options{}, logger)
	if err != nil {
		_ = store.Close()
		logger.WithError(err).Fatal("Failed to initialize services")
	}
	svc.Start(ctx)

	app := api.NewApp(svc, cfg.Server, logger)

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.WithError(err).Warn("HTTP shutdown did not finish cleanly")
		}
	}()

	logger.WithField("address", cfg.Server.Address()).Info("TripGenie backend starting")
	if err := app.Listen(cfg.Server.Address()); err != nil {
		logger.WithError(err).Error("Server stopped")
	}

	if err := svc.Close(); err != nil {
		logger.WithError(err).Error("Failed to release resources")
		os.Exit(1)
	}
}
