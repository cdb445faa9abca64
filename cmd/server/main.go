// Package main provides the dashboard API server entry point for the
// launchpad settlement service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/launchpad-settlement/internal/api"
	"github.com/launchpad-settlement/internal/config"
	"github.com/launchpad-settlement/internal/logging"
	"github.com/launchpad-settlement/internal/referral"
	"github.com/launchpad-settlement/internal/storage"
)

func main() {
	fmt.Println("Launchpad Settlement API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	// The round cache is optional; the API serves from Postgres without it.
	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Warn("Failed to connect to Redis, continuing without round cache")
		redis = nil
	} else {
		defer redis.Close()
	}

	logger.Info("Database connections established")

	// Initialize repositories and services
	roundRepo := storage.NewRoundRepository(postgres)
	contributionRepo := storage.NewContributionRepository(postgres)
	referralRepo := storage.NewReferralRepository(postgres)
	referralSvc := referral.NewService(referralRepo, cfg.Settlement.FeePolicy.ReferralBps)

	// Initialize API server
	server := api.NewServer(
		&api.ServerConfig{
			Host:          cfg.Server.Host,
			Port:          cfg.Server.Port,
			RatePerSecond: cfg.Server.RatePerSecond,
			RateBurst:     cfg.Server.RateBurst,
		},
		roundRepo,
		contributionRepo,
		referralSvc,
		redis,
	)

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("Server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown error")
	}
	logger.Info("Server stopped")
}
