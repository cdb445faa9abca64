// Package main provides the settlement worker entry point for the launchpad
// settlement service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/launchpad-settlement/internal/adapter"
	"github.com/launchpad-settlement/internal/config"
	"github.com/launchpad-settlement/internal/escrow"
	"github.com/launchpad-settlement/internal/feesplit"
	"github.com/launchpad-settlement/internal/logging"
	"github.com/launchpad-settlement/internal/referral"
	"github.com/launchpad-settlement/internal/settlement"
	"github.com/launchpad-settlement/internal/storage"
	"github.com/launchpad-settlement/internal/worker"
)

func main() {
	fmt.Println("Launchpad Settlement Worker")
	log.Println("Worker starting...")

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

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	// ClickHouse archival is optional
	var clickhouse *storage.ClickHouseDB
	if cfg.Database.ClickHouse.Enabled {
		clickhouse, err = storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Warn("Failed to connect to ClickHouse, continuing without archival")
			clickhouse = nil
		} else {
			defer clickhouse.Close()
		}
	}

	logger.Info("Database connections established")

	// Initialize repositories
	roundRepo := storage.NewRoundRepository(postgres)
	contributionRepo := storage.NewContributionRepository(postgres)
	feeSplitRepo := storage.NewFeeSplitRepository(postgres)
	referralRepo := storage.NewReferralRepository(postgres)
	escrowRepo := storage.NewEscrowRepository(postgres)

	// Initialize on-chain collaborators
	logger.Info("Initializing chain collaborators...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	collaborators, err := adapter.NewEVMCollaborators(ctx, &cfg.Chain)
	cancel()
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize chain collaborators")
	}
	logger.WithFields(map[string]interface{}{
		"chain":  cfg.Chain.ID,
		"signer": collaborators.Signer().Hex(),
	}).Info("Chain collaborators initialized")

	// Initialize settlement services
	feeCalc, err := feesplit.NewCalculator(feeSplitRepo, cfg.Settlement.FeePolicy)
	if err != nil {
		logger.WithError(err).Fatal("Invalid fee policy")
	}
	referralSvc := referral.NewService(referralRepo, cfg.Settlement.FeePolicy.ReferralBps)
	escrowCoord := escrow.NewCoordinator(collaborators, escrowRepo)

	stateMachine := settlement.NewStateMachine(
		roundRepo,
		contributionRepo,
		redis,
		feeCalc,
		referralSvc,
		escrowCoord,
		collaborators,
		collaborators,
		collaborators,
		settlement.Config{
			Finalizer:          common.HexToAddress(cfg.Settlement.Finalizer),
			Signer:             collaborators.Signer(),
			TreasuryVault:      common.HexToAddress(cfg.Chain.TreasuryVault),
			ReferralPoolVault:  common.HexToAddress(cfg.Chain.ReferralPoolVault),
			StakingVault:       common.HexToAddress(cfg.Chain.StakingVault),
			BurnSink:           common.HexToAddress(cfg.Chain.BurnSink),
			VestingDistributor: common.HexToAddress(cfg.Chain.VestingDistributor),
		},
	)

	// Initialize lifecycle worker
	var archiver worker.Archiver
	if clickhouse != nil {
		if err := clickhouse.EnsureContributionArchive(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to ensure ClickHouse archive schema, continuing without archival")
		} else {
			archiver = clickhouse
		}
	}

	lifecycleWorker, err := worker.NewLifecycleWorker(&worker.LifecycleWorkerConfig{
		Rounds:          roundRepo,
		Contributions:   contributionRepo,
		Settler:         stateMachine,
		Archiver:        archiver,
		Finalizer:       cfg.Settlement.Finalizer,
		PollInterval:    cfg.Worker.PollInterval,
		FinalizeRetries: cfg.Worker.FinalizeRetries,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create lifecycle worker")
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	if err := lifecycleWorker.Start(workerCtx); err != nil {
		logger.WithError(err).Fatal("Failed to start lifecycle worker")
	}
	logger.Info("Lifecycle worker started")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.WithField("signal", sig.String()).Info("Shutdown signal received")

	lifecycleWorker.Stop()
	workerCancel()

	logger.Info("Worker stopped")
}
