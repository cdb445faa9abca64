// Package worker drives time-based round lifecycle transitions and
// settlement. Rounds move UPCOMING→ACTIVE→ENDED on their configured clock;
// ended rounds are settled through the state machine, with caller-driven
// retries and exponential backoff on collaborator failures.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/launchpad-settlement/internal/amount"
	"github.com/launchpad-settlement/internal/logging"
	"github.com/launchpad-settlement/internal/models"
	"github.com/launchpad-settlement/internal/retry"
	"github.com/launchpad-settlement/internal/settlement"
	"github.com/launchpad-settlement/internal/types"
)

// RoundStore lists and transitions rounds by status
type RoundStore interface {
	ListByStatus(ctx context.Context, status types.RoundStatus, limit int) ([]*models.Round, error)
	TransitionStatus(ctx context.Context, id string, from, to types.RoundStatus) error
}

// ContributionStore reads contributions for archival
type ContributionStore interface {
	ListByRound(ctx context.Context, roundID string) ([]*models.Contribution, error)
}

// Settler runs settlement for a round
type Settler interface {
	Finalize(ctx context.Context, roundID, caller string, params settlement.FinalizeParams) (*settlement.FinalizeResult, error)
	FinalizeFailed(ctx context.Context, roundID, caller, reason string) error
}

// Archiver batch-writes settled contributions to the analytics store
type Archiver interface {
	ArchiveContributions(ctx context.Context, contributions []*models.Contribution) error
}

const listBatchSize = 100

// LifecycleWorker polls for due lifecycle transitions and drives settlement
type LifecycleWorker struct {
	rounds        RoundStore
	contributions ContributionStore
	settler       Settler
	archiver      Archiver // optional

	finalizer       string
	pollInterval    time.Duration
	finalizeRetries int

	running bool
	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// LifecycleWorkerConfig holds configuration for the lifecycle worker
type LifecycleWorkerConfig struct {
	Rounds        RoundStore
	Contributions ContributionStore
	Settler       Settler
	Archiver      Archiver // nil disables archival

	Finalizer       string // finalizer identity the worker settles as
	PollInterval    time.Duration
	FinalizeRetries int
}

// NewLifecycleWorker creates a new lifecycle worker
func NewLifecycleWorker(cfg *LifecycleWorkerConfig) (*LifecycleWorker, error) {
	if cfg.Rounds == nil {
		return nil, fmt.Errorf("round store cannot be nil")
	}
	if cfg.Contributions == nil {
		return nil, fmt.Errorf("contribution store cannot be nil")
	}
	if cfg.Settler == nil {
		return nil, fmt.Errorf("settler cannot be nil")
	}
	if cfg.Finalizer == "" {
		return nil, fmt.Errorf("finalizer cannot be empty")
	}

	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 15 * time.Second
	}
	finalizeRetries := cfg.FinalizeRetries
	if finalizeRetries == 0 {
		finalizeRetries = 5
	}

	return &LifecycleWorker{
		rounds:          cfg.Rounds,
		contributions:   cfg.Contributions,
		settler:         cfg.Settler,
		archiver:        cfg.Archiver,
		finalizer:       cfg.Finalizer,
		pollInterval:    pollInterval,
		finalizeRetries: finalizeRetries,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}, nil
}

// Start begins the polling loop
func (w *LifecycleWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("lifecycle worker already running")
	}
	w.running = true
	w.mu.Unlock()

	go w.run(ctx)
	return nil
}

// Stop stops the worker and waits for the current cycle to finish
func (w *LifecycleWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
}

func (w *LifecycleWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	logger := logging.FromContext(ctx)
	logger.WithField("pollInterval", w.pollInterval).Info("Lifecycle worker started")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.cycle(ctx)
		case <-w.stopCh:
			logger.Info("Lifecycle worker stopped")
			return
		case <-ctx.Done():
			logger.Info("Lifecycle worker context cancelled")
			return
		}
	}
}

// cycle runs one poll: clock transitions first, then settlement work.
func (w *LifecycleWorker) cycle(ctx context.Context) {
	now := time.Now()
	w.activateDue(ctx, now)
	w.endDue(ctx, now)
	w.settleEnded(ctx)
	w.resumeFinalizing(ctx)
}

func (w *LifecycleWorker) activateDue(ctx context.Context, now time.Time) {
	logger := logging.FromContext(ctx)

	rounds, err := w.rounds.ListByStatus(ctx, types.RoundUpcoming, listBatchSize)
	if err != nil {
		logger.WithError(err).Error("Failed to list upcoming rounds")
		return
	}
	for _, round := range rounds {
		if now.Before(round.StartTime) {
			continue
		}
		if err := w.rounds.TransitionStatus(ctx, round.ID, types.RoundUpcoming, types.RoundActive); err != nil {
			logger.WithError(err).WithField("roundId", round.ID).Error("Failed to activate round")
			continue
		}
		logger.WithField("roundId", round.ID).Info("Round activated")
	}
}

func (w *LifecycleWorker) endDue(ctx context.Context, now time.Time) {
	logger := logging.FromContext(ctx)

	rounds, err := w.rounds.ListByStatus(ctx, types.RoundActive, listBatchSize)
	if err != nil {
		logger.WithError(err).Error("Failed to list active rounds")
		return
	}
	for _, round := range rounds {
		if now.Before(round.EndTime) {
			continue
		}
		if err := w.rounds.TransitionStatus(ctx, round.ID, types.RoundActive, types.RoundEnded); err != nil {
			logger.WithError(err).WithField("roundId", round.ID).Error("Failed to end round")
			continue
		}
		logger.WithField("roundId", round.ID).Info("Round ended")
	}
}

// settleEnded decides success vs failure for ended rounds. A round below its
// softcap fails immediately; everything else goes through finalize.
func (w *LifecycleWorker) settleEnded(ctx context.Context) {
	logger := logging.FromContext(ctx)

	rounds, err := w.rounds.ListByStatus(ctx, types.RoundEnded, listBatchSize)
	if err != nil {
		logger.WithError(err).Error("Failed to list ended rounds")
		return
	}
	for _, round := range rounds {
		metSoftcap, err := w.softcapMet(round)
		if err != nil {
			logger.WithError(err).WithField("roundId", round.ID).Error("Failed to evaluate softcap")
			continue
		}
		if !metSoftcap {
			if err := w.settler.FinalizeFailed(ctx, round.ID, w.finalizer, "softcap not met"); err != nil {
				logger.WithError(err).WithField("roundId", round.ID).Error("Failed to finalize round as failed")
			}
			continue
		}
		w.finalizeWithRetry(ctx, round.ID)
	}
}

// resumeFinalizing re-enters settlement for rounds stuck mid-phase, e.g.
// after a process restart or a collaborator outage.
func (w *LifecycleWorker) resumeFinalizing(ctx context.Context) {
	logger := logging.FromContext(ctx)

	rounds, err := w.rounds.ListByStatus(ctx, types.RoundFinalizing, listBatchSize)
	if err != nil {
		logger.WithError(err).Error("Failed to list finalizing rounds")
		return
	}
	for _, round := range rounds {
		w.finalizeWithRetry(ctx, round.ID)
	}
}

func (w *LifecycleWorker) softcapMet(round *models.Round) (bool, error) {
	raised, err := amount.Parse(round.TotalRaised)
	if err != nil {
		return false, err
	}
	softCap, err := amount.Parse(round.SoftCap)
	if err != nil {
		return false, err
	}
	return raised.Cmp(softCap) >= 0, nil
}

func (w *LifecycleWorker) finalizeWithRetry(ctx context.Context, roundID string) {
	logger := logging.FromContext(ctx).WithField("roundId", roundID)

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = w.finalizeRetries

	var result *settlement.FinalizeResult
	outcome := retry.WithExponentialBackoff(ctx, retryCfg, func(ctx context.Context, attempt int) error {
		var err error
		result, err = w.settler.Finalize(ctx, roundID, w.finalizer, settlement.FinalizeParams{})
		return err
	})

	if !outcome.Success {
		fields := map[string]interface{}{"attempts": outcome.Attempts}
		if result != nil {
			fields["failedPhase"] = result.FailedPhase
			fields["flags"] = result.Flags
		}
		logger.WithError(outcome.LastError).WithFields(fields).Error("Settlement did not complete, will resume next cycle")
		return
	}

	logger.WithField("status", result.Status).Info("Settlement completed")
	w.archive(ctx, roundID)
}

// archive copies the settled round's contributions into the analytics store.
// Best effort: archival failure never affects settlement state.
func (w *LifecycleWorker) archive(ctx context.Context, roundID string) {
	if w.archiver == nil {
		return
	}
	logger := logging.FromContext(ctx).WithField("roundId", roundID)

	contributions, err := w.contributions.ListByRound(ctx, roundID)
	if err != nil {
		logger.WithError(err).Warn("Failed to load contributions for archival")
		return
	}
	if err := w.archiver.ArchiveContributions(ctx, contributions); err != nil {
		logger.WithError(err).Warn("Failed to archive contributions")
		return
	}
	logger.WithField("count", len(contributions)).Info("Contributions archived")
}
