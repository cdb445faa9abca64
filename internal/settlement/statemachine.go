// Package settlement implements the round settlement state machine: the
// forward-only status lifecycle, the finalize snapshot, and the five ordered,
// independently idempotent settlement phases. Each phase is gated by a
// write-once-true flag so a resumed finalize skips everything already done.
package settlement

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/launchpad-settlement/internal/adapter"
	"github.com/launchpad-settlement/internal/amount"
	apperrors "github.com/launchpad-settlement/internal/errors"
	"github.com/launchpad-settlement/internal/escrow"
	"github.com/launchpad-settlement/internal/feesplit"
	"github.com/launchpad-settlement/internal/logging"
	"github.com/launchpad-settlement/internal/merkle"
	"github.com/launchpad-settlement/internal/models"
	"github.com/launchpad-settlement/internal/referral"
	"github.com/launchpad-settlement/internal/storage"
	"github.com/launchpad-settlement/internal/types"
)

// nativeAsset is the zero address, meaning the chain's native currency.
var nativeAsset = common.Address{}

// RoundStore persists round state
type RoundStore interface {
	Get(ctx context.Context, id string) (*models.Round, error)
	TransitionStatus(ctx context.Context, id string, from, to types.RoundStatus) error
	CaptureSnapshot(ctx context.Context, id, totalRaised string, participantCount int) (bool, error)
	SetPhaseFlag(ctx context.Context, id string, flag string) error
	SetAllocationRoot(ctx context.Context, id, root, burnedAmount string) error
	SetLPLockID(ctx context.Context, id, lockID string) error
	SetFailReason(ctx context.Context, id, reason string) error
}

// ContributionStore reads confirmed contributions
type ContributionStore interface {
	ListByRound(ctx context.Context, roundID string) ([]*models.Contribution, error)
	AggregateByContributor(ctx context.Context, roundID string) ([]*models.Contribution, error)
	CountParticipants(ctx context.Context, roundID string) (int, error)
}

// RoundCache invalidates cached round state after writes
type RoundCache interface {
	InvalidateRound(ctx context.Context, roundID string) error
}

// Config holds the addresses the state machine pays into
type Config struct {
	Finalizer          common.Address // only caller allowed to drive settlement
	Signer             common.Address // settlement signer receiving escrow releases mid-phase
	TreasuryVault      common.Address
	ReferralPoolVault  common.Address
	StakingVault       common.Address
	BurnSink           common.Address
	VestingDistributor common.Address
}

// FinalizeParams carries caller-supplied slippage bounds for the liquidity
// phase. The core never substitutes its own minimums on retry; changed bounds
// change the financial outcome and must come from the caller.
type FinalizeParams struct {
	MinToken  *big.Int
	MinNative *big.Int
}

// FinalizeResult reports settlement progress to the caller: which phases are
// done and, on error, which phase stopped.
type FinalizeResult struct {
	RoundID        string            `json:"roundId"`
	Status         types.RoundStatus `json:"status"`
	Flags          types.PhaseFlags  `json:"flags"`
	FailedPhase    string            `json:"failedPhase,omitempty"`
	AllocationRoot string            `json:"allocationRoot,omitempty"`
	LPLockID       string            `json:"lpLockId,omitempty"`
	BurnedAmount   string            `json:"burnedAmount,omitempty"`
}

// StateMachine drives a round from ENDED through settlement to a terminal
// status. All methods serialize per round.
type StateMachine struct {
	rounds        RoundStore
	contributions ContributionStore
	cache         RoundCache

	feeCalc   *feesplit.Calculator
	referrals *referral.Service
	escrow    *escrow.Coordinator
	venue     adapter.LiquidityVenue
	lockVault adapter.LockVault
	vesting   adapter.VestingDistributor

	cfg   Config
	locks *roundMutex
}

// NewStateMachine creates the settlement state machine
func NewStateMachine(
	rounds RoundStore,
	contributions ContributionStore,
	cache RoundCache,
	feeCalc *feesplit.Calculator,
	referrals *referral.Service,
	escrowCoord *escrow.Coordinator,
	venue adapter.LiquidityVenue,
	lockVault adapter.LockVault,
	vesting adapter.VestingDistributor,
	cfg Config,
) *StateMachine {
	return &StateMachine{
		rounds:        rounds,
		contributions: contributions,
		cache:         cache,
		feeCalc:       feeCalc,
		referrals:     referrals,
		escrow:        escrowCoord,
		venue:         venue,
		lockVault:     lockVault,
		vesting:       vesting,
		cfg:           cfg,
		locks:         newRoundMutex(),
	}
}

// payouts holds every settlement amount, all derived from the snapshot.
// Live balances never enter payout math; stray transfers after ENDED must not
// move a single figure here.
type payouts struct {
	totalRaised  *big.Int
	feeAmount    *big.Int
	nativeForLP  *big.Int
	tokensForLP  *big.Int
	ownerPayout  *big.Int
	tokensTotal  *big.Int
	lockDuration uint64
}

func (m *StateMachine) computePayouts(round *models.Round) (*payouts, error) {
	totalRaised, err := amount.Parse(round.SnapshotTotalRaised)
	if err != nil {
		return nil, err
	}
	tokensTotal, err := amount.Parse(round.TokensForSale)
	if err != nil {
		return nil, err
	}

	feeAmount, err := m.feeCalc.FeeAmount(totalRaised)
	if err != nil {
		return nil, err
	}
	netAfterFee, err := amount.Sub(totalRaised, feeAmount)
	if err != nil {
		return nil, err
	}
	nativeForLP, err := amount.ApplyBps(netAfterFee, round.LiquidityBps)
	if err != nil {
		return nil, err
	}
	ownerPayout, err := amount.Sub(netAfterFee, nativeForLP)
	if err != nil {
		return nil, err
	}
	tokensForLP, err := amount.ApplyBps(tokensTotal, round.LiquidityBps)
	if err != nil {
		return nil, err
	}

	return &payouts{
		totalRaised:  totalRaised,
		feeAmount:    feeAmount,
		nativeForLP:  nativeForLP,
		tokensForLP:  tokensForLP,
		ownerPayout:  ownerPayout,
		tokensTotal:  tokensTotal,
		lockDuration: uint64(round.LPLockDuration.Seconds()),
	}, nil
}

func (m *StateMachine) authorize(caller string) error {
	if common.HexToAddress(caller) != m.cfg.Finalizer {
		return apperrors.NewUnauthorizedFinalizerError(caller)
	}
	return nil
}

func (m *StateMachine) invalidate(ctx context.Context, roundID string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.InvalidateRound(ctx, roundID); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Failed to invalidate round cache")
	}
}

// Finalize runs the settlement phases for a round. The first call captures
// the snapshot and moves the round to FINALIZING; later calls while
// FINALIZING are resumptions that skip phases whose flags are already true.
// On a phase failure the round stays FINALIZING with the completed flags
// persisted, and the result names the failed phase.
func (m *StateMachine) Finalize(ctx context.Context, roundID, caller string, params FinalizeParams) (*FinalizeResult, error) {
	unlock := m.locks.Lock(roundID)
	defer unlock()

	if err := m.authorize(caller); err != nil {
		return nil, err
	}

	logger := logging.FromContext(ctx).WithField("roundId", roundID)
	ctx = logging.WithLogger(ctx, logger)

	round, err := m.rounds.Get(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round == nil {
		return nil, apperrors.NewNotFoundError("round", roundID)
	}

	switch round.Status {
	case types.RoundEnded:
		if round.SnapshotTaken {
			// Snapshot exists but status regressed; cannot happen under the
			// forward-only lifecycle. Refuse rather than recompute.
			return nil, apperrors.NewInvalidStatusError(roundID, round.Status, "finalize")
		}
		participants, err := m.contributions.CountParticipants(ctx, roundID)
		if err != nil {
			return nil, apperrors.NewDatabaseError("count participants", err)
		}
		taken, err := m.rounds.CaptureSnapshot(ctx, roundID, round.TotalRaised, participants)
		if err != nil {
			return nil, err
		}
		if !taken {
			return nil, apperrors.NewInvalidStatusError(roundID, round.Status, "finalize")
		}
		m.invalidate(ctx, roundID)
		logger.WithFields(map[string]interface{}{
			"totalRaised":  round.TotalRaised,
			"participants": participants,
		}).Info("Snapshot captured, settlement started")

		round, err = m.rounds.Get(ctx, roundID)
		if err != nil {
			return nil, err
		}
	case types.RoundFinalizing:
		logger.Info("Resuming settlement")
	default:
		return nil, apperrors.NewInvalidStatusError(roundID, round.Status, "finalize")
	}

	p, err := m.computePayouts(round)
	if err != nil {
		return nil, err
	}

	result := &FinalizeResult{
		RoundID:        roundID,
		Status:         round.Status,
		Flags:          round.PhaseFlags(),
		AllocationRoot: round.AllocationRoot,
		LPLockID:       round.LPLockID,
		BurnedAmount:   round.BurnedAmount,
	}

	phases := []struct {
		name string
		done bool
		run  func(context.Context, *models.Round, *payouts, FinalizeParams, *FinalizeResult) error
	}{
		{"fee", round.FeePaid, m.runFeePhase},
		{"liquidity", round.LPCreated, m.runLiquidityPhase},
		{"vesting", round.VestingFunded, m.runVestingPhase},
		{"owner-payout", round.OwnerPaid, m.runOwnerPayoutPhase},
	}

	for _, phase := range phases {
		if phase.done {
			continue
		}
		if err := phase.run(ctx, round, p, params, result); err != nil {
			result.FailedPhase = phase.name
			logger.WithError(err).WithField("phase", phase.name).Error("Settlement phase failed")
			return result, err
		}
		m.invalidate(ctx, roundID)
	}

	if err := m.rounds.TransitionStatus(ctx, roundID, types.RoundFinalizing, types.RoundFinalizedSuccess); err != nil {
		return result, err
	}
	m.invalidate(ctx, roundID)

	result.Status = types.RoundFinalizedSuccess
	logger.Info("Round finalized")
	return result, nil
}

// runFeePhase computes and pays the platform fee from the snapshot total, and
// credits referral rewards for every referred contribution. Zero fee is a
// no-op success, not an error.
func (m *StateMachine) runFeePhase(ctx context.Context, round *models.Round, p *payouts, _ FinalizeParams, result *FinalizeResult) error {
	split, err := m.feeCalc.Compute(ctx, round.Source, round.ID, p.totalRaised)
	if err != nil {
		return err
	}

	if p.feeAmount.Sign() > 0 {
		for _, leg := range []struct {
			to     common.Address
			amount string
		}{
			{m.cfg.TreasuryVault, split.TreasuryAmount},
			{m.cfg.ReferralPoolVault, split.ReferralPoolAmount},
			{m.cfg.StakingVault, split.StakingAmount},
		} {
			value, err := amount.Parse(leg.amount)
			if err != nil {
				return err
			}
			if err := m.escrow.ReleaseAmount(ctx, round.ID, nativeAsset, leg.to, value); err != nil {
				return err
			}
		}
	}

	contributions, err := m.contributions.ListByRound(ctx, round.ID)
	if err != nil {
		return apperrors.NewDatabaseError("list contributions", err)
	}
	for _, c := range contributions {
		base, err := amount.Parse(c.Amount)
		if err != nil {
			return err
		}
		if _, err := m.referrals.RecordReferral(ctx, c.Referrer, c.Contributor, round.Source, c.ID, base); err != nil {
			return err
		}
	}

	if err := m.feeCalc.MarkProcessed(ctx, round.Source, round.ID); err != nil {
		return err
	}
	if err := m.rounds.SetPhaseFlag(ctx, round.ID, storage.FlagFeePaid); err != nil {
		return err
	}
	result.Flags.FeePaid = true
	return nil
}

// runLiquidityPhase provisions the trading pool and locks the LP shares for
// the configured duration with the project owner as beneficiary. The flag is
// set only after the lock succeeds; LP shares are never left unlocked. Each
// escrow leg is tracked by a persisted release marker, so a resume after a
// venue or lock failure retries only the collaborator calls; the funds
// already sit with the signer.
func (m *StateMachine) runLiquidityPhase(ctx context.Context, round *models.Round, p *payouts, params FinalizeParams, result *FinalizeResult) error {
	// A pool cannot be seeded without raise proceeds.
	if round.LiquidityBps == 0 || p.nativeForLP.Sign() == 0 {
		if err := m.rounds.SetPhaseFlag(ctx, round.ID, storage.FlagLPCreated); err != nil {
			return err
		}
		result.Flags.LPCreated = true
		return nil
	}

	saleToken := common.HexToAddress(round.SaleToken)

	if !round.LPNativeReleased {
		if err := m.escrow.ReleaseAmount(ctx, round.ID, nativeAsset, m.cfg.Signer, p.nativeForLP); err != nil {
			return err
		}
		if err := m.rounds.SetPhaseFlag(ctx, round.ID, storage.FlagLPNativeReleased); err != nil {
			return err
		}
		round.LPNativeReleased = true
	}
	if !round.LPTokenReleased {
		if err := m.escrow.ReleaseAmount(ctx, round.ID, saleToken, m.cfg.Signer, p.tokensForLP); err != nil {
			return err
		}
		if err := m.rounds.SetPhaseFlag(ctx, round.ID, storage.FlagLPTokenReleased); err != nil {
			return err
		}
		round.LPTokenReleased = true
	}

	lpToken, liquidity, err := m.venue.Provision(ctx, saleToken, p.tokensForLP, p.nativeForLP, params.MinToken, params.MinNative)
	if err != nil {
		return apperrors.NewCollaboratorError("liquidity venue", err)
	}

	lockID, err := m.lockVault.Lock(ctx, lpToken, liquidity, common.HexToAddress(round.Owner), p.lockDuration)
	if err != nil {
		return apperrors.NewCollaboratorError("lock vault", err)
	}

	if err := m.rounds.SetLPLockID(ctx, round.ID, lockID); err != nil {
		return err
	}
	if err := m.rounds.SetPhaseFlag(ctx, round.ID, storage.FlagLPCreated); err != nil {
		return err
	}
	result.Flags.LPCreated = true
	result.LPLockID = lockID

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"lpToken":   lpToken.Hex(),
		"liquidity": amount.Format(liquidity),
		"lockId":    lockID,
	}).Info("Liquidity provisioned and locked")
	return nil
}

// runVestingPhase builds the allocation table, funds the vesting distributor
// against its Merkle root and burns the unsold remainder. The token budget is
// verified up front; a shortfall aborts before any transfer.
func (m *StateMachine) runVestingPhase(ctx context.Context, round *models.Round, p *payouts, _ FinalizeParams, result *FinalizeResult) error {
	// A zero raise means nobody can claim anything; the whole sale supply is
	// unsold and burns. Short-circuit before the allocation table, which has
	// no defined proportions against a zero total.
	if p.totalRaised.Sign() == 0 {
		return m.burnFullSupply(ctx, round, p, result)
	}

	totals, err := m.contributions.AggregateByContributor(ctx, round.ID)
	if err != nil {
		return apperrors.NewDatabaseError("aggregate contributions", err)
	}

	entries := make([]merkle.ContributionEntry, 0, len(totals))
	for _, t := range totals {
		value, err := amount.Parse(t.Amount)
		if err != nil {
			return err
		}
		entries = append(entries, merkle.ContributionEntry{
			Beneficiary: common.HexToAddress(t.Contributor),
			Amount:      value,
		})
	}

	domain := merkle.LeafDomain{
		VestingVault: m.cfg.VestingDistributor,
		Chain:        round.Chain,
		Salt:         crypto.Keccak256Hash([]byte(round.ID)),
	}
	table, err := merkle.BuildAllocationTable(entries, p.tokensTotal, p.totalRaised, domain)
	if err != nil {
		return err
	}

	// Floor-division dust plus genuinely unsold supply; LP tokens are a
	// separate budget line on top of tokensForSale.
	unsold, err := amount.Sub(p.tokensTotal, table.TotalAllocation)
	if err != nil {
		return err
	}

	saleToken := common.HexToAddress(round.SaleToken)

	needed, err := amount.Sum([]*big.Int{table.TotalAllocation, p.tokensForLP, unsold})
	if err != nil {
		return err
	}
	deposited, err := m.escrow.Balance(ctx, round.ID, saleToken)
	if err != nil {
		return err
	}
	// Tokens already released to the signer, in this call or a prior failed
	// attempt, are no longer expected in escrow.
	if round.LPTokenReleased {
		if needed, err = amount.Sub(needed, p.tokensForLP); err != nil {
			return err
		}
	}
	if round.VestingTokensReleased {
		if needed, err = amount.Sub(needed, table.TotalAllocation); err != nil {
			return err
		}
	}
	if deposited.Cmp(needed) < 0 {
		return apperrors.NewInsufficientTokenBudgetError(amount.Format(needed), amount.Format(deposited))
	}

	if table.TotalAllocation.Sign() > 0 {
		if !round.VestingTokensReleased {
			if err := m.escrow.ReleaseAmount(ctx, round.ID, saleToken, m.cfg.Signer, table.TotalAllocation); err != nil {
				return err
			}
			if err := m.rounds.SetPhaseFlag(ctx, round.ID, storage.FlagVestingTokensReleased); err != nil {
				return err
			}
			round.VestingTokensReleased = true
		}
		if err := m.vesting.Fund(ctx, saleToken, table.TotalAllocation); err != nil {
			return apperrors.NewCollaboratorError("vesting distributor", err)
		}
	}
	if err := m.vesting.SetAllocationRoot(ctx, table.Root, table.TotalAllocation); err != nil {
		return apperrors.NewCollaboratorError("vesting distributor", err)
	}
	if unsold.Sign() > 0 {
		if err := m.escrow.ReleaseAmount(ctx, round.ID, saleToken, m.cfg.BurnSink, unsold); err != nil {
			return err
		}
	}

	if err := m.rounds.SetAllocationRoot(ctx, round.ID, table.Root.Hex(), amount.Format(unsold)); err != nil {
		return err
	}
	if err := m.rounds.SetPhaseFlag(ctx, round.ID, storage.FlagVestingFunded); err != nil {
		return err
	}
	result.Flags.VestingFunded = true
	result.AllocationRoot = table.Root.Hex()
	result.BurnedAmount = amount.Format(unsold)

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"allocationRoot":  table.Root.Hex(),
		"totalAllocation": amount.Format(table.TotalAllocation),
		"burned":          amount.Format(unsold),
		"participants":    len(table.Entries),
	}).Info("Vesting funded and unsold supply burned")
	return nil
}

// burnFullSupply completes the vesting phase for a round that raised nothing.
// No allocation table exists and no root is published; the entire sale supply
// goes to the burn sink.
func (m *StateMachine) burnFullSupply(ctx context.Context, round *models.Round, p *payouts, result *FinalizeResult) error {
	if p.tokensTotal.Sign() > 0 {
		if err := m.escrow.ReleaseAmount(ctx, round.ID, common.HexToAddress(round.SaleToken), m.cfg.BurnSink, p.tokensTotal); err != nil {
			return err
		}
	}

	burned := amount.Format(p.tokensTotal)
	if err := m.rounds.SetAllocationRoot(ctx, round.ID, "", burned); err != nil {
		return err
	}
	if err := m.rounds.SetPhaseFlag(ctx, round.ID, storage.FlagVestingFunded); err != nil {
		return err
	}
	result.Flags.VestingFunded = true
	result.BurnedAmount = burned

	logging.FromContext(ctx).WithField("burned", burned).Info("Zero raise, full sale supply burned")
	return nil
}

// runOwnerPayoutPhase pays the residual raise proceeds to the project owner.
// The amount comes from the snapshot, never the live balance.
func (m *StateMachine) runOwnerPayoutPhase(ctx context.Context, round *models.Round, p *payouts, _ FinalizeParams, result *FinalizeResult) error {
	if p.ownerPayout.Sign() > 0 {
		if err := m.escrow.ReleaseAmount(ctx, round.ID, nativeAsset, common.HexToAddress(round.Owner), p.ownerPayout); err != nil {
			return err
		}
	}
	if err := m.rounds.SetPhaseFlag(ctx, round.ID, storage.FlagOwnerPaid); err != nil {
		return err
	}
	result.Flags.OwnerPaid = true

	logging.FromContext(ctx).WithField("ownerPayout", amount.Format(p.ownerPayout)).Info("Owner paid")
	return nil
}

// FinalizeFailed moves an ended round that missed its softcap straight to
// FINALIZED_FAILED. Only valid from ENDED; refunds are handled by a separate
// per-contributor withdrawal flow against the immutable contribution table.
func (m *StateMachine) FinalizeFailed(ctx context.Context, roundID, caller, reason string) error {
	unlock := m.locks.Lock(roundID)
	defer unlock()

	if err := m.authorize(caller); err != nil {
		return err
	}

	if err := m.rounds.TransitionStatus(ctx, roundID, types.RoundEnded, types.RoundFinalizedFailed); err != nil {
		return err
	}
	if err := m.rounds.SetFailReason(ctx, roundID, reason); err != nil {
		return err
	}
	m.invalidate(ctx, roundID)

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"roundId": roundID,
		"reason":  reason,
	}).Info("Round finalized as failed")
	return nil
}

// Cancel moves a round to CANCELLED. Only valid before settlement begins;
// once FINALIZING the round must run to a finalized terminal state.
func (m *StateMachine) Cancel(ctx context.Context, roundID, caller, reason string) error {
	unlock := m.locks.Lock(roundID)
	defer unlock()

	if err := m.authorize(caller); err != nil {
		return err
	}

	round, err := m.rounds.Get(ctx, roundID)
	if err != nil {
		return err
	}
	if round == nil {
		return apperrors.NewNotFoundError("round", roundID)
	}

	if err := m.rounds.TransitionStatus(ctx, roundID, round.Status, types.RoundCancelled); err != nil {
		return err
	}
	if err := m.rounds.SetFailReason(ctx, roundID, reason); err != nil {
		return err
	}
	m.invalidate(ctx, roundID)

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"roundId": roundID,
		"reason":  reason,
	}).Info("Round cancelled")
	return nil
}

// SweepExcess transfers any residual native balance left in escrow after a
// successful settlement, such as stray transfers received after ENDED that
// the snapshot deliberately excluded from payouts. A second sweep after the
// balance is empty is a zero-value no-op success.
func (m *StateMachine) SweepExcess(ctx context.Context, roundID, caller string, destination common.Address) (*big.Int, error) {
	unlock := m.locks.Lock(roundID)
	defer unlock()

	if err := m.authorize(caller); err != nil {
		return nil, err
	}

	round, err := m.rounds.Get(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round == nil {
		return nil, apperrors.NewNotFoundError("round", roundID)
	}
	if round.Status != types.RoundFinalizedSuccess {
		return nil, apperrors.NewInvalidStatusError(roundID, round.Status, "sweep excess")
	}

	swept, err := m.escrow.ReleaseTo(ctx, roundID, nativeAsset, destination)
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"roundId":     roundID,
		"destination": destination.Hex(),
		"amount":      amount.Format(swept),
	}).Info("Excess swept")
	return swept, nil
}
