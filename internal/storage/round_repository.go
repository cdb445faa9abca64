package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/launchpad-settlement/internal/errors"
	"github.com/launchpad-settlement/internal/models"
	"github.com/launchpad-settlement/internal/types"
)

// RoundRepository handles round persistence. Status transitions and phase flag
// updates are guarded in SQL so the forward-only lifecycle and write-once-true
// semantics hold even under concurrent writers.
type RoundRepository struct {
	db *PostgresDB
}

// NewRoundRepository creates a new round repository
func NewRoundRepository(db *PostgresDB) *RoundRepository {
	return &RoundRepository{db: db}
}

const roundColumns = `
	id, chain, source, status, owner, sale_token,
	soft_cap, hard_cap, min_contribution, max_contribution, tokens_for_sale,
	start_time, end_time, liquidity_bps, lp_lock_duration_secs, total_raised,
	fee_paid, lp_created, vesting_funded, owner_paid,
	lp_native_released, lp_token_released, vesting_tokens_released,
	snapshot_taken, snapshot_total_raised, snapshot_participant_count, snapshot_taken_at,
	allocation_root, lp_lock_id, burned_amount, fail_reason,
	created_at, updated_at`

func scanRound(row pgx.Row) (*models.Round, error) {
	var r models.Round
	var lockSecs int64
	err := row.Scan(
		&r.ID, &r.Chain, &r.Source, &r.Status, &r.Owner, &r.SaleToken,
		&r.SoftCap, &r.HardCap, &r.MinContribution, &r.MaxContribution, &r.TokensForSale,
		&r.StartTime, &r.EndTime, &r.LiquidityBps, &lockSecs, &r.TotalRaised,
		&r.FeePaid, &r.LPCreated, &r.VestingFunded, &r.OwnerPaid,
		&r.LPNativeReleased, &r.LPTokenReleased, &r.VestingTokensReleased,
		&r.SnapshotTaken, &r.SnapshotTotalRaised, &r.SnapshotParticipantCount, &r.SnapshotTakenAt,
		&r.AllocationRoot, &r.LPLockID, &r.BurnedAmount, &r.FailReason,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.LPLockDuration = time.Duration(lockSecs) * time.Second
	return &r, nil
}

// Create creates a new round record
func (r *RoundRepository) Create(ctx context.Context, round *models.Round) error {
	if round.Status == "" {
		round.Status = types.RoundUpcoming
	}
	if round.TotalRaised == "" {
		round.TotalRaised = "0"
	}
	if round.BurnedAmount == "" {
		round.BurnedAmount = "0"
	}

	query := `
		INSERT INTO rounds (
			id, chain, source, status, owner, sale_token,
			soft_cap, hard_cap, min_contribution, max_contribution, tokens_for_sale,
			start_time, end_time, liquidity_bps, lp_lock_duration_secs, total_raised,
			burned_amount
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		round.ID, round.Chain, round.Source, round.Status, round.Owner, round.SaleToken,
		round.SoftCap, round.HardCap, round.MinContribution, round.MaxContribution, round.TokensForSale,
		round.StartTime, round.EndTime, round.LiquidityBps, int64(round.LPLockDuration/time.Second),
		round.TotalRaised, round.BurnedAmount,
	)
	if err != nil {
		return fmt.Errorf("failed to create round: %w", err)
	}
	return nil
}

// Get retrieves a round by id
func (r *RoundRepository) Get(ctx context.Context, id string) (*models.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE id = $1`
	round, err := scanRound(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found, return nil without error
		}
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return round, nil
}

// TransitionStatus moves a round to the given status, guarded by the expected
// current status. Returns InvalidStatus when another writer moved the round
// first or the transition is not part of the forward-only lifecycle.
func (r *RoundRepository) TransitionStatus(ctx context.Context, id string, from, to types.RoundStatus) error {
	if !types.CanTransition(from, to) {
		return apperrors.NewInvalidStatusError(id, from, "transition to "+string(to))
	}

	query := `UPDATE rounds SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`
	result, err := r.db.Pool().Exec(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("failed to transition round status: %w", err)
	}
	if result.RowsAffected() == 0 {
		current, getErr := r.Get(ctx, id)
		if getErr != nil {
			return getErr
		}
		if current == nil {
			return apperrors.NewNotFoundError("round", id)
		}
		return apperrors.NewInvalidStatusError(id, current.Status, "transition to "+string(to))
	}
	return nil
}

// CaptureSnapshot records the frozen totals and moves the round into finalizing,
// in one guarded statement. It succeeds at most once per round: the predicate
// `snapshot_taken = false` is the critical-section entry check.
func (r *RoundRepository) CaptureSnapshot(ctx context.Context, id, totalRaised string, participantCount int) (bool, error) {
	query := `
		UPDATE rounds
		SET snapshot_taken = true,
			snapshot_total_raised = $2,
			snapshot_participant_count = $3,
			snapshot_taken_at = now(),
			status = $4,
			updated_at = now()
		WHERE id = $1 AND status = $5 AND snapshot_taken = false
	`
	result, err := r.db.Pool().Exec(ctx, query, id, totalRaised, participantCount,
		types.RoundFinalizing, types.RoundEnded)
	if err != nil {
		return false, fmt.Errorf("failed to capture snapshot: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// Phase flag and release marker columns; write-once-true, never reset.
const (
	FlagFeePaid       = "fee_paid"
	FlagLPCreated     = "lp_created"
	FlagVestingFunded = "vesting_funded"
	FlagOwnerPaid     = "owner_paid"

	FlagLPNativeReleased      = "lp_native_released"
	FlagLPTokenReleased       = "lp_token_released"
	FlagVestingTokensReleased = "vesting_tokens_released"
)

// SetPhaseFlag marks a settlement phase flag true. Setting an already-true flag
// is an idempotent no-op.
func (r *RoundRepository) SetPhaseFlag(ctx context.Context, id string, flag string) error {
	var query string
	switch flag {
	case FlagFeePaid, FlagLPCreated, FlagVestingFunded, FlagOwnerPaid,
		FlagLPNativeReleased, FlagLPTokenReleased, FlagVestingTokensReleased:
		query = fmt.Sprintf(`UPDATE rounds SET %s = true, updated_at = now() WHERE id = $1`, flag)
	default:
		return apperrors.NewInvalidParameterError("flag", "unknown phase flag "+flag)
	}

	result, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to set phase flag %s: %w", flag, err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("round", id)
	}
	return nil
}

// SetAllocationRoot records the allocation Merkle root and burned amount.
func (r *RoundRepository) SetAllocationRoot(ctx context.Context, id, root, burnedAmount string) error {
	query := `UPDATE rounds SET allocation_root = $2, burned_amount = $3, updated_at = now() WHERE id = $1`
	_, err := r.db.Pool().Exec(ctx, query, id, root, burnedAmount)
	if err != nil {
		return fmt.Errorf("failed to set allocation root: %w", err)
	}
	return nil
}

// SetLPLockID records the lock identifier returned by the lock vault.
func (r *RoundRepository) SetLPLockID(ctx context.Context, id, lockID string) error {
	query := `UPDATE rounds SET lp_lock_id = $2, updated_at = now() WHERE id = $1`
	_, err := r.db.Pool().Exec(ctx, query, id, lockID)
	if err != nil {
		return fmt.Errorf("failed to set lp lock id: %w", err)
	}
	return nil
}

// SetFailReason records why a round was finalized as failed or cancelled.
func (r *RoundRepository) SetFailReason(ctx context.Context, id, reason string) error {
	query := `UPDATE rounds SET fail_reason = $2, updated_at = now() WHERE id = $1`
	_, err := r.db.Pool().Exec(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("failed to set fail reason: %w", err)
	}
	return nil
}

// AddToTotalRaised adds a confirmed contribution amount to the running total.
// Only valid while the round is active; totals are frozen from ended onward.
func (r *RoundRepository) AddToTotalRaised(ctx context.Context, id string, amount string) error {
	query := `
		UPDATE rounds
		SET total_raised = (total_raised::numeric + $2::numeric)::text, updated_at = now()
		WHERE id = $1 AND status = $3
	`
	result, err := r.db.Pool().Exec(ctx, query, id, amount, types.RoundActive)
	if err != nil {
		return fmt.Errorf("failed to add to total raised: %w", err)
	}
	if result.RowsAffected() == 0 {
		round, getErr := r.Get(ctx, id)
		if getErr != nil {
			return getErr
		}
		if round == nil {
			return apperrors.NewNotFoundError("round", id)
		}
		return apperrors.NewInvalidStatusError(id, round.Status, "record contribution")
	}
	return nil
}

// ListByStatus retrieves rounds in a given status, oldest end time first.
func (r *RoundRepository) ListByStatus(ctx context.Context, status types.RoundStatus, limit int) ([]*models.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE status = $1 ORDER BY end_time ASC LIMIT $2`
	rows, err := r.db.Pool().Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	defer rows.Close()

	var rounds []*models.Round
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		rounds = append(rounds, round)
	}
	return rounds, rows.Err()
}
