package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/launchpad-settlement/internal/models"
	"github.com/launchpad-settlement/internal/types"
)

// FeeSplitRepository handles fee split persistence. Rows are keyed by
// (source_type, source_id); a retried finalize upserts the same row.
type FeeSplitRepository struct {
	db *PostgresDB
}

// NewFeeSplitRepository creates a new fee split repository
func NewFeeSplitRepository(db *PostgresDB) *FeeSplitRepository {
	return &FeeSplitRepository{db: db}
}

// Upsert creates or updates the fee split for a source. A second call with
// identical inputs is a pure idempotent update, never a duplicate row.
func (r *FeeSplitRepository) Upsert(ctx context.Context, split *models.FeeSplit) error {
	query := `
		INSERT INTO fee_splits (
			source_id, source_type, total_amount,
			treasury_amount, referral_pool_amount, staking_amount
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_type, source_id)
		DO UPDATE SET
			total_amount = EXCLUDED.total_amount,
			treasury_amount = EXCLUDED.treasury_amount,
			referral_pool_amount = EXCLUDED.referral_pool_amount,
			staking_amount = EXCLUDED.staking_amount
	`
	_, err := r.db.Pool().Exec(ctx, query,
		split.SourceID, split.SourceType, split.TotalAmount,
		split.TreasuryAmount, split.ReferralPoolAmount, split.StakingAmount)
	if err != nil {
		return fmt.Errorf("failed to upsert fee split: %w", err)
	}
	return nil
}

// MarkProcessed flags the split as paid out. Idempotent: a processed row stays
// processed with its original timestamp.
func (r *FeeSplitRepository) MarkProcessed(ctx context.Context, sourceType types.SourceType, sourceID string) error {
	query := `
		UPDATE fee_splits
		SET processed = true, processed_at = COALESCE(processed_at, now())
		WHERE source_type = $1 AND source_id = $2
	`
	_, err := r.db.Pool().Exec(ctx, query, sourceType, sourceID)
	if err != nil {
		return fmt.Errorf("failed to mark fee split processed: %w", err)
	}
	return nil
}

// Get retrieves the fee split for a source
func (r *FeeSplitRepository) Get(ctx context.Context, sourceType types.SourceType, sourceID string) (*models.FeeSplit, error) {
	query := `
		SELECT source_id, source_type, total_amount,
			   treasury_amount, referral_pool_amount, staking_amount,
			   processed, processed_at, created_at
		FROM fee_splits
		WHERE source_type = $1 AND source_id = $2
	`
	var s models.FeeSplit
	err := r.db.Pool().QueryRow(ctx, query, sourceType, sourceID).Scan(
		&s.SourceID, &s.SourceType, &s.TotalAmount,
		&s.TreasuryAmount, &s.ReferralPoolAmount, &s.StakingAmount,
		&s.Processed, &s.ProcessedAt, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get fee split: %w", err)
	}
	return &s, nil
}
