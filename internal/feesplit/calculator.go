// Package feesplit computes and persists the platform fee split for a
// settled raise. The fee is carved out of the total raise by the policy's
// total basis points, then divided across the treasury, referral pool and
// staking buckets in proportion to their shares.
package feesplit

import (
	"context"
	"math/big"

	"github.com/launchpad-settlement/internal/amount"
	apperrors "github.com/launchpad-settlement/internal/errors"
	"github.com/launchpad-settlement/internal/logging"
	"github.com/launchpad-settlement/internal/models"
	"github.com/launchpad-settlement/internal/types"
)

// SplitRepository persists fee splits
type SplitRepository interface {
	Upsert(ctx context.Context, split *models.FeeSplit) error
	MarkProcessed(ctx context.Context, sourceType types.SourceType, sourceID string) error
	Get(ctx context.Context, sourceType types.SourceType, sourceID string) (*models.FeeSplit, error)
}

// Calculator computes fee splits under a fee policy
type Calculator struct {
	repo   SplitRepository
	policy types.FeePolicy
}

// NewCalculator creates a new fee split calculator
func NewCalculator(repo SplitRepository, policy types.FeePolicy) (*Calculator, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{repo: repo, policy: policy}, nil
}

// Policy returns the calculator's fee policy
func (c *Calculator) Policy() types.FeePolicy {
	return c.policy
}

// FeeAmount returns the total platform fee for a raise
func (c *Calculator) FeeAmount(totalRaised *big.Int) (*big.Int, error) {
	return amount.ApplyBps(totalRaised, c.policy.TotalBps)
}

// Compute calculates the fee split for a source and upserts it. Recomputing
// for the same source overwrites the row with identical values, so a retried
// finalize never double-books a fee. The three bucket amounts always sum to
// the fee amount exactly; the staking bucket absorbs integer division dust.
func (c *Calculator) Compute(ctx context.Context, sourceType types.SourceType, sourceID string, totalRaised *big.Int) (*models.FeeSplit, error) {
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"sourceType": sourceType,
		"sourceId":   sourceID,
	})

	feeAmount, err := c.FeeAmount(totalRaised)
	if err != nil {
		return nil, err
	}

	split := &models.FeeSplit{
		SourceID:    sourceID,
		SourceType:  sourceType,
		TotalAmount: amount.Format(feeAmount),
	}

	if feeAmount.Sign() == 0 {
		split.TreasuryAmount = "0"
		split.ReferralPoolAmount = "0"
		split.StakingAmount = "0"
	} else {
		parts, err := amount.SplitByShares(feeAmount, []uint64{
			c.policy.TreasuryBps,
			c.policy.ReferralBps,
			c.policy.StakingBps,
		})
		if err != nil {
			return nil, err
		}
		split.TreasuryAmount = amount.Format(parts[0])
		split.ReferralPoolAmount = amount.Format(parts[1])
		split.StakingAmount = amount.Format(parts[2])
	}

	if err := c.repo.Upsert(ctx, split); err != nil {
		return nil, apperrors.NewDatabaseError("upsert fee split", err)
	}

	logger.WithFields(map[string]interface{}{
		"feeAmount": split.TotalAmount,
		"treasury":  split.TreasuryAmount,
		"referral":  split.ReferralPoolAmount,
		"staking":   split.StakingAmount,
	}).Info("Fee split computed")

	return split, nil
}

// MarkProcessed flags the split as paid out after the fee phase settles
func (c *Calculator) MarkProcessed(ctx context.Context, sourceType types.SourceType, sourceID string) error {
	if err := c.repo.MarkProcessed(ctx, sourceType, sourceID); err != nil {
		return apperrors.NewDatabaseError("mark fee split processed", err)
	}
	return nil
}

// Get retrieves a previously computed split
func (c *Calculator) Get(ctx context.Context, sourceType types.SourceType, sourceID string) (*models.FeeSplit, error) {
	split, err := c.repo.Get(ctx, sourceType, sourceID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get fee split", err)
	}
	return split, nil
}
