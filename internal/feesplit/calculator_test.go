package feesplit

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchpad-settlement/internal/models"
	"github.com/launchpad-settlement/internal/types"
)

// fakeSplitRepo is an in-memory SplitRepository.
type fakeSplitRepo struct {
	splits  map[string]*models.FeeSplit
	upserts int
	failing bool
}

func newFakeSplitRepo() *fakeSplitRepo {
	return &fakeSplitRepo{splits: make(map[string]*models.FeeSplit)}
}

func splitKey(sourceType types.SourceType, sourceID string) string {
	return string(sourceType) + ":" + sourceID
}

func (r *fakeSplitRepo) Upsert(ctx context.Context, split *models.FeeSplit) error {
	if r.failing {
		return fmt.Errorf("connection refused")
	}
	r.upserts++
	copied := *split
	r.splits[splitKey(split.SourceType, split.SourceID)] = &copied
	return nil
}

func (r *fakeSplitRepo) MarkProcessed(ctx context.Context, sourceType types.SourceType, sourceID string) error {
	split, ok := r.splits[splitKey(sourceType, sourceID)]
	if !ok {
		return fmt.Errorf("split not found")
	}
	split.Processed = true
	return nil
}

func (r *fakeSplitRepo) Get(ctx context.Context, sourceType types.SourceType, sourceID string) (*models.FeeSplit, error) {
	return r.splits[splitKey(sourceType, sourceID)], nil
}

func testPolicy() types.FeePolicy {
	return types.FeePolicy{TotalBps: 500, TreasuryBps: 250, ReferralBps: 200, StakingBps: 50}
}

func TestNewCalculatorRejectsInvalidPolicy(t *testing.T) {
	_, err := NewCalculator(newFakeSplitRepo(), types.FeePolicy{TotalBps: 500, TreasuryBps: 500, ReferralBps: 100})
	require.Error(t, err)
}

func TestComputeSplitsFeeExactly(t *testing.T) {
	repo := newFakeSplitRepo()
	calc, err := NewCalculator(repo, testPolicy())
	require.NoError(t, err)

	// 5% of 2500 is 125, split 250/200/50 into 62/50/13.
	split, err := calc.Compute(context.Background(), types.SourceFairlaunch, "round-1", big.NewInt(2500))
	require.NoError(t, err)

	assert.Equal(t, "125", split.TotalAmount)
	assert.Equal(t, "62", split.TreasuryAmount)
	assert.Equal(t, "50", split.ReferralPoolAmount)
	assert.Equal(t, "13", split.StakingAmount)
	assert.False(t, split.Processed)

	stored, err := repo.Get(context.Background(), types.SourceFairlaunch, "round-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "125", stored.TotalAmount)
}

func TestComputeBucketsAlwaysSumToFee(t *testing.T) {
	calc, err := NewCalculator(newFakeSplitRepo(), testPolicy())
	require.NoError(t, err)

	for _, raised := range []int64{1, 19, 100, 999, 2500, 123456789} {
		split, err := calc.Compute(context.Background(), types.SourcePresale, "round-x", big.NewInt(raised))
		require.NoError(t, err)

		total, _ := new(big.Int).SetString(split.TotalAmount, 10)
		treasury, _ := new(big.Int).SetString(split.TreasuryAmount, 10)
		referral, _ := new(big.Int).SetString(split.ReferralPoolAmount, 10)
		staking, _ := new(big.Int).SetString(split.StakingAmount, 10)

		sum := new(big.Int).Add(treasury, referral)
		sum.Add(sum, staking)
		assert.Equal(t, 0, sum.Cmp(total), "buckets must sum to fee for raise %d", raised)
	}
}

func TestComputeZeroFee(t *testing.T) {
	repo := newFakeSplitRepo()
	calc, err := NewCalculator(repo, testPolicy())
	require.NoError(t, err)

	// Raise too small to yield any fee after flooring.
	split, err := calc.Compute(context.Background(), types.SourceFairlaunch, "round-1", big.NewInt(19))
	require.NoError(t, err)

	assert.Equal(t, "0", split.TotalAmount)
	assert.Equal(t, "0", split.TreasuryAmount)
	assert.Equal(t, "0", split.ReferralPoolAmount)
	assert.Equal(t, "0", split.StakingAmount)
}

func TestComputeIsIdempotentPerSource(t *testing.T) {
	repo := newFakeSplitRepo()
	calc, err := NewCalculator(repo, testPolicy())
	require.NoError(t, err)

	first, err := calc.Compute(context.Background(), types.SourceFairlaunch, "round-1", big.NewInt(2500))
	require.NoError(t, err)
	second, err := calc.Compute(context.Background(), types.SourceFairlaunch, "round-1", big.NewInt(2500))
	require.NoError(t, err)

	assert.Equal(t, first.TreasuryAmount, second.TreasuryAmount)
	assert.Equal(t, first.ReferralPoolAmount, second.ReferralPoolAmount)
	assert.Equal(t, first.StakingAmount, second.StakingAmount)
	assert.Len(t, repo.splits, 1)
}

func TestMarkProcessed(t *testing.T) {
	repo := newFakeSplitRepo()
	calc, err := NewCalculator(repo, testPolicy())
	require.NoError(t, err)

	_, err = calc.Compute(context.Background(), types.SourceFairlaunch, "round-1", big.NewInt(2500))
	require.NoError(t, err)

	require.NoError(t, calc.MarkProcessed(context.Background(), types.SourceFairlaunch, "round-1"))

	stored, err := calc.Get(context.Background(), types.SourceFairlaunch, "round-1")
	require.NoError(t, err)
	assert.True(t, stored.Processed)
}

func TestComputeWrapsRepositoryError(t *testing.T) {
	repo := newFakeSplitRepo()
	repo.failing = true
	calc, err := NewCalculator(repo, testPolicy())
	require.NoError(t, err)

	_, err = calc.Compute(context.Background(), types.SourceFairlaunch, "round-1", big.NewInt(2500))
	require.Error(t, err)
}
