package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/launchpad-settlement/internal/errors"
	"github.com/launchpad-settlement/internal/models"
	"github.com/launchpad-settlement/internal/types"
)

func setupTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	return NewRedisCacheWithClient(client, 15*time.Second), mr
}

func testRound() *models.Round {
	return &models.Round{
		ID:            "round-1",
		Chain:         types.ChainBase,
		Source:        types.SourceFairlaunch,
		Status:        types.RoundActive,
		TokensForSale: "500000",
		TotalRaised:   "2500",
		LiquidityBps:  6000,
	}
}

func TestRoundCacheRoundTrip(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetRound(ctx, testRound()))

	got, err := cache.GetRound(ctx, "round-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "round-1", got.ID)
	assert.Equal(t, types.RoundActive, got.Status)
	assert.Equal(t, "2500", got.TotalRaised)
	assert.Equal(t, uint64(6000), got.LiquidityBps)
}

func TestGetRoundMiss(t *testing.T) {
	cache, _ := setupTestCache(t)

	got, err := cache.GetRound(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInvalidateRound(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetRound(ctx, testRound()))
	require.NoError(t, cache.InvalidateRound(ctx, "round-1"))

	got, err := cache.GetRound(ctx, "round-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheFailuresAreRetryable(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := context.Background()

	mr.SetError("connection refused")

	err := cache.SetRound(ctx, testRound())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeCacheError, apperrors.Categorize(err).Code)
	assert.True(t, apperrors.IsRetryable(err))

	_, err = cache.GetRound(ctx, "round-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeCacheError, apperrors.Categorize(err).Code)

	err = cache.InvalidateRound(ctx, "round-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeCacheError, apperrors.Categorize(err).Code)
}

func TestRoundCacheExpires(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetRound(ctx, testRound()))

	mr.FastForward(16 * time.Second)

	got, err := cache.GetRound(ctx, "round-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
