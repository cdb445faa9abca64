package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/launchpad-settlement/internal/config"
	apperrors "github.com/launchpad-settlement/internal/errors"
	"github.com/launchpad-settlement/internal/models"
)

// RedisCache wraps the Redis client
type RedisCache struct {
	client    *redis.Client
	statusTTL time.Duration
}

// NewRedisCache creates a new Redis cache connection
func NewRedisCache(cfg *config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client, statusTTL: cfg.StatusTTL}, nil
}

// NewRedisCacheWithClient wraps an existing client. Used by tests.
func NewRedisCacheWithClient(client *redis.Client, statusTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, statusTTL: statusTTL}
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client returns the underlying Redis client
func (r *RedisCache) Client() *redis.Client {
	return r.client
}

// Ping checks if Redis is reachable
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func roundKey(roundID string) string {
	return fmt.Sprintf("round:%s", roundID)
}

// SetRound caches a round's current state with the configured TTL. The cache
// only serves dashboard reads; settlement decisions always hit Postgres.
func (r *RedisCache) SetRound(ctx context.Context, round *models.Round) error {
	data, err := json.Marshal(round)
	if err != nil {
		return fmt.Errorf("failed to marshal round for cache: %w", err)
	}
	if err := r.client.Set(ctx, roundKey(round.ID), data, r.statusTTL).Err(); err != nil {
		return apperrors.NewCacheError("set round", err)
	}
	return nil
}

// GetRound retrieves a cached round. Returns nil on a cache miss.
func (r *RedisCache) GetRound(ctx context.Context, roundID string) (*models.Round, error) {
	data, err := r.client.Get(ctx, roundKey(roundID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, apperrors.NewCacheError("get round", err)
	}
	var round models.Round
	if err := json.Unmarshal(data, &round); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached round: %w", err)
	}
	return &round, nil
}

// InvalidateRound drops the cached state for a round. Called after any write
// that changes status, totals, or phase flags.
func (r *RedisCache) InvalidateRound(ctx context.Context, roundID string) error {
	if err := r.client.Del(ctx, roundKey(roundID)).Err(); err != nil {
		return apperrors.NewCacheError("invalidate round", err)
	}
	return nil
}
