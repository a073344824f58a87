package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Cooldown keys are namespaced per (event, market, outcome) with
// venue-agnostic scope; the lock key is shared by all workers.
const (
	cooldownKeyFormat = "signals:cooldown:dislocation:%s:%s:%s"
	cycleLockKey      = "signals:cycle:lock"
)

// RedisCache provides the two pieces of cross-cycle shared state: dislocation
// signal cooldowns and the cycle-level distributed lock. Both rely on the
// atomicity of SET NX with expiry.
type RedisCache struct {
	client *redis.Client
	logger zerolog.Logger
}

// RedisCacheConfig holds Redis cache configuration
type RedisCacheConfig struct {
	Addr     string // e.g., "localhost:6379"
	Password string
	DB       int
}

// NewRedisCache creates a new Redis cache
func NewRedisCache(config RedisCacheConfig, logger zerolog.Logger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisCache{
		client: client,
		logger: logger.With().Str("component", "redis_cache").Logger(),
	}
}

// AcquireCooldown atomically claims the dislocation cooldown for the key.
// Returns false when the key is already held, meaning a signal for this
// (event, market, outcome) was emitted within the TTL and the new one must be
// suppressed.
func (c *RedisCache) AcquireCooldown(ctx context.Context, eventID, market, outcome string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf(cooldownKeyFormat, eventID, market, outcome)

	acquired, err := c.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set cooldown key: %w", err)
	}

	if !acquired {
		c.logger.Debug().
			Str("key", key).
			Msg("dislocation cooldown active, suppressing signal")
	}

	return acquired, nil
}

// AcquireCycleLock atomically claims the detection-cycle lock. A worker that
// fails to acquire it skips the cycle entirely.
func (c *RedisCache) AcquireCycleLock(ctx context.Context, ttl time.Duration) (bool, error) {
	acquired, err := c.client.SetNX(ctx, cycleLockKey, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set cycle lock: %w", err)
	}
	return acquired, nil
}

// ReleaseCycleLock releases the detection-cycle lock. The TTL covers the case
// where a worker dies before releasing.
func (c *RedisCache) ReleaseCycleLock(ctx context.Context) error {
	if err := c.client.Del(ctx, cycleLockKey).Err(); err != nil {
		return fmt.Errorf("failed to release cycle lock: %w", err)
	}
	return nil
}

// Ping checks Redis connection
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
