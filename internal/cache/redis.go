package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// redisNamespace prefixes every key so Kestrel can share a Redis database.
const redisNamespace = "kestrel:"

// incrWithExpiry starts the window on the first hit so the counter expires
// at a fixed time regardless of later hits.
var incrWithExpiry = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// RedisCache implements domain.Cache on Redis. It backs the pro tier and
// is L2 behind the local LRU, so evaluations and rate windows are shared
// by every Kestrel node.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache connects to the Redis instance in cfg.
func NewRedisCache(cfg domain.CacheConfig) (*RedisCache, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisCache{client: client}, nil
}

func redisKey(tenantID, key string) (string, error) {
	k, err := scopedKey(tenantID, key)
	if err != nil {
		return "", err
	}
	return redisNamespace + k, nil
}

// Get retrieves a value, returning nil on a miss.
func (c *RedisCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	k, err := redisKey(tenantID, key)
	if err != nil {
		return nil, err
	}

	val, err := c.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Set stores a value. A ttl of zero or less never expires.
func (c *RedisCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	k, err := redisKey(tenantID, key)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return c.client.Set(ctx, k, value, ttl).Err()
}

// Delete removes a value.
func (c *RedisCache) Delete(ctx context.Context, tenantID string, key string) error {
	k, err := redisKey(tenantID, key)
	if err != nil {
		return err
	}
	return c.client.Del(ctx, k).Err()
}

// GetEvaluation retrieves a cached evaluation from Redis.
func (c *RedisCache) GetEvaluation(ctx context.Context, tenantID string, evalID string) (*domain.Evaluation, error) {
	return getEvaluation(ctx, c, tenantID, evalID)
}

// SetEvaluation caches a scored evaluation in Redis.
func (c *RedisCache) SetEvaluation(ctx context.Context, tenantID string, eval *domain.Evaluation, ttl time.Duration) error {
	return setEvaluation(ctx, c, tenantID, eval, ttl)
}

// IncrementCounter increments a fixed-window counter atomically.
func (c *RedisCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	k, err := redisKey(tenantID, counterKey(key))
	if err != nil {
		return 0, err
	}
	if window <= 0 {
		return 0, fmt.Errorf("counter window must be positive, got %s", window)
	}

	count, err := incrWithExpiry.Run(ctx, c.client, []string{k}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis increment %s: %w", key, err)
	}
	return count, nil
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
