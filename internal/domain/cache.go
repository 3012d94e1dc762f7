package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetEvaluation retrieves a cached evaluation.
	// Returns nil, nil if not cached.
	GetEvaluation(ctx context.Context, tenantID string, evalID string) (*Evaluation, error)

	// SetEvaluation caches an evaluation for read-through lookups.
	SetEvaluation(ctx context.Context, tenantID string, eval *Evaluation, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used for request rate limiting within a time window.
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `json:"type" toml:"type"`

	// Local LRU cache settings (Community tier)
	LocalMaxSize int           `json:"localMaxSize" toml:"local_max_size"`
	LocalTTL     time.Duration `json:"localTtl" toml:"local_ttl"`

	// Redis settings (Pro tier)
	RedisAddr     string `json:"redisAddr" toml:"redis_addr"`
	RedisPassword string `json:"-" toml:"redis_password"`
	RedisDB       int    `json:"redisDb" toml:"redis_db"`

	// Two-phase settings
	EnableTwoPhase bool `json:"enableTwoPhase" toml:"enable_two_phase"` // If true, check local first, then Redis

	// EvaluationTTL bounds how long scored evaluations stay cached.
	EvaluationTTL time.Duration `json:"evaluationTtl" toml:"evaluation_ttl"`
}
