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

	// GetInsights retrieves cached learning insights for a case.
	GetInsights(ctx context.Context, tenantID string, caseID string) (*LearningInsights, error)

	// SetInsights caches learning insights for a case. Insights are
	// derived from slow repository scans, so reads are cached until an
	// override on a similar case invalidates them.
	SetInsights(ctx context.Context, tenantID string, caseID string, insights *LearningInsights, ttl time.Duration) error

	// InvalidateInsights drops all cached insights for a tenant.
	// Called when a new override changes the learning signal.
	InvalidateInsights(ctx context.Context, tenantID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
