// Package domain defines the core interfaces and types for Harrier.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Case operations
	SaveCase(ctx context.Context, tenantID string, c *Case) error
	GetCase(ctx context.Context, tenantID string, caseID string) (*Case, error)
	ListRecentCases(ctx context.Context, tenantID string, limit int) ([]*Case, error)

	// Rule configuration operations
	SaveRule(ctx context.Context, tenantID string, rule *Rule) error
	GetRule(ctx context.Context, tenantID string, ruleID string) (*Rule, error)
	ListRules(ctx context.Context, tenantID string) ([]*Rule, error)

	// Override operations
	SaveOverride(ctx context.Context, tenantID string, o *Override) error
	GetOverride(ctx context.Context, tenantID string, overrideID string) (*Override, error)
	UpdateOverride(ctx context.Context, tenantID string, o *Override) error
	ListOverridesByCase(ctx context.Context, tenantID string, caseID string) ([]*Override, error)
	ListOverridesByType(ctx context.Context, tenantID string, overrideType string) ([]*Override, error)
	ListOverrides(ctx context.Context, tenantID string, limit int) ([]*Override, error)
	ListOverridesPendingValidation(ctx context.Context, tenantID string) ([]*Override, error)
	ListOverridesForTraining(ctx context.Context, tenantID string, overrideType string, since time.Time) ([]*Override, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
