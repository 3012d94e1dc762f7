// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Evaluation results
	SaveEvaluation(ctx context.Context, tenantID string, eval *Evaluation) error
	GetEvaluation(ctx context.Context, tenantID string, evalID string) (*Evaluation, error)
	CountEvaluationsByApplicant(ctx context.Context, tenantID string, applicantID string, since time.Time) (int, error)

	// Income analyses
	SaveIncomeAnalysis(ctx context.Context, tenantID string, analysis *IncomeAnalysis) error
	GetIncomeAnalysis(ctx context.Context, tenantID string, analysisID string) (*IncomeAnalysis, error)

	// Policy rule configuration operations
	SaveRuleConfig(ctx context.Context, tenantID string, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, tenantID string, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context, tenantID string) ([]*RuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" toml:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" toml:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" toml:"postgres_host"`
	PostgresPort     int    `json:"postgresPort" toml:"postgres_port"`
	PostgresUser     string `json:"postgresUser" toml:"postgres_user"`
	PostgresPassword string `json:"-" toml:"postgres_password"`
	PostgresDB       string `json:"postgresDb" toml:"postgres_db"`
	PostgresSSLMode  string `json:"postgresSslMode" toml:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" toml:"max_open_conns"`
	MaxIdleConns    int           `json:"maxIdleConns" toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" toml:"conn_max_lifetime"`
}
