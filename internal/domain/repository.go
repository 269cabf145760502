// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Decision audit trail
	SaveDecision(ctx context.Context, tenantID string, d *Decision) error
	GetDecision(ctx context.Context, tenantID string, decisionID string) (*Decision, error)
	ListDecisions(ctx context.Context, tenantID string, since time.Time, limit int) ([]*Decision, error)

	// Custom resolution rule operations
	SaveRuleConfig(ctx context.Context, tenantID string, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, tenantID string, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context, tenantID string) ([]*RuleConfig, error)
	DeleteRuleConfig(ctx context.Context, tenantID string, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" yaml:"driver" toml:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" yaml:"sqlite_path" toml:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" yaml:"postgres_host" toml:"postgres_host"`
	PostgresPort     int    `json:"postgresPort" yaml:"postgres_port" toml:"postgres_port"`
	PostgresUser     string `json:"postgresUser" yaml:"postgres_user" toml:"postgres_user"`
	PostgresPassword string `json:"-" yaml:"postgres_password" toml:"postgres_password"`
	PostgresDB       string `json:"postgresDb" yaml:"postgres_db" toml:"postgres_db"`
	PostgresSSLMode  string `json:"postgresSslMode" yaml:"postgres_ssl_mode" toml:"postgres_ssl_mode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"max_open_conns" toml:"max_open_conns"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"max_idle_conns" toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"conn_max_lifetime" toml:"conn_max_lifetime"`
}
