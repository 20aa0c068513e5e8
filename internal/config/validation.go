package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidEnvironment indicates an unknown environment tag.
	ErrInvalidEnvironment = errors.New("invalid environment")

	// ErrMissingInstanceName indicates managed connector mode was requested
	// without an instance connection name.
	ErrMissingInstanceName = errors.New("missing instance connection name")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidPoolBounds indicates pool min/max sizes are inconsistent.
	ErrInvalidPoolBounds = errors.New("invalid pool bounds")

	// ErrInvalidAcquireTimeout indicates the pool acquire timeout is out of range.
	ErrInvalidAcquireTimeout = errors.New("invalid pool acquire timeout")

	// ErrInvalidFlowEngineURL indicates the flow engine base URL is invalid.
	ErrInvalidFlowEngineURL = errors.New("invalid flow engine URL")
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// Environment tag
	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		return fmt.Errorf("%w: must be %q or %q, got %q",
			ErrInvalidEnvironment, EnvDevelopment, EnvProduction, c.Environment)
	}

	// Connectivity mode: managed connector without an instance connection
	// name is a configuration error, caught here before any pool exists.
	if c.UseCloudSQL && c.Environment == EnvProduction && c.InstanceConnName == "" {
		return fmt.Errorf("%w: instance_connection_name (project:region:instance) is required "+
			"when use_cloud_sql is enabled in production", ErrMissingInstanceName)
	}

	// PostgreSQL connection parameters (direct mode)
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set", ErrInvalidPostgresPassword)
	}
	if c.PostgresPassword == "fastchat_dev_password" && c.Environment == EnvProduction {
		return fmt.Errorf("%w: default development password cannot be used in production",
			ErrInvalidPostgresPassword)
	}
	if c.PostgresPassword == "fastchat_dev_password" {
		slog.Warn("using default development password for PostgreSQL",
			"hint", "change postgres_password before deploying")
	}

	// Modern SSL modes only; allow/prefer are MITM-vulnerable.
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: must be one of %v, got %q",
			ErrInvalidPostgresSSLMode, validSSLModes, c.PostgresSSLMode)
	}

	// Pool bounds
	if c.PoolMaxConns < 1 {
		return fmt.Errorf("%w: pool_max_conns must be at least 1, got %d",
			ErrInvalidPoolBounds, c.PoolMaxConns)
	}
	if c.PoolMinConns < 0 || c.PoolMinConns > c.PoolMaxConns {
		return fmt.Errorf("%w: pool_min_conns must be between 0 and pool_max_conns (%d), got %d",
			ErrInvalidPoolBounds, c.PoolMaxConns, c.PoolMinConns)
	}
	if c.PoolAcquireTimeoutMS < 100 || c.PoolAcquireTimeoutMS > 120_000 {
		return fmt.Errorf("%w: pool_acquire_timeout_ms must be between 100 and 120000, got %d",
			ErrInvalidAcquireTimeout, c.PoolAcquireTimeoutMS)
	}

	// Flow engine: required in production. In development the chat
	// endpoint is simply disabled when unset.
	if c.FlowEngine.BaseURL == "" && c.Environment == EnvProduction {
		return fmt.Errorf("%w: flow_engine.base_url cannot be empty in production", ErrInvalidFlowEngineURL)
	}

	return nil
}
