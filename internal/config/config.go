// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./config.yaml or /etc/fastchat/config.yaml)
//  3. Default values
//
// Categories:
//   - Storage: PostgreSQL connection, connectivity mode, pool bounds (storage.go)
//   - Server: listen address, CORS, rate limiting
//   - Flow engine: external conversation service (relay target)
//   - Gemini: model for summary/analysis generation
//
// Security: sensitive fields (passwords, API keys) are masked in MarshalJSON
// and String. Validation is fail-fast with sentinel errors usable via errors.Is.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"
)

// Environment tags recognized in Config.Environment.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Deployment environment: "development" (default) or "production".
	Environment string `mapstructure:"environment" json:"environment"`

	// Connectivity mode. When UseCloudSQL is true and Environment is
	// production, connections go through the Cloud SQL connector using
	// InstanceConnName; UseCloudSQL without production assumes a local
	// auth proxy on 127.0.0.1:5432.
	UseCloudSQL      bool   `mapstructure:"use_cloud_sql" json:"use_cloud_sql"`
	InstanceConnName string `mapstructure:"instance_connection_name" json:"instance_connection_name"`

	// Direct PostgreSQL connection parameters.
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Connection pool bounds and acquire behavior.
	PoolMinConns         int32 `mapstructure:"pool_min_conns" json:"pool_min_conns"`
	PoolMaxConns         int32 `mapstructure:"pool_max_conns" json:"pool_max_conns"`
	PoolAcquireTimeoutMS int   `mapstructure:"pool_acquire_timeout_ms" json:"pool_acquire_timeout_ms"`

	// HTTP server configuration.
	ServerAddr  string   `mapstructure:"server_addr" json:"server_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`

	// External flow engine (conversation relay target).
	FlowEngine FlowEngineConfig `mapstructure:"flow_engine" json:"flow_engine"`

	// Gemini model for conversation summaries and analyses.
	GeminiModel string `mapstructure:"gemini_model" json:"gemini_model"`

	// OTLP trace export (local agent).
	Otel OtelConfig `mapstructure:"otel" json:"otel"`
}

// FlowEngineConfig configures the external flow engine client.
type FlowEngineConfig struct {
	BaseURL string `mapstructure:"base_url" json:"base_url"`
	FlowID  string `mapstructure:"flow_id" json:"flow_id"`
	APIKey  string `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON
}

// OtelConfig configures the OTLP trace exporter.
type OtelConfig struct {
	AgentHost   string `mapstructure:"agent_host" json:"agent_host"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// AcquireTimeout returns the pool acquire timeout as a duration.
func (c *Config) AcquireTimeout() time.Duration {
	return time.Duration(c.PoolAcquireTimeoutMS) * time.Millisecond
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/fastchat")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults plus env apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{".", "/etc/fastchat"})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL has the highest priority for PostgreSQL settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", EnvDevelopment)
	v.SetDefault("use_cloud_sql", false)

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "fastchat")
	v.SetDefault("postgres_password", "fastchat_dev_password")
	v.SetDefault("postgres_db_name", "fastchat")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("pool_min_conns", 1)
	v.SetDefault("pool_max_conns", 20)
	v.SetDefault("pool_acquire_timeout_ms", 5000)

	v.SetDefault("server_addr", ":8080")
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("trust_proxy", false)
	v.SetDefault("rate_burst", 60)

	v.SetDefault("flow_engine.base_url", "http://localhost:7860")

	v.SetDefault("gemini_model", "gemini-2.5-flash")

	v.SetDefault("otel.agent_host", "localhost:4318")
	v.SetDefault("otel.service_name", "fastchat")
	v.SetDefault("otel.environment", "dev")
}

// bindEnvVariables binds environment variables explicitly. Deployment
// scripts set these rather than editing config files.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("environment", "ENVIRONMENT")
	mustBind("use_cloud_sql", "USE_CLOUD_SQL")
	mustBind("instance_connection_name", "CLOUD_SQL_CONNECTION_NAME")

	mustBind("postgres_host", "POSTGRES_HOST")
	mustBind("postgres_port", "POSTGRES_PORT")
	mustBind("postgres_user", "POSTGRES_USER")
	mustBind("postgres_password", "POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "POSTGRES_DB")
	mustBind("postgres_ssl_mode", "POSTGRES_SSL_MODE")

	mustBind("pool_min_conns", "FASTCHAT_POOL_MIN_CONNS")
	mustBind("pool_max_conns", "FASTCHAT_POOL_MAX_CONNS")
	mustBind("pool_acquire_timeout_ms", "FASTCHAT_POOL_ACQUIRE_TIMEOUT_MS")

	mustBind("server_addr", "FASTCHAT_ADDR")
	mustBind("cors_origins", "FASTCHAT_CORS_ORIGINS")
	mustBind("trust_proxy", "FASTCHAT_TRUST_PROXY")
	mustBind("rate_burst", "FASTCHAT_RATE_BURST")

	mustBind("flow_engine.base_url", "FLOW_ENGINE_URL")
	mustBind("flow_engine.flow_id", "FLOW_ENGINE_FLOW_ID")
	mustBind("flow_engine.api_key", "FLOW_ENGINE_API_KEY")

	mustBind("gemini_model", "FASTCHAT_GEMINI_MODEL")

	// NOTE: GEMINI_API_KEY is read directly by the genai client, not via viper.
}

// maskedValue is the placeholder for masked sensitive data. Full-width
// blocks avoid accidental substring matches against real secret content.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Secrets of 8 characters or
// fewer are fully masked; longer ones keep the first and last two
// characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.FlowEngine.APIKey = maskSecret(a.FlowEngine.APIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
