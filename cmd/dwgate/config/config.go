// Package config provides configuration structures for the gateway.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Transports the MCP surface can be served on.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config represents the gateway configuration.
type Config struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
	// EnvFile is the .env file holding backend variables. Empty searches
	// the working directory and its parents.
	EnvFile string `yaml:"env_file" json:"env_file"`

	// MCP transport
	Transport   string `yaml:"transport" json:"transport"`
	HTTPAddress string `yaml:"http_address" json:"http_address"`

	// Query execution
	DefaultLimit     int           `yaml:"default_limit" json:"default_limit"`
	MaxRows          int           `yaml:"max_rows" json:"max_rows"`
	QueryTimeout     time.Duration `yaml:"query_timeout" json:"query_timeout"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	LivenessInterval time.Duration `yaml:"liveness_interval" json:"liveness_interval"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// Connection pool configuration, shared by every instance
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool" json:"connection_pool"`

	// Schema introspection cache
	SchemaCache SchemaCacheConfig `yaml:"schema_cache" json:"schema_cache"`

	// Authentication for the HTTP transport
	Auth AuthConfig `yaml:"auth" json:"auth"`

	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Health  HealthConfig  `yaml:"health" json:"health"`
}

// ConnectionPoolConfig represents connection pool configuration.
type ConnectionPoolConfig struct {
	MaxOpenConnections int           `yaml:"max_open_connections" json:"max_open_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections" json:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime    time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold" json:"slow_query_threshold"`
}

// SchemaCacheConfig represents schema cache configuration.
type SchemaCacheConfig struct {
	Enabled    bool          `yaml:"enabled" json:"enabled"`
	MaxEntries int           `yaml:"max_entries" json:"max_entries"`
	TTL        time.Duration `yaml:"ttl" json:"ttl"`
}

// AuthConfig represents authentication configuration.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Type    string `yaml:"type" json:"type"` // bearer, jwt

	// Scopes every token must carry.
	Scopes []string `yaml:"scopes" json:"scopes"`

	BearerAuth BearerAuthConfig `yaml:"bearer_auth" json:"bearer_auth"`
	JWTAuth    JWTAuthConfig    `yaml:"jwt_auth" json:"jwt_auth"`
}

// BearerAuthConfig represents static bearer token configuration.
type BearerAuthConfig struct {
	Tokens map[string]string `yaml:"tokens" json:"tokens"` // token -> username
	// TokenLifetime is the expiry reported for a verified static token.
	TokenLifetime time.Duration `yaml:"token_lifetime" json:"token_lifetime"`
}

// JWTAuthConfig represents JWT authentication configuration.
type JWTAuthConfig struct {
	Secret   string `yaml:"secret" json:"secret"`
	Issuer   string `yaml:"issuer" json:"issuer"`
	Audience string `yaml:"audience" json:"audience"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
}

// HealthConfig represents the gRPC health service configuration.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate validates the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if !logLevels[c.LogLevel] {
		return fmt.Errorf("unsupported log level: %s", c.LogLevel)
	}

	switch c.Transport {
	case "":
		c.Transport = TransportStdio
	case TransportStdio:
	case TransportHTTP:
		if c.HTTPAddress == "" {
			c.HTTPAddress = "127.0.0.1:8080"
		}
	default:
		return fmt.Errorf("unsupported transport: %s", c.Transport)
	}

	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 100
	}
	if c.MaxRows <= 0 {
		c.MaxRows = 10000
	}
	if c.DefaultLimit > c.MaxRows {
		return fmt.Errorf("default limit %d exceeds max rows %d", c.DefaultLimit, c.MaxRows)
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 5 * time.Minute
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.LivenessInterval <= 0 {
		c.LivenessInterval = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}

	// Validate auth
	if c.Auth.Enabled {
		if c.Transport != TransportHTTP {
			return fmt.Errorf("auth requires the http transport")
		}
		switch c.Auth.Type {
		case "bearer":
			if len(c.Auth.BearerAuth.Tokens) == 0 {
				return fmt.Errorf("bearer auth requires tokens")
			}
			if c.Auth.BearerAuth.TokenLifetime <= 0 {
				c.Auth.BearerAuth.TokenLifetime = time.Hour
			}
		case "jwt":
			if c.Auth.JWTAuth.Secret == "" {
				return fmt.Errorf("JWT auth requires secret")
			}
		default:
			return fmt.Errorf("unsupported auth type: %s", c.Auth.Type)
		}
	}

	// Set defaults for connection pool
	if c.ConnectionPool.MaxOpenConnections <= 0 {
		c.ConnectionPool.MaxOpenConnections = 10
	}
	if c.ConnectionPool.MaxIdleConnections <= 0 {
		c.ConnectionPool.MaxIdleConnections = 2
	}
	if c.ConnectionPool.ConnMaxLifetime <= 0 {
		c.ConnectionPool.ConnMaxLifetime = 30 * time.Minute
	}
	if c.ConnectionPool.ConnMaxIdleTime <= 0 {
		c.ConnectionPool.ConnMaxIdleTime = 10 * time.Minute
	}
	if c.ConnectionPool.SlowQueryThreshold <= 0 {
		c.ConnectionPool.SlowQueryThreshold = 5 * time.Second
	}

	if c.SchemaCache.MaxEntries <= 0 {
		c.SchemaCache.MaxEntries = 256
	}
	if c.SchemaCache.TTL <= 0 {
		c.SchemaCache.TTL = 10 * time.Minute
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
	if c.Health.Enabled && c.Health.Address == "" {
		c.Health.Address = ":9091"
	}

	return nil
}

// LoadFromFile reads a YAML configuration file over DefaultConfig. Keys the
// file omits keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// YAML renders the configuration with secrets masked.
func (c *Config) YAML() (string, error) {
	out := *c
	if len(c.Auth.BearerAuth.Tokens) > 0 {
		out.Auth.BearerAuth.Tokens = make(map[string]string, len(c.Auth.BearerAuth.Tokens))
		for _, user := range c.Auth.BearerAuth.Tokens {
			out.Auth.BearerAuth.Tokens["****"+user] = user
		}
	}
	if c.Auth.JWTAuth.Secret != "" {
		out.Auth.JWTAuth.Secret = "****"
	}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	return string(data), nil
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:         "info",
		Transport:        TransportStdio,
		DefaultLimit:     100,
		MaxRows:          10000,
		QueryTimeout:     5 * time.Minute,
		ConnectTimeout:   30 * time.Second,
		LivenessInterval: 30 * time.Second,
		ShutdownTimeout:  30 * time.Second,
		ConnectionPool: ConnectionPoolConfig{
			MaxOpenConnections: 10,
			MaxIdleConnections: 2,
			ConnMaxLifetime:    30 * time.Minute,
			ConnMaxIdleTime:    10 * time.Minute,
			SlowQueryThreshold: 5 * time.Second,
		},
		SchemaCache: SchemaCacheConfig{
			Enabled:    true,
			MaxEntries: 256,
			TTL:        10 * time.Minute,
		},
		Auth: AuthConfig{
			Enabled: false,
			Type:    "bearer",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
		},
		Health: HealthConfig{
			Enabled: false,
			Address: ":9091",
		},
	}
}
