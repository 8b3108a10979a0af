// Package config provides the storecore configuration schema.
// Durations travel as strings ("30m", "15m") and are parsed at the
// point of use; validation checks they parse and are positive.
package config

type Config struct {
	// Server configures the dev server's HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Store selects and configures the data store backend.
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Auth configures the session lifecycle.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// RateLimit configures the sliding-window rate limiter.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// CSRF configures the anti-forgery token lifecycle.
	CSRF CSRFConfig `yaml:"csrf" mapstructure:"csrf"`

	// Monitor configures the background security sweep.
	Monitor MonitorConfig `yaml:"monitor" mapstructure:"monitor"`

	// DevMode enables development features (verbose logging, seed data).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// HTTPAddr is the address to listen on. Defaults to localhost only.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level: debug, info, warn, error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// StoreConfig selects the data store backend.
type StoreConfig struct {
	// Backend is one of "memory", "sqlite" or "rest".
	Backend string `yaml:"backend" mapstructure:"backend" validate:"omitempty,oneof=memory sqlite rest"`

	// SQLitePath is the database file path for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`

	// RESTURL is the base URL of the hosted record store.
	RESTURL string `yaml:"rest_url" mapstructure:"rest_url" validate:"omitempty,url"`

	// RESTAPIKey authenticates calls to the hosted store.
	RESTAPIKey string `yaml:"rest_api_key" mapstructure:"rest_api_key"`

	// Timeout bounds each store call (e.g. "15s").
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`
}

// AuthConfig configures the session lifecycle.
type AuthConfig struct {
	// SeedFile is the YAML seed for the local dev provider.
	SeedFile string `yaml:"seed_file" mapstructure:"seed_file"`

	// MaxSessionAge is the ceiling on provider session age (e.g. "24h").
	MaxSessionAge string `yaml:"max_session_age" mapstructure:"max_session_age" validate:"omitempty,duration"`

	// RecheckInterval is the period of the session re-validation (e.g. "5m").
	RecheckInterval string `yaml:"recheck_interval" mapstructure:"recheck_interval" validate:"omitempty,duration"`
}

// RateLimitConfig configures the sliding-window rate limiter.
type RateLimitConfig struct {
	// Window is the sliding attempt window (e.g. "15m").
	Window string `yaml:"window" mapstructure:"window" validate:"omitempty,duration"`

	// MaxAttempts is the attempt budget within the window.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts" validate:"omitempty,min=1"`

	// BlockDuration is how long a key stays blocked (e.g. "30m").
	BlockDuration string `yaml:"block_duration" mapstructure:"block_duration" validate:"omitempty,duration"`

	// ExemptOperations bypass limiting entirely. This is a product
	// policy decision carried as configuration, not a hardcoded list.
	ExemptOperations []string `yaml:"exempt_operations" mapstructure:"exempt_operations"`

	// CleanupInterval is how often expired entries are swept (e.g. "5m").
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty,duration"`
}

// CSRFConfig configures the anti-forgery token lifecycle.
type CSRFConfig struct {
	// TTL is the token lifetime (e.g. "30m").
	TTL string `yaml:"ttl" mapstructure:"ttl" validate:"omitempty,duration"`

	// RefreshWindow is how close to expiry a refresh is suggested (e.g. "5m").
	RefreshWindow string `yaml:"refresh_window" mapstructure:"refresh_window" validate:"omitempty,duration"`
}

// MonitorConfig configures the background security sweep.
type MonitorConfig struct {
	// SweepInterval is the period of the sweep (e.g. "5m").
	SweepInterval string `yaml:"sweep_interval" mapstructure:"sweep_interval" validate:"omitempty,duration"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Bind to localhost only; network access must be explicit.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Store.Timeout == "" {
		c.Store.Timeout = "15s"
	}

	if c.Auth.MaxSessionAge == "" {
		c.Auth.MaxSessionAge = "24h"
	}
	if c.Auth.RecheckInterval == "" {
		c.Auth.RecheckInterval = "5m"
	}

	if c.RateLimit.Window == "" {
		c.RateLimit.Window = "15m"
	}
	if c.RateLimit.MaxAttempts == 0 {
		c.RateLimit.MaxAttempts = 5
	}
	if c.RateLimit.BlockDuration == "" {
		c.RateLimit.BlockDuration = "30m"
	}
	if c.RateLimit.ExemptOperations == nil {
		c.RateLimit.ExemptOperations = []string{"settings.update", "catalog.reindex"}
	}
	if c.RateLimit.CleanupInterval == "" {
		c.RateLimit.CleanupInterval = "5m"
	}

	if c.CSRF.TTL == "" {
		c.CSRF.TTL = "30m"
	}
	if c.CSRF.RefreshWindow == "" {
		c.CSRF.RefreshWindow = "5m"
	}

	if c.Monitor.SweepInterval == "" {
		c.Monitor.SweepInterval = "5m"
	}
}

// SetDevDefaults applies permissive defaults for development mode so
// `serve --dev` runs with no config file at all.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	if c.Server.LogLevel == "info" {
		c.Server.LogLevel = "debug"
	}
	if c.Store.Backend == "memory" && c.Store.SQLitePath == "" {
		c.Store.Backend = "sqlite"
		c.Store.SQLitePath = "storecore-dev.db"
	}
}
