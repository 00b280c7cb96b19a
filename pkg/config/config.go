package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete davfs server configuration.
//
// This structure captures all configurable aspects of the server:
//   - Logging configuration
//   - HTTP server settings
//   - Storage backend selection and backend-specific configuration
//   - Lock registry selection and registry-specific configuration
//   - Metrics exposure
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DAVFS_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values (lowest priority)
//
// Backend Configuration Pattern:
// Each backend defines its own configuration shape. The Config struct
// contains type-specific sections (e.g. storage.localfs, storage.s3) and
// only the section matching the selected type is used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains HTTP server settings
	Server ServerConfig `mapstructure:"server"`

	// Storage specifies the storage backend type and type-specific
	// configuration
	Storage StorageConfig `mapstructure:"storage"`

	// Locks specifies the lock registry type and type-specific
	// configuration
	Locks LocksConfig `mapstructure:"locks"`

	// Metrics controls the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Listen is the address the server binds to (e.g. ":8080")
	Listen string `mapstructure:"listen" validate:"required"`

	// Prefix mounts the DAV namespace under a URL prefix (e.g. "/dav").
	// Empty serves the namespace at the root.
	Prefix string `mapstructure:"prefix" validate:"omitempty,startswith=/"`

	// ReadTimeout bounds reading a full request, body included
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"required,gt=0"`

	// WriteTimeout bounds writing a full response
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"required,gt=0"`

	// IdleTimeout bounds keep-alive waits
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"required,gt=0"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// Auth configures request authentication
	Auth AuthConfig `mapstructure:"auth"`

	// RateLimit bounds the accepted request rate
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig controls request throttling.
//
// A zero rate disables throttling. A zero burst defaults to the
// sustained rate.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate across all clients
	RequestsPerSecond uint `mapstructure:"requests_per_second"`

	// Burst is the token bucket capacity
	Burst uint `mapstructure:"burst"`
}

// AuthConfig controls HTTP Basic authentication.
//
// Authentication is attribution-only: a verified username travels to the
// storage backend as the principal, and lock leases record it as their
// owner principal. There is no per-path authorization layer.
type AuthConfig struct {
	// Enabled turns Basic authentication on
	Enabled bool `mapstructure:"enabled"`

	// Realm is the value announced in WWW-Authenticate
	Realm string `mapstructure:"realm"`

	// Users maps username to plaintext password. Intended for small
	// deployments and tests; anything serious terminates auth upstream.
	Users map[string]string `mapstructure:"users"`
}

// StorageConfig specifies storage backend configuration.
//
// The Type field determines which backend is used. Only the
// corresponding type-specific section is read.
type StorageConfig struct {
	// Type specifies which storage backend to use
	// Valid values: memory, localfs, s3
	Type string `mapstructure:"type" validate:"required,oneof=memory localfs s3"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory"`

	// Localfs contains local-filesystem-specific configuration
	// Only used when Type = "localfs"
	Localfs map[string]any `mapstructure:"localfs"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3"`
}

// LocksConfig specifies lock registry configuration.
type LocksConfig struct {
	// Type specifies which lock registry to use
	// Valid values: memory, badger, none
	Type string `mapstructure:"type" validate:"required,oneof=memory badger none"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled turns metrics collection and the /metrics endpoint on
	Enabled bool `mapstructure:"enabled"`

	// Listen is the address of the metrics listener; empty shares the
	// main server listener
	Listen string `mapstructure:"listen"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DAVFS_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file
// settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the DAVFS_ prefix and underscores
	// Example: DAVFS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DAVFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/davfs/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// no config file is acceptable: defaults apply
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "davfs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "davfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
