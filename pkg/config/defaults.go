package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields.
//
// This function is called after loading configuration from file and
// environment variables to fill in any missing values.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Backend-specific defaults are handled by the factories
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStorageDefaults(&cfg.Storage)
	applyLocksDefaults(&cfg.Locks)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
}

// applyServerDefaults sets HTTP server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 5 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Auth.Realm == "" {
		cfg.Auth.Realm = "davfs"
	}
	// a trailing slash on the prefix would produce double slashes in hrefs
	cfg.Prefix = strings.TrimSuffix(cfg.Prefix, "/")
}

// applyStorageDefaults sets storage backend defaults.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}

	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Localfs == nil {
		cfg.Localfs = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	if _, ok := cfg.Localfs["path"]; !ok {
		cfg.Localfs["path"] = "/tmp/davfs-data"
	}
}

// applyLocksDefaults sets lock registry defaults.
func applyLocksDefaults(cfg *LocksConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if _, ok := cfg.Badger["path"]; !ok {
		cfg.Badger["path"] = "/tmp/davfs-locks"
	}
}

// GetDefaultConfig returns a Config struct with all default values
// applied. Useful for generating sample configuration files and for
// tests.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
