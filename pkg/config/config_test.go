package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "memory", cfg.Locks.Type)
	assert.Equal(t, "davfs", cfg.Server.Auth.Realm)

	require.NoError(t, Validate(cfg))
}

func TestDefaultsNormalizeLevel(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "debug"}}
	ApplyDefaults(cfg)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}

func TestDefaultsTrimPrefixSlash(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Prefix: "/dav/"}}
	ApplyDefaults(cfg)
	assert.Equal(t, "/dav", cfg.Server.Prefix)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.Logging.Level = "LOUD" }},
		{"bad storage type", func(c *Config) { c.Storage.Type = "floppy" }},
		{"bad locks type", func(c *Config) { c.Locks.Type = "advisory" }},
		{"prefix without slash", func(c *Config) { c.Server.Prefix = "dav" }},
		{"auth without users", func(c *Config) { c.Server.Auth.Enabled = true }},
		{"s3 without bucket", func(c *Config) {
			c.Storage.Type = "s3"
			c.Storage.S3 = map[string]any{"region": "eu-west-1"}
		}},
		{"s3 without region", func(c *Config) {
			c.Storage.Type = "s3"
			c.Storage.S3 = map[string]any{"bucket": "b"}
		}},
		{"badger without path", func(c *Config) {
			c.Locks.Type = "badger"
			c.Locks.Badger = map[string]any{"path": ""}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
server:
  listen: ":9999"
  prefix: /dav
storage:
  type: localfs
  localfs:
    path: /srv/dav
locks:
  type: memory
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, ":9999", cfg.Server.Listen)
	assert.Equal(t, "/dav", cfg.Server.Prefix)
	assert.Equal(t, "localfs", cfg.Storage.Type)
	assert.Equal(t, "/srv/dav", cfg.Storage.Localfs["path"])
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Type)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`storage: {type: floppy}`), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestCreateLockRegistry(t *testing.T) {
	reg, err := CreateLockRegistry(&LocksConfig{Type: "memory"})
	require.NoError(t, err)
	assert.NotNil(t, reg)

	reg, err = CreateLockRegistry(&LocksConfig{Type: "none"})
	require.NoError(t, err)
	assert.NotNil(t, reg)

	_, err = CreateLockRegistry(&LocksConfig{Type: "zookeeper"})
	assert.Error(t, err)
}

func TestCreateStorage(t *testing.T) {
	fs, err := CreateStorage(t.Context(), &StorageConfig{Type: "memory"})
	require.NoError(t, err)
	assert.NotNil(t, fs)

	dir := t.TempDir()
	fs, err = CreateStorage(t.Context(), &StorageConfig{
		Type:    "localfs",
		Localfs: map[string]any{"path": dir},
	})
	require.NoError(t, err)
	assert.NotNil(t, fs)

	_, err = CreateStorage(t.Context(), &StorageConfig{
		Type:    "localfs",
		Localfs: map[string]any{"path": ""},
	})
	assert.Error(t, err)
}
