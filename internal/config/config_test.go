package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"offlinesync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("OFFLINESYNC_REMOTE", "https://api.example.com")

	yamlContent := `
app:
  name: "queue-test"
storage:
  backend: "sqlite"
  sqlite_path: "test.db"
remote:
  base_url: "${OFFLINESYNC_REMOTE}"
  timeout: 5s
queue:
  refresh_interval: 1m
  recover_on_start: false
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "queue-test", cfg.App.Name)
	assert.Equal(t, "https://api.example.com", cfg.Remote.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, time.Minute, cfg.Queue.RefreshInterval)
	assert.Equal(t, models.MaxRetries, cfg.Queue.MaxRetries)
	assert.Equal(t, "https://api.example.com", cfg.Queue.HealthURL)
	assert.False(t, cfg.Queue.RecoverStuckOnStart())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	base := func() Config {
		return Config{
			Storage: StorageConfig{Backend: StorageSQLite, SQLitePath: "q.db"},
			Remote:  RemoteConfig{BaseURL: "http://localhost:8080"},
			Queue:   QueueConfig{MaxRetries: 3},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "memory backend", mutate: func(c *Config) { c.Storage = StorageConfig{Backend: StorageMemory} }},
		{name: "missing sqlite path", mutate: func(c *Config) { c.Storage.SQLitePath = "" }, wantErr: true},
		{name: "redis without address", mutate: func(c *Config) { c.Storage.Backend = StorageRedis }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "indexeddb" }, wantErr: true},
		{name: "missing base url", mutate: func(c *Config) { c.Remote.BaseURL = "" }, wantErr: true},
		{name: "relative base url", mutate: func(c *Config) { c.Remote.BaseURL = "api" }, wantErr: true},
		{name: "zero retries", mutate: func(c *Config) { c.Queue.MaxRetries = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{Remote: RemoteConfig{BaseURL: "http://remote/"}, API: APIConfig{Enabled: true}}
	cfg.applyDefaults()

	if cfg.Storage.Backend != StorageSQLite {
		t.Errorf("expected default backend sqlite, got %s", cfg.Storage.Backend)
	}
	if cfg.Storage.SQLitePath == "" {
		t.Errorf("expected default sqlite path")
	}
	if cfg.Queue.RefreshInterval != 30*time.Second {
		t.Errorf("expected default refresh interval 30s, got %s", cfg.Queue.RefreshInterval)
	}
	if cfg.Queue.HealthURL != "http://remote" {
		t.Errorf("expected health url derived from base url, got %s", cfg.Queue.HealthURL)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("expected default api port 8080, got %d", cfg.API.Port)
	}
	if cfg.Redis.KeyPrefix != models.DefaultRedisKeyPrefix {
		t.Errorf("expected default redis prefix, got %s", cfg.Redis.KeyPrefix)
	}
	if !cfg.Queue.RecoverStuckOnStart() {
		t.Errorf("expected stuck recovery enabled by default")
	}
}
