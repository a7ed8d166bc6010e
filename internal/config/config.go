package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"offlinesync/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	Storage    StorageConfig    `yaml:"storage"`
	Redis      RedisConfig      `yaml:"redis"`
	Remote     RemoteConfig     `yaml:"remote"`
	Queue      QueueConfig      `yaml:"queue"`
	API        APIConfig        `yaml:"api"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type StorageConfig struct {
	Backend    string       `yaml:"backend"`
	SQLitePath string       `yaml:"sqlite_path"`
	Backup     BackupConfig `yaml:"backup"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

type RemoteConfig struct {
	BaseURL   string          `yaml:"base_url"`
	Timeout   time.Duration   `yaml:"timeout"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type QueueConfig struct {
	MaxRetries      int           `yaml:"max_retries"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	ProbeInterval   time.Duration `yaml:"probe_interval"`
	HealthURL       string        `yaml:"health_url"`
	RecoverOnStart  *bool         `yaml:"recover_on_start"`
}

type APIConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Port      int             `yaml:"port"`
	APIKey    string          `yaml:"api_key"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

// Load reads the YAML config at configPath, expanding ${VAR} references
// from the environment and an optional .env file.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for sqlite backend")
		}
	case StorageRedis:
		if c.Storage.Backup.Enabled {
			return errors.New("storage.backup is only supported for sqlite backend")
		}
		if c.Redis.Address == "" {
			return errors.New("redis.address is required for redis backend")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if strings.TrimSpace(c.Remote.BaseURL) == "" {
		return errors.New("remote.base_url is required")
	}
	if _, err := url.ParseRequestURI(c.Remote.BaseURL); err != nil {
		return fmt.Errorf("remote.base_url: %w", err)
	}

	if c.Queue.MaxRetries < 1 {
		return errors.New("queue.max_retries must be positive")
	}
	return nil
}

// RecoverStuckOnStart reports whether stuck syncing records are reset at startup.
// Enabled unless explicitly disabled.
func (q QueueConfig) RecoverStuckOnStart() bool {
	return q.RecoverOnStart == nil || *q.RecoverOnStart
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "offlinesync"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageSQLite
	}
	if c.Storage.Backend == StorageSQLite && c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/queue.db"
	}
	if c.Storage.Backup.Enabled && c.Storage.Backup.StoragePath == "" {
		c.Storage.Backup.StoragePath = "data/backups"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = models.DefaultRedisKeyPrefix
	}
	if c.Remote.Timeout <= 0 {
		c.Remote.Timeout = models.DefaultRemoteTimeout
	}
	if c.Queue.MaxRetries == 0 {
		c.Queue.MaxRetries = models.MaxRetries
	}
	if c.Queue.RefreshInterval <= 0 {
		c.Queue.RefreshInterval = models.DefaultRefreshInterval
	}
	if c.Queue.ProbeInterval <= 0 {
		c.Queue.ProbeInterval = models.DefaultProbeInterval
	}
	if c.Queue.HealthURL == "" {
		c.Queue.HealthURL = strings.TrimRight(c.Remote.BaseURL, "/")
	}
	if c.API.Enabled && c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}
