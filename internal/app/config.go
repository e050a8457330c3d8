package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/mealvault/mealvault/internal/database"
	"github.com/mealvault/mealvault/internal/repository"
	"github.com/mealvault/mealvault/internal/retry"
)

// Config represents the runtime configuration for the MealVault backend.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Backup     BackupConfig     `mapstructure:"backup"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig locates the SQLite store file.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
	DSN  string `mapstructure:"dsn"`
}

// CacheConfig sizes the repository's in-memory caches.
type CacheConfig struct {
	DetailSize int `mapstructure:"detail_size"`
	ListSize   int `mapstructure:"list_size"`
}

// RetryConfig drives the write retry policy. MaxAttempts of 1 disables
// backoff entirely.
type RetryConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	InitialDelay  time.Duration `mapstructure:"initial_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	BackoffFactor float64       `mapstructure:"backoff_factor"`
}

// BackupConfig locates the artifact directory and controls the scheduler.
// An empty schedule disables automatic backups; Retention caps how many
// artifacts the scheduler keeps, oldest pruned first (0 keeps everything).
type BackupConfig struct {
	Dir       string `mapstructure:"dir"`
	Schedule  string `mapstructure:"schedule"`
	Retention int    `mapstructure:"retention"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// StoreConfig adapts the database section for OpenStore.
func (c DatabaseConfig) StoreConfig() database.Config {
	return database.Config{
		Path: c.Path,
		DSN:  c.DSN,
	}
}

// RetryPolicy adapts the retry section for the executor.
func (c RetryConfig) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:   c.MaxAttempts,
		InitialDelay:  c.InitialDelay,
		MaxDelay:      c.MaxDelay,
		BackoffFactor: c.BackoffFactor,
	}
}

// RepositoryConfig adapts cache and retry sections for the repository.
func (c *Config) RepositoryConfig() repository.Config {
	cfg := repository.DefaultConfig()
	if c.Cache.DetailSize > 0 {
		cfg.DetailCacheSize = c.Cache.DetailSize
	}
	if c.Cache.ListSize > 0 {
		cfg.ListCacheSize = c.Cache.ListSize
	}
	if c.Retry.MaxAttempts > 0 {
		cfg.WriteRetry = c.Retry.RetryPolicy()
	}
	return cfg
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("MEALVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.path", "./data/mealvault.db")

	v.SetDefault("cache.detail_size", 256)
	v.SetDefault("cache.list_size", 32)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_delay", "100ms")
	v.SetDefault("retry.max_delay", "2s")
	v.SetDefault("retry.backoff_factor", 2.0)

	v.SetDefault("backup.dir", "./data/backups")
	v.SetDefault("backup.schedule", "")
	v.SetDefault("backup.retention", 10)

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
