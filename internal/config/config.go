package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Sync       SyncConfig       `yaml:"sync"`
	Cache      CacheConfig      `yaml:"cache"`
	API        APIConfig        `yaml:"api"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type SyncConfig struct {
	PollIntervalSeconds  int     `yaml:"poll_interval_seconds"`
	BatchSize            int     `yaml:"batch_size"`
	MaxRetries           int     `yaml:"max_retries"`
	RetryInitialSeconds  int     `yaml:"retry_initial_seconds"`
	RetryMaxSeconds      int     `yaml:"retry_max_seconds"`
	RetryBackoffFactor   float64 `yaml:"retry_backoff_factor"`
	PurgeRetentionHours  int     `yaml:"purge_retention_hours"`
	PurgeIntervalMinutes int     `yaml:"purge_interval_minutes"`
	StaleReclaimMinutes  int     `yaml:"stale_reclaim_minutes"`
	StatusPollSeconds    int     `yaml:"status_poll_seconds"`
	RecentActivityLimit  int     `yaml:"recent_activity_limit"`
	PendingWarnThreshold int     `yaml:"pending_warn_threshold"`
	FailedCritThreshold  int     `yaml:"failed_crit_threshold"`
}

type CacheConfig struct {
	DefaultTTLHours int `yaml:"default_ttl_hours"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env не обязателен, поэтому ошибку отсутствия файла игнорируем
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
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
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Sync.RetryBackoffFactor < 1 {
		return fmt.Errorf("sync.retry_backoff_factor must be >= 1, got %v", c.Sync.RetryBackoffFactor)
	}
	if c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api.auth.enabled requires at least one api key")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "contentsync"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	// Sync defaults
	if c.Sync.PollIntervalSeconds == 0 {
		c.Sync.PollIntervalSeconds = 60
	}
	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = 50
	}
	if c.Sync.MaxRetries == 0 {
		c.Sync.MaxRetries = 3
	}
	if c.Sync.RetryInitialSeconds == 0 {
		c.Sync.RetryInitialSeconds = 30
	}
	if c.Sync.RetryMaxSeconds == 0 {
		c.Sync.RetryMaxSeconds = 3600
	}
	if c.Sync.RetryBackoffFactor == 0 {
		c.Sync.RetryBackoffFactor = 2
	}
	if c.Sync.PurgeRetentionHours == 0 {
		c.Sync.PurgeRetentionHours = 24
	}
	if c.Sync.PurgeIntervalMinutes == 0 {
		c.Sync.PurgeIntervalMinutes = 60
	}
	if c.Sync.StaleReclaimMinutes == 0 {
		c.Sync.StaleReclaimMinutes = 10
	}
	if c.Sync.StatusPollSeconds == 0 {
		c.Sync.StatusPollSeconds = 30
	}
	if c.Sync.RecentActivityLimit == 0 {
		c.Sync.RecentActivityLimit = 20
	}
	if c.Sync.PendingWarnThreshold == 0 {
		c.Sync.PendingWarnThreshold = 100
	}
	if c.Sync.FailedCritThreshold == 0 {
		c.Sync.FailedCritThreshold = 10
	}

	if c.Cache.DefaultTTLHours == 0 {
		c.Cache.DefaultTTLHours = 24
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
