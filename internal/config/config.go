package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the orchestrator.
type Config struct {
	// Server configuration (serve mode)
	HTTPPort int    `env:"SLIPWAY_HTTP_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Redis configuration; when disabled the in-memory adapters serve
	// the run store, artifact cache and event bus.
	Redis RedisConfig

	// Artifact cache configuration
	Cache CacheConfig

	// Pipeline execution configuration
	Pipelines PipelineConfig

	// Deployment controller configuration
	Deploy DeployConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Enabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// CacheConfig holds artifact cache configuration.
type CacheConfig struct {
	Capacity int           `env:"CACHE_CAPACITY" envDefault:"1024"`
	TTL      time.Duration `env:"CACHE_TTL" envDefault:"168h"`
}

// PipelineConfig holds service pipeline execution configuration.
type PipelineConfig struct {
	MaxConcurrent int64         `env:"PIPELINE_MAX_CONCURRENT" envDefault:"4"`
	MaxRetries    int           `env:"PIPELINE_MAX_RETRIES" envDefault:"3"`
	RetryDelay    time.Duration `env:"PIPELINE_RETRY_DELAY" envDefault:"5s"`
}

// DeployConfig holds deployment controller configuration.
type DeployConfig struct {
	PollInterval     time.Duration `env:"DEPLOY_POLL_INTERVAL" envDefault:"5s"`
	StabilityTimeout time.Duration `env:"DEPLOY_STABILITY_TIMEOUT" envDefault:"300s"`
	RollbackEnabled  bool          `env:"DEPLOY_ROLLBACK_ENABLED" envDefault:"true"`
}

// TimeoutConfig holds run-level timeout configuration.
type TimeoutConfig struct {
	RunTimeout      time.Duration `env:"TIMEOUT_RUN" envDefault:"3600s"` // 1 hour
	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required when redis is enabled")
	}

	if c.Cache.Capacity < 1 {
		return fmt.Errorf("cache capacity must be at least 1")
	}

	if c.Pipelines.MaxConcurrent < 1 {
		return fmt.Errorf("pipeline concurrency must be at least 1")
	}

	if c.Deploy.PollInterval <= 0 || c.Deploy.StabilityTimeout <= 0 {
		return fmt.Errorf("deploy poll interval and stability timeout must be positive")
	}
	if c.Deploy.PollInterval >= c.Deploy.StabilityTimeout {
		return fmt.Errorf("deploy poll interval must be shorter than the stability timeout")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// GetHTTPAddr returns the HTTP server address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
