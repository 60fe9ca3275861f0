package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HTTPPort      string `envconfig:"HTTP_PORT" default:"8080"`
	DatabaseURL   string `envconfig:"DATABASE_URL" required:"true"`
	RedisAddr     string `envconfig:"REDIS_ADDR" required:"true"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	APIKey        string `envconfig:"API_KEY"`
	WebhookURL    string `envconfig:"WEBHOOK_URL" default:"http://localhost:9090"`

	WebhookMaxRetries int `envconfig:"WEBHOOK_MAX_RETRIES" default:"3"`

	// Маршрутизация и обработка обновлений координат.
	Shards         int           `envconfig:"SHARDS" default:"16"`
	QueueSize      int           `envconfig:"QUEUE_SIZE" default:"256"`
	ProcessTimeout time.Duration `envconfig:"PROCESS_TIMEOUT" default:"5s"`
	StateIdleTTL   time.Duration `envconfig:"STATE_IDLE_TTL" default:"30m"`

	ZoneCacheTTL time.Duration `envconfig:"ZONE_CACHE_TTL" default:"60s"`
	RecentWindow time.Duration `envconfig:"RECENT_WINDOW" default:"24h"`
	StatsWindow  time.Duration `envconfig:"STATS_WINDOW" default:"30m"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	TracingEnabled     bool    `envconfig:"TRACING_ENABLED" default:"false"`
	TracingSampleRatio float64 `envconfig:"TRACING_SAMPLE_RATIO" default:"1"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Shards <= 0 {
		return fmt.Errorf("SHARDS must be positive, got %d", c.Shards)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("QUEUE_SIZE must be positive, got %d", c.QueueSize)
	}
	if c.ProcessTimeout <= 0 {
		return fmt.Errorf("PROCESS_TIMEOUT must be positive, got %s", c.ProcessTimeout)
	}
	if c.RecentWindow <= 0 {
		return fmt.Errorf("RECENT_WINDOW must be positive, got %s", c.RecentWindow)
	}
	return nil
}
