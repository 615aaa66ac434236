package config

import (
	"time"

	redisclient "github.com/embedkit/relay/internal/infra/redis"
	"github.com/embedkit/relay/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Backend   BackendConfig      `yaml:"backend"`
	Transport TransportConfig    `yaml:"transport"`
	Redis     redisclient.Config `yaml:"redis"`
	Database  postgres.Config    `yaml:"database"`
	Logging   LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// BackendConfig identifies the tenant backend the relay forwards to.
type BackendConfig struct {
	URL      string        `yaml:"url"`
	ChatPath string        `yaml:"chat_path"`
	ProbeURL string        `yaml:"probe_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

// TransportConfig tunes the resilient request layer.
type TransportConfig struct {
	MaxConcurrentRequests int           `yaml:"max_concurrent_requests"`
	CacheTTL              time.Duration `yaml:"cache_ttl"`
	HistorySize           int           `yaml:"history_size"`
	HealthCheckInterval   time.Duration `yaml:"health_check_interval"`
	MaxReconnectAttempts  int           `yaml:"max_reconnect_attempts"`
	ArchiveRetention      time.Duration `yaml:"archive_retention"` // 0 = keep forever
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
