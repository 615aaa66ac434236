package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Backend.URL == "" {
		return nil, fmt.Errorf("backend.url is required")
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Backend.ChatPath == "" {
		cfg.Backend.ChatPath = "/api/chat"
	}
	if cfg.Backend.ProbeURL == "" {
		cfg.Backend.ProbeURL = cfg.Backend.URL + "/health"
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = 30 * time.Second
	}
	if cfg.Transport.MaxConcurrentRequests == 0 {
		cfg.Transport.MaxConcurrentRequests = 6
	}
	if cfg.Transport.CacheTTL == 0 {
		cfg.Transport.CacheTTL = 5 * time.Minute
	}
	if cfg.Transport.HistorySize == 0 {
		cfg.Transport.HistorySize = 1000
	}
	if cfg.Transport.HealthCheckInterval == 0 {
		cfg.Transport.HealthCheckInterval = 120 * time.Second
	}
	if cfg.Transport.MaxReconnectAttempts == 0 {
		cfg.Transport.MaxReconnectAttempts = 5
	}

	return &cfg, nil
}
