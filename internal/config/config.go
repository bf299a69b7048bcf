package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Strategy selects how a turn is answered by the provider.
type Strategy string

const (
	StrategyStreaming Strategy = "streaming"
	StrategyPolling   Strategy = "polling"
)

// Config represents runtime configuration for the service. The provider API
// key is deliberately absent here: it is read from the environment only, so
// it never lands in a config file.
type Config struct {
	BasicConfig    BasicConfig    `json:"basic_config"`
	ProviderConfig ProviderConfig `json:"provider_config"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	Strategy      string `json:"strategy"`
}

type ProviderConfig struct {
	BaseURL     string `json:"base_url"`
	AssistantID string `json:"assistant_id"`
	Model       string `json:"model"`
	// Polling knobs for the legacy thread-run path.
	PollAttempts   int `json:"poll_attempts"`
	PollIntervalMS int `json:"poll_interval_ms"`
}

const (
	DefaultPollAttempts   = 60
	DefaultPollIntervalMS = 1000
)

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.ProviderConfig.AssistantID == "" {
		return nil, fmt.Errorf("assistant_id must be configured")
	}
	if cfg.ProviderConfig.PollAttempts <= 0 {
		cfg.ProviderConfig.PollAttempts = DefaultPollAttempts
	}
	if cfg.ProviderConfig.PollIntervalMS <= 0 {
		cfg.ProviderConfig.PollIntervalMS = DefaultPollIntervalMS
	}
	if _, err := cfg.ResponseStrategy(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResponseStrategy validates and normalizes the configured strategy flag.
func (c *Config) ResponseStrategy() (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(c.BasicConfig.Strategy)) {
	case "", string(StrategyStreaming):
		return StrategyStreaming, nil
	case string(StrategyPolling):
		return StrategyPolling, nil
	default:
		return "", fmt.Errorf("unsupported strategy: %s", c.BasicConfig.Strategy)
	}
}

// APIKey reads the provider credential from the environment. An empty result
// means the server must answer with a configuration error and make no
// upstream call.
func APIKey() string {
	return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
}
