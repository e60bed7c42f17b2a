package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all host configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Browser   BrowserConfig   `yaml:"browser"`
	Stream    StreamConfig    `yaml:"stream"`
	Logging   LogConfig       `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds the IPC/HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"9321" yaml:"port"`
	Host string `envconfig:"HOST" default:"127.0.0.1" yaml:"host"`
}

// BackendConfig holds the knowledge-backend collaborator configuration.
type BackendConfig struct {
	BaseURL  string `envconfig:"BACKEND_URL" default:"http://127.0.0.1:8123" yaml:"base_url"`
	ChatPath string `envconfig:"BACKEND_CHAT_PATH" default:"/api/chat/stream" yaml:"chat_path"`
}

// BrowserConfig holds tab and content-view configuration.
type BrowserConfig struct {
	DefaultURL      string `envconfig:"DEFAULT_URL" default:"about:blank" yaml:"default_url"`
	Headless        bool   `envconfig:"HEADLESS" default:"false" yaml:"headless"`
	UserDataDir     string `envconfig:"USER_DATA_DIR" default:"" yaml:"user_data_dir"`
	SkipSystemCheck bool   `envconfig:"SKIP_SYSTEM_CHECK" default:"false" yaml:"skip_system_check"`
}

// StreamConfig holds streaming chat proxy configuration.
type StreamConfig struct {
	IdleTimeout time.Duration `envconfig:"STREAM_IDLE_TIMEOUT" default:"30s" yaml:"idle_timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development"`
}

// RateLimitConfig holds HTTP rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" yaml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled"`
}

// Load loads configuration from environment variables, then overlays
// the optional YAML file at path (if non-empty and present). File
// values win over environment values.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("LUMEN", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if path != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration or returns defaults on failure.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Port: "9321", Host: "127.0.0.1"},
		Backend:   BackendConfig{BaseURL: "http://127.0.0.1:8123", ChatPath: "/api/chat/stream"},
		Browser:   BrowserConfig{DefaultURL: "about:blank"},
		Stream:    StreamConfig{IdleTimeout: 30 * time.Second},
		Logging:   LogConfig{Level: "info"},
		RateLimit: RateLimitConfig{RequestsPerSecond: 100, Burst: 200, Enabled: true},
	}
}

func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ChatURL returns the full backend chat-stream endpoint.
func (c *Config) ChatURL() string {
	return c.Backend.BaseURL + c.Backend.ChatPath
}
