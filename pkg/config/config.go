// Package config provides configuration loading for the café engine.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cafe/pkg/storage/tokenstore"
)

// Config is the complete runtime configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	API        APIConfig        `yaml:"api"`
	TokenStore TokenStoreConfig `yaml:"token_store"`
	Orders     OrdersConfig     `yaml:"orders"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig configures the UI host.
type ServerConfig struct {
	// Addr is the listen address; the PORT environment variable overrides it.
	Addr string `yaml:"addr"`
	// Domain switches to HTTPS on :443 with an HTTP redirect on :80.
	Domain       string        `yaml:"domain"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// APIConfig configures the remote café API.
type APIConfig struct {
	// BaseURL includes the /api prefix.
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// RateLimit is requests per second; 0 disables throttling.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// TokenStoreConfig selects where the admin token survives restarts.
type TokenStoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// OrdersConfig tunes the order lifecycle.
type OrdersConfig struct {
	AllowStatusRegression bool `yaml:"allow_status_regression"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8765",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		API: APIConfig{
			BaseURL:   "http://localhost:8000/api",
			Timeout:   15 * time.Second,
			RateLimit: 20,
			Burst:     10,
		},
		TokenStore: TokenStoreConfig{
			Driver: tokenstore.DriverFile,
			Path:   "data/token.json",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" && c.Server.Domain == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL")
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must not be negative")
	}
	switch strings.ToLower(c.TokenStore.Driver) {
	case tokenstore.DriverMemory:
	case tokenstore.DriverFile, tokenstore.DriverSQLite:
		if c.TokenStore.Path == "" {
			return fmt.Errorf("token_store.path is required for driver %s", c.TokenStore.Driver)
		}
	default:
		return fmt.Errorf("token_store.driver must be file, sqlite or memory")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Merge merges another config into this one (other takes precedence for non-zero values).
// AllowStatusRegression can only be switched on this way.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Server
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.Domain != "" {
		c.Server.Domain = other.Server.Domain
	}
	if other.Server.ReadTimeout != 0 {
		c.Server.ReadTimeout = other.Server.ReadTimeout
	}
	if other.Server.WriteTimeout != 0 {
		c.Server.WriteTimeout = other.Server.WriteTimeout
	}
	if other.Server.IdleTimeout != 0 {
		c.Server.IdleTimeout = other.Server.IdleTimeout
	}

	// API
	if other.API.BaseURL != "" {
		c.API.BaseURL = other.API.BaseURL
	}
	if other.API.Timeout != 0 {
		c.API.Timeout = other.API.Timeout
	}
	if other.API.RateLimit != 0 {
		c.API.RateLimit = other.API.RateLimit
	}
	if other.API.Burst != 0 {
		c.API.Burst = other.API.Burst
	}

	// Token store
	if other.TokenStore.Driver != "" {
		c.TokenStore.Driver = other.TokenStore.Driver
	}
	if other.TokenStore.Path != "" {
		c.TokenStore.Path = other.TokenStore.Path
	}

	// Orders
	if other.Orders.AllowStatusRegression {
		c.Orders.AllowStatusRegression = true
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}
}

// ApplyEnv lets process managers override the listen port and the API location.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if port := strings.TrimSpace(getenv("PORT")); port != "" {
		c.Server.Addr = ":" + port
	}
	if base := strings.TrimSpace(getenv("CAFE_API_URL")); base != "" {
		c.API.BaseURL = base
	}
}
