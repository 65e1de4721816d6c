package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// ServersFile is the path to the MCP server definitions (JSON)
	ServersFile string

	// RequestTimeout bounds every JSON-RPC request awaiting its reply
	RequestTimeout time.Duration

	// HTTP server configuration for the administrative surface
	HTTP HTTPConfig

	// Refresh configures the periodic tool-catalog refresh
	Refresh RefreshConfig
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Enabled bool
	Host    string
	Port    int
}

// RefreshConfig holds catalog refresh scheduler configuration
type RefreshConfig struct {
	Enabled  bool
	Interval time.Duration
}

// fileConfig mirrors Config for the optional YAML settings file.
// Zero values mean "not set" and keep the environment/default value.
type fileConfig struct {
	ServersFile           string `yaml:"servers_file"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	HTTP                  struct {
		Enabled *bool  `yaml:"enabled"`
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
	} `yaml:"http"`
	Refresh struct {
		Enabled         *bool `yaml:"enabled"`
		IntervalMinutes int   `yaml:"interval_minutes"`
	} `yaml:"refresh"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServersFile:    getEnvString("MCPBRIDGE_SERVERS_FILE", "mcp_servers.json"),
		RequestTimeout: time.Duration(getEnvInt("MCPBRIDGE_REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
		HTTP: HTTPConfig{
			Enabled: getEnvBool("MCPBRIDGE_HTTP_ENABLED", false),
			Host:    getEnvString("MCPBRIDGE_HTTP_HOST", "0.0.0.0"),
			Port:    getEnvInt("MCPBRIDGE_HTTP_PORT", 8080),
		},
		Refresh: RefreshConfig{
			Enabled:  getEnvBool("MCPBRIDGE_REFRESH_ENABLED", false),
			Interval: time.Duration(getEnvInt("MCPBRIDGE_REFRESH_INTERVAL_MINUTES", 5)) * time.Minute,
		},
	}
	return cfg, nil
}

// LoadFile loads configuration from the environment and overlays the YAML
// settings file at path. Values present in the file win over environment
// variables; absent values keep the Load() result.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.ServersFile != "" {
		cfg.ServersFile = fc.ServersFile
	}
	if fc.RequestTimeoutSeconds > 0 {
		cfg.RequestTimeout = time.Duration(fc.RequestTimeoutSeconds) * time.Second
	}
	if fc.HTTP.Enabled != nil {
		cfg.HTTP.Enabled = *fc.HTTP.Enabled
	}
	if fc.HTTP.Host != "" {
		cfg.HTTP.Host = fc.HTTP.Host
	}
	if fc.HTTP.Port > 0 {
		cfg.HTTP.Port = fc.HTTP.Port
	}
	if fc.Refresh.Enabled != nil {
		cfg.Refresh.Enabled = *fc.Refresh.Enabled
	}
	if fc.Refresh.IntervalMinutes > 0 {
		cfg.Refresh.Interval = time.Duration(fc.Refresh.IntervalMinutes) * time.Minute
	}
	return cfg, nil
}

// GetAddress returns the HTTP server address
func (c *Config) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// Helper functions for environment variables
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
