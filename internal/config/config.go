// ABOUTME: Configuration loading and parsing for attach-webview
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete attach-webview configuration
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Database DatabaseConfig `yaml:"database"`
	WebView  WebViewConfig  `yaml:"webview"`
	Media    MediaConfig    `yaml:"media"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GatewayConfig holds the remote call gateway endpoint
type GatewayConfig struct {
	URL string `yaml:"url"`
}

// DatabaseConfig holds the trust store database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// WebViewConfig holds session orchestration configuration
type WebViewConfig struct {
	UserDataDir     string        `yaml:"user_data_dir"`
	ProlongInterval time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	ProlongIntervalRaw string `yaml:"prolong_interval"`
}

// MediaConfig holds the icon cache configuration
type MediaConfig struct {
	IconCacheDir string `yaml:"icon_cache_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.WebView.ProlongIntervalRaw != "" {
		cfg.WebView.ProlongInterval, err = time.ParseDuration(cfg.WebView.ProlongIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing prolong_interval %q: %w", cfg.WebView.ProlongIntervalRaw, err)
		}
	}

	return nil
}
