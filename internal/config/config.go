package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the settings file looked up in the pipeline base directory.
const FileName = "clerk.yaml"

const defaultConfigYAML = `# clerk pipeline configuration
version: 1

# Iteration budget for one "clerk run".
max_iterations: 20

# Days of audit containers kept by "clerk cleanup".
retention_days: 90

# Port for "clerk serve".
server_port: 8080

retry:
  max_retries: 3
  base_delay: 1s
  max_delay: 60s
`

// RetryConfig tunes the error recovery coordinator.
type RetryConfig struct {
	MaxRetries int    `yaml:"max_retries"`
	BaseDelay  string `yaml:"base_delay"`
	MaxDelay   string `yaml:"max_delay"`
}

// Config models clerk.yaml. Zero values mean "use the default"; flags on
// the CLI override whatever the file says.
type Config struct {
	Version       int         `yaml:"version"`
	MaxIterations int         `yaml:"max_iterations"`
	RetentionDays int         `yaml:"retention_days"`
	ServerPort    int         `yaml:"server_port"`
	Retry         RetryConfig `yaml:"retry"`

	// Base is where the config was loaded from, not a file field.
	Base string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Version:       1,
		MaxIterations: 20,
		RetentionDays: 90,
		ServerPort:    8080,
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  "1s",
			MaxDelay:   "60s",
		},
	}
}

// Load reads <base>/clerk.yaml. A missing file is not an error: the
// defaults apply unchanged.
func Load(base string) (Config, error) {
	cfg := Default()
	cfg.Base = base

	path := filepath.Join(base, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// EnsureFile writes the default clerk.yaml if none exists yet.
func EnsureFile(base string) error {
	path := filepath.Join(base, FileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(base, 0755); err != nil {
		return fmt.Errorf("config: ensure base dir: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0644)
}

// BaseDelay returns the parsed retry base delay.
func (c Config) BaseDelay() time.Duration {
	return parseDelay(c.Retry.BaseDelay, time.Second)
}

// MaxDelay returns the parsed retry delay cap.
func (c Config) MaxDelay() time.Duration {
	return parseDelay(c.Retry.MaxDelay, 60*time.Second)
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Version == 0 {
		c.Version = def.Version
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = def.MaxIterations
	}
	if c.RetentionDays == 0 {
		c.RetentionDays = def.RetentionDays
	}
	if c.ServerPort == 0 {
		c.ServerPort = def.ServerPort
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = def.Retry.MaxRetries
	}
	if strings.TrimSpace(c.Retry.BaseDelay) == "" {
		c.Retry.BaseDelay = def.Retry.BaseDelay
	}
	if strings.TrimSpace(c.Retry.MaxDelay) == "" {
		c.Retry.MaxDelay = def.Retry.MaxDelay
	}
}

func (c Config) validate() error {
	if c.Version < 1 {
		return fmt.Errorf("version must be >= 1")
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be >= 1")
	}
	if c.RetentionDays < 1 {
		return fmt.Errorf("retention_days must be >= 1")
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("server_port must be a valid port")
	}
	if _, err := time.ParseDuration(c.Retry.BaseDelay); err != nil {
		return fmt.Errorf("retry.base_delay: %w", err)
	}
	if _, err := time.ParseDuration(c.Retry.MaxDelay); err != nil {
		return fmt.Errorf("retry.max_delay: %w", err)
	}
	return nil
}

func parseDelay(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
