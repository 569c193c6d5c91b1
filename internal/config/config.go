// Package config loads and validates the gateway configuration.
//
// DESIGN: Configuration comes from a YAML file with ${VAR:-default}
// environment expansion. Server settings are explicit, with no hidden
// defaults for port or timeouts, so deployments stay auditable.
// Provider upstreams default to the public API hosts and can be
// overridden per provider.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/trustgate/agent-gateway/internal/monitoring"
)

// DefaultMaxBodyBytes caps inbound request bodies. Long-context
// conversations with large tool results run tens of megabytes.
const DefaultMaxBodyBytes = 50 << 20 // 50 MiB

// Default provider upstreams.
var defaultUpstreams = map[string]string{
	"openai":    "https://api.openai.com",
	"anthropic": "https://api.anthropic.com",
	"gemini":    "https://generativelanguage.googleapis.com",
}

// Config is the root configuration for the gateway.
type Config struct {
	Server     ServerConfig              `yaml:"server"`
	Providers  map[string]ProviderConfig `yaml:"providers"`
	Store      StoreConfig               `yaml:"store"`
	Pipeline   PipelineConfig            `yaml:"pipeline"`
	Monitoring MonitoringConfig          `yaml:"monitoring"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`           // Port to listen on
	ReadTimeout  time.Duration `yaml:"read_timeout"`   // Max time to read request
	WriteTimeout time.Duration `yaml:"write_timeout"`  // Max time to write response
	MaxBodyBytes int64         `yaml:"max_body_bytes"` // Request body ceiling, defaults to 50 MiB
}

// ProviderConfig configures one upstream provider.
type ProviderConfig struct {
	Upstream string `yaml:"upstream"` // Base URL of the provider API
}

// StoreConfig contains persistence settings.
type StoreConfig struct {
	Path string `yaml:"path"` // SQLite database path, ":memory:" for ephemeral
}

// PipelineConfig configures the request pipeline.
type PipelineConfig struct {
	Compression CompressionConfig `yaml:"compression"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`
}

// CompressionConfig controls tool-result compression.
type CompressionConfig struct {
	Enabled  bool `yaml:"enabled"`
	MinBytes int  `yaml:"min_bytes"` // Below this size compression is skipped
}

// DiscoveryConfig controls tool auto-discovery.
type DiscoveryConfig struct {
	Enabled      bool     `yaml:"enabled"`
	BuiltinTools []string `yaml:"builtin_tools"` // Never auto-registered
}

// MonitoringConfig contains logging settings.
type MonitoringConfig struct {
	Logging monitoring.LoggerConfig `yaml:"logging"`
}

// expandEnvWithDefaults expands environment variables with support for
// default values. Supports both ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes, expands
// environment variables, applies upstream defaults and validates.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	for name, upstream := range defaultUpstreams {
		if _, ok := c.Providers[name]; !ok {
			c.Providers[name] = ProviderConfig{Upstream: upstream}
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ReadTimeout == 0 {
		return fmt.Errorf("server.read_timeout is required")
	}
	if c.Server.WriteTimeout == 0 {
		return fmt.Errorf("server.write_timeout is required")
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}

	for name, p := range c.Providers {
		if _, known := defaultUpstreams[name]; !known {
			return fmt.Errorf("unknown provider %q (supported: openai, anthropic, gemini)", name)
		}
		if p.Upstream == "" {
			return fmt.Errorf("providers.%s.upstream is required", name)
		}
	}

	if c.Pipeline.Compression.MinBytes < 0 {
		return fmt.Errorf("pipeline.compression.min_bytes must be non-negative")
	}

	return nil
}
