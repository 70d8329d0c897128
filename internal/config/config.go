// Package config holds the service configuration. A config is built once at
// startup (Default + optional YAML overlay + env credentials) and passed by
// reference; nothing mutates it afterwards.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration
type Config struct {
	// Server settings
	ListenAddr string `yaml:"listen_addr"` // HTTP listen address

	// Storage settings
	DataDir string `yaml:"data_dir"` // Directory for the SQLite database

	// Provider credentials (loaded from env, never from the YAML file)
	Providers ProviderConfig `yaml:"-"`

	// Context limits (redaction thresholds, window bounds)
	Limits LimitsConfig `yaml:"limits"`

	// Audit sweep settings
	Audit AuditConfig `yaml:"audit"`
}

// ProviderConfig holds completion-endpoint credentials and model ids.
// Missing keys mean the provider is not configured.
type ProviderConfig struct {
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string
}

// LimitsConfig holds the size and count limits applied when building a
// model request. The warn ceiling is informational only; the completion
// endpoint enforces its own hard limit.
type LimitsConfig struct {
	MaxTurns             int           `yaml:"max_turns"`               // Conversational turns kept in the window (default: 8)
	GenericFieldMaxChars int           `yaml:"generic_field_max_chars"` // Truncation threshold for generic content fields (default: 10000)
	MarkupFieldMaxChars  int           `yaml:"markup_field_max_chars"`  // Truncation threshold for structured-markup fields (default: 1000)
	ContextWarnChars     int           `yaml:"context_warn_chars"`      // Soft ceiling for the serialized request (default: 300000)
	CompletionTimeout    time.Duration `yaml:"completion_timeout"`      // Wall-clock ceiling for one completion call (default: 10m)
}

// AuditConfig controls the periodic page-audit sweep
type AuditConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Schedule   string        `yaml:"schedule"`    // Cron expression (default: hourly)
	StaleAfter time.Duration `yaml:"stale_after"` // Re-audit pages not touched for this long
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		ListenAddr: ":8466",
		DataDir:    defaultDataDir(),
		Limits: LimitsConfig{
			MaxTurns:             8,
			GenericFieldMaxChars: 10000,
			MarkupFieldMaxChars:  1000,
			ContextWarnChars:     300000,
			CompletionTimeout:    10 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			Schedule:   "0 * * * *",
			StaleAfter: 7 * 24 * time.Hour,
		},
	}
}

// Load reads the YAML config at path over the defaults, then picks up
// provider credentials from the environment. A missing file is not an
// error; the defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.Providers = ProviderConfig{
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:     envOr("OPENAI_MODEL", "gpt-4o"),
	}

	return cfg, nil
}

// DatabasePath returns the SQLite file path under the data directory
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "seopages.db")
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".seopages")
	}
	return ".seopages"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
