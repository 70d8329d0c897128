package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Limits.MaxTurns != 8 {
		t.Errorf("MaxTurns = %d, want 8", cfg.Limits.MaxTurns)
	}
	if cfg.Limits.GenericFieldMaxChars != 10000 {
		t.Errorf("GenericFieldMaxChars = %d, want 10000", cfg.Limits.GenericFieldMaxChars)
	}
	if cfg.Limits.MarkupFieldMaxChars != 1000 {
		t.Errorf("MarkupFieldMaxChars = %d, want 1000", cfg.Limits.MarkupFieldMaxChars)
	}
	if cfg.Limits.ContextWarnChars != 300000 {
		t.Errorf("ContextWarnChars = %d, want 300000", cfg.Limits.ContextWarnChars)
	}
	if cfg.Limits.CompletionTimeout != 10*time.Minute {
		t.Errorf("CompletionTimeout = %v, want 10m", cfg.Limits.CompletionTimeout)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load() with missing file error = %v", err)
	}
	if cfg.Limits.MaxTurns != 8 {
		t.Error("defaults not applied for missing file")
	}
}

func TestLoadOverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
listen_addr: ":9999"
limits:
  max_turns: 4
  context_warn_chars: 50000
audit:
  enabled: true
  schedule: "30 * * * *"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Limits.MaxTurns != 4 {
		t.Errorf("MaxTurns = %d, want 4", cfg.Limits.MaxTurns)
	}
	if cfg.Limits.ContextWarnChars != 50000 {
		t.Errorf("ContextWarnChars = %d, want 50000", cfg.Limits.ContextWarnChars)
	}
	// Keys absent from the file keep their defaults
	if cfg.Limits.GenericFieldMaxChars != 10000 {
		t.Errorf("GenericFieldMaxChars = %d, want default 10000", cfg.Limits.GenericFieldMaxChars)
	}
	if !cfg.Audit.Enabled || cfg.Audit.Schedule != "30 * * * *" {
		t.Errorf("Audit = %+v", cfg.Audit)
	}
}

func TestLoadInvalidYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("limits: ["), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error for invalid YAML")
	}
}

func TestProviderCredentialsFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("ANTHROPIC_MODEL", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_MODEL", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Providers.AnthropicAPIKey != "sk-ant-test" {
		t.Errorf("AnthropicAPIKey = %q", cfg.Providers.AnthropicAPIKey)
	}
	if cfg.Providers.AnthropicModel == "" {
		t.Error("AnthropicModel should fall back to a default")
	}
	if cfg.Providers.OpenAIAPIKey != "" {
		t.Error("unset OpenAI key should stay empty")
	}
}

func TestDatabasePath(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/tmp/seopages-test"
	if got := cfg.DatabasePath(); got != "/tmp/seopages-test/seopages.db" {
		t.Errorf("DatabasePath() = %q", got)
	}
}
