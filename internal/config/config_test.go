package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
agent:
  max_iterations: 25
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("host = %q", cfg.Server.Host)
	}
	if cfg.Agent.MaxIterations != 25 {
		t.Errorf("max iterations = %d", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.IterationDelay != 500*time.Millisecond {
		t.Errorf("iteration delay = %v", cfg.Agent.IterationDelay)
	}
	if cfg.LLM.DefaultProvider != "anthropic" {
		t.Errorf("default provider = %q", cfg.LLM.DefaultProvider)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("logging format = %q", cfg.Logging.Format)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-from-env")
	path := writeConfig(t, `
llm:
  providers:
    anthropic:
      api_key: ${TEST_API_KEY}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	provider, err := cfg.Provider("anthropic")
	if err != nil {
		t.Fatalf("Provider: %v", err)
	}
	if provider.APIKey != "sk-from-env" {
		t.Errorf("api key = %q", provider.APIKey)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a mapping")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestProviderMissing(t *testing.T) {
	cfg := Default()
	if _, err := cfg.Provider("anthropic"); err == nil {
		t.Fatal("expected error for unconfigured provider")
	}
}
