// Package config loads the engine configuration from a YAML file with
// environment variable expansion.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	Agent     AgentConfig     `yaml:"agent"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Tools     ToolsConfig     `yaml:"tools"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
}

type DatabaseConfig struct {
	// Path is the SQLite database file. Empty selects in-memory stores.
	Path string `yaml:"path"`
}

type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
}

type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

type AgentConfig struct {
	Model          string        `yaml:"model"`
	SystemPrompt   string        `yaml:"system_prompt"`
	MaxIterations  int           `yaml:"max_iterations"`
	IterationDelay time.Duration `yaml:"iteration_delay"`
	MaxTokens      int           `yaml:"max_tokens"`
	Temperature    float32       `yaml:"temperature"`

	// ContextWindowTokens caps the estimated prompt size before older
	// history is compacted into a summary.
	ContextWindowTokens int `yaml:"context_window_tokens"`

	Executor ExecutorConfig `yaml:"executor"`
}

type ExecutorConfig struct {
	Strategy       string        `yaml:"strategy"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	Timeout        time.Duration `yaml:"timeout"`
	Retries        int           `yaml:"retries"`
}

type WorkspaceConfig struct {
	Root  string `yaml:"root"`
	Shell string `yaml:"shell"`
}

type ToolsConfig struct {
	Browser   BrowserConfig   `yaml:"browser"`
	WebSearch WebSearchConfig `yaml:"websearch"`
}

type BrowserConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Headless *bool         `yaml:"headless"`
	Timeout  time.Duration `yaml:"timeout"`
}

type WebSearchConfig struct {
	Enabled  bool   `yaml:"enabled"`
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the configuration file. Environment variables in
// the file are expanded before parsing, so secrets stay out of the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = "anthropic"
	}
	if cfg.Agent.MaxIterations == 0 {
		cfg.Agent.MaxIterations = 10
	}
	if cfg.Agent.IterationDelay == 0 {
		cfg.Agent.IterationDelay = 500 * time.Millisecond
	}
	if cfg.Agent.MaxTokens == 0 {
		cfg.Agent.MaxTokens = 4096
	}
	if cfg.Agent.ContextWindowTokens == 0 {
		cfg.Agent.ContextWindowTokens = 120_000
	}
	if cfg.Agent.Executor.Strategy == "" {
		cfg.Agent.Executor.Strategy = "sequential"
	}
	if cfg.Agent.Executor.MaxConcurrency == 0 {
		cfg.Agent.Executor.MaxConcurrency = 5
	}
	if cfg.Agent.Executor.Timeout == 0 {
		cfg.Agent.Executor.Timeout = 30 * time.Second
	}
	if cfg.Agent.Executor.Retries == 0 {
		cfg.Agent.Executor.Retries = 2
	}
	if cfg.Workspace.Root == "" {
		cfg.Workspace.Root = "./workspace"
	}
	if cfg.Tools.Browser.Timeout == 0 {
		cfg.Tools.Browser.Timeout = 30 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Provider returns the configuration for a named provider, or an error
// when the provider has no API key configured.
func (c *Config) Provider(name string) (LLMProviderConfig, error) {
	provider, ok := c.LLM.Providers[name]
	if !ok || provider.APIKey == "" {
		return LLMProviderConfig{}, fmt.Errorf("provider %q is not configured", name)
	}
	return provider, nil
}
