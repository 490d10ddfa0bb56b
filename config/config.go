package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/aschepis/backscratcher/llmretry/llm"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// AnthropicConfig represents configuration for the Anthropic provider.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key,omitempty"` // Anthropic API key
}

// OllamaConfig represents configuration for the Ollama provider.
type OllamaConfig struct {
	Host string `yaml:"host,omitempty"` // Ollama host (default: "http://localhost:11434")
}

// OpenAIConfig represents configuration for the OpenAI provider.
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key,omitempty"`      // OpenAI API key
	BaseURL      string `yaml:"base_url,omitempty"`     // Custom base URL (default: official API)
	Organization string `yaml:"organization,omitempty"` // Organization ID
}

// AuditConfig configures the SQLite attempt log.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen,omitempty"` // e.g. ":9090"; empty disables the endpoint
}

// LogConfig configures logging.
type LogConfig struct {
	File   string `yaml:"file,omitempty"`
	Pretty bool   `yaml:"pretty,omitempty"`
}

// Config is the llmretry configuration file.
type Config struct {
	// Model is the primary model, as "provider/name".
	Model     string      `yaml:"model,omitempty"`
	Fallbacks []string    `yaml:"fallbacks,omitempty"`
	Params    llm.Params  `yaml:"params,omitempty"`
	Retry     RetryConfig `yaml:"retry,omitempty"`

	Anthropic AnthropicConfig `yaml:"anthropic,omitempty"`
	Ollama    OllamaConfig    `yaml:"ollama,omitempty"`
	OpenAI    OpenAIConfig    `yaml:"openai,omitempty"`

	Audit   AuditConfig   `yaml:"audit,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
	Log     LogConfig     `yaml:"log,omitempty"`
}

// Defaults returns the configuration used when no file overrides it.
func Defaults() Config {
	return Config{
		Model: "anthropic/claude-haiku-4-5",
		Retry: RetryConfig{
			InitialDelay:      "500ms",
			MaxDelay:          "60s",
			BackoffMultiplier: lo.ToPtr(2.0),
		},
		Ollama: OllamaConfig{
			Host: "http://localhost:11434",
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
		},
		Audit: AuditConfig{
			Path: "~/.llmretry/audit.db",
		},
	}
}

// GetConfigPath returns the default config file path.
// Can be overridden via LLMRETRY_CONFIG_PATH environment variable.
func GetConfigPath() string {
	if envPath := os.Getenv("LLMRETRY_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.llmretry/config.yaml"
	}
	return filepath.Join(homeDir, ".llmretry", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Load reads the config file at path and merges it onto the defaults.
// A missing file yields the defaults. Provider secrets left empty are read
// from the environment.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err == nil {
		data, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
		}
		if err := Merge(&cfg, data); err != nil {
			return nil, err
		}
	}

	applyEnv(&cfg)
	cfg.Audit.Path = expandPath(cfg.Audit.Path)
	cfg.Log.File = expandPath(cfg.Log.File)
	return &cfg, nil
}

// Merge parses data as YAML and merges it onto cfg. Set values in data win,
// including pointers to zero values.
func Merge(cfg *Config, data []byte) error {
	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := mergo.Merge(cfg, override, mergo.WithOverride, mergo.WithoutDereference); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// Save writes cfg to path.
func Save(cfg *Config, path string) error {
	expandedPath := expandPath(path)

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyEnv fills provider settings from the environment. Environment
// variables override the file for hosts and URLs; API keys from the file win.
func applyEnv(cfg *Config) {
	if cfg.Anthropic.APIKey == "" {
		cfg.Anthropic.APIKey = getAnthropicAPIKeyFromEnv()
	}
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = getOpenAIAPIKeyFromEnv()
	}
	if v := getOpenAIBaseURLFromEnv(); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := getOpenAIOrgFromEnv(); v != "" {
		cfg.OpenAI.Organization = v
	}
	if v := getOllamaHostFromEnv(); v != "" {
		cfg.Ollama.Host = v
	}
	if v := os.Getenv("LLMRETRY_MODEL"); v != "" {
		cfg.Model = v
	}
}
