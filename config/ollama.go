package config

import (
	"github.com/aschepis/backscratcher/llmretry/llm"
	llmollama "github.com/aschepis/backscratcher/llmretry/llm/ollama"
)

// LoadOllamaConfig returns the host to use for the Ollama provider.
func LoadOllamaConfig(cfg *Config) (host string) {
	if cfg == nil {
		host = getOllamaHostFromEnv()
	} else {
		host = cfg.Ollama.Host
	}
	if host == "" {
		host = "http://localhost:11434"
	}
	return host
}

// NewOllamaFactory creates the Ollama model factory from the configuration.
func NewOllamaFactory(cfg *Config) llm.Factory {
	return llmollama.Factory(LoadOllamaConfig(cfg))
}
