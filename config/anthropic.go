package config

import (
	"github.com/aschepis/backscratcher/llmretry/llm"
	llmanthropic "github.com/aschepis/backscratcher/llmretry/llm/anthropic"
	"github.com/rs/zerolog"
)

// LoadAnthropicConfig returns the API key to use for the Anthropic provider.
func LoadAnthropicConfig(cfg *Config) (apiKey string) {
	if cfg == nil {
		return getAnthropicAPIKeyFromEnv()
	}
	return cfg.Anthropic.APIKey
}

// NewAnthropicFactory creates the Anthropic model factory from the configuration.
func NewAnthropicFactory(cfg *Config, logger zerolog.Logger) llm.Factory {
	return llmanthropic.Factory(LoadAnthropicConfig(cfg), logger)
}
