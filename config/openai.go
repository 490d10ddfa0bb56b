package config

import (
	"github.com/aschepis/backscratcher/llmretry/llm"
	llmopenai "github.com/aschepis/backscratcher/llmretry/llm/openai"
)

// LoadOpenAIConfig returns the API key, base URL and organization to use for
// the OpenAI provider.
func LoadOpenAIConfig(cfg *Config) (apiKey, baseURL, organization string) {
	if cfg == nil {
		return getOpenAIAPIKeyFromEnv(), getOpenAIBaseURLFromEnv(), getOpenAIOrgFromEnv()
	}
	return cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Organization
}

// NewOpenAIFactory creates the OpenAI model factory from the configuration.
func NewOpenAIFactory(cfg *Config) llm.Factory {
	apiKey, baseURL, organization := LoadOpenAIConfig(cfg)
	return llmopenai.Factory(apiKey, baseURL, organization)
}
