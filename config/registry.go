package config

import (
	"os"

	"github.com/aschepis/backscratcher/llmretry/llm"
	"github.com/rs/zerolog"
)

// NewRegistry returns a registry with a factory for every provider. Providers
// missing credentials still register; resolving one of their models fails
// with the provider's error.
func NewRegistry(cfg *Config, logger zerolog.Logger) *llm.Registry {
	reg := llm.NewRegistry()
	Register(reg, cfg, logger)
	return reg
}

// Register installs the configured provider factories into reg, for example
// llm.DefaultRegistry.
func Register(reg *llm.Registry, cfg *Config, logger zerolog.Logger) {
	reg.Register(llm.ProviderAnthropic, withAttemptLogging(NewAnthropicFactory(cfg, logger), logger))
	reg.Register(llm.ProviderOpenAI, withAttemptLogging(NewOpenAIFactory(cfg), logger))
	reg.Register(llm.ProviderOllama, withAttemptLogging(NewOllamaFactory(cfg), logger))
}

// withAttemptLogging wraps every model built by f with llm.LoggingMiddleware.
func withAttemptLogging(f llm.Factory, logger zerolog.Logger) llm.Factory {
	mw := llm.LoggingMiddleware(logger.With().Str("component", "llm").Logger())
	return func(name string, params llm.Params) (llm.Model, error) {
		m, err := f(name, params)
		if err != nil {
			return nil, err
		}
		return llm.WrapWithMiddleware(m, mw), nil
	}
}

func getAnthropicAPIKeyFromEnv() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

func getOpenAIAPIKeyFromEnv() string {
	return os.Getenv("OPENAI_API_KEY")
}

func getOpenAIBaseURLFromEnv() string {
	return os.Getenv("OPENAI_BASE_URL")
}

func getOpenAIOrgFromEnv() string {
	return os.Getenv("OPENAI_ORG_ID")
}

func getOllamaHostFromEnv() string {
	return os.Getenv("OLLAMA_HOST")
}
