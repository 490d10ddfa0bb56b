package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/aschepis/backscratcher/llmretry/llm"
	"github.com/aschepis/backscratcher/llmretry/retry"
)

// RetryConfig is the retry section of the config file. Durations are Go
// duration strings such as "500ms" or "1m".
type RetryConfig struct {
	// Numeric fields are pointers so that an explicit 0 survives merging and
	// reaches validation.
	MaxRetries        *int     `yaml:"max_retries,omitempty"`
	InitialDelay      string   `yaml:"initial_delay,omitempty"`
	MaxDelay          string   `yaml:"max_delay,omitempty"`
	BackoffMultiplier *float64 `yaml:"backoff_multiplier,omitempty"`
	Jitter            *float64 `yaml:"jitter,omitempty"`
	// RetryOn lists error kinds, e.g. ["connection", "rate_limit"]. Empty
	// keeps the default transient kinds.
	RetryOn []string `yaml:"retry_on,omitempty"`
}

// ToRetryOptions converts the section into retry options. Value ranges are
// checked by the retry package when the options are applied.
func (c RetryConfig) ToRetryOptions() ([]retry.Option, error) {
	var opts []retry.Option
	var errs []error

	if c.MaxRetries != nil {
		opts = append(opts, retry.WithMaxRetries(*c.MaxRetries))
	}
	if c.InitialDelay != "" {
		d, err := time.ParseDuration(c.InitialDelay)
		if err != nil {
			errs = append(errs, fmt.Errorf("retry.initial_delay: %w", err))
		}
		opts = append(opts, retry.WithInitialDelay(d))
	}
	if c.MaxDelay != "" {
		d, err := time.ParseDuration(c.MaxDelay)
		if err != nil {
			errs = append(errs, fmt.Errorf("retry.max_delay: %w", err))
		}
		opts = append(opts, retry.WithMaxDelay(d))
	}
	if c.BackoffMultiplier != nil {
		opts = append(opts, retry.WithBackoffMultiplier(*c.BackoffMultiplier))
	}
	if c.Jitter != nil {
		opts = append(opts, retry.WithJitter(*c.Jitter))
	}
	if len(c.RetryOn) > 0 {
		kinds := make([]llm.ErrorType, 0, len(c.RetryOn))
		for _, s := range c.RetryOn {
			t, err := llm.ParseErrorType(s)
			if err != nil {
				errs = append(errs, fmt.Errorf("retry.retry_on: %w", err))
				continue
			}
			kinds = append(kinds, t)
		}
		opts = append(opts, retry.WithRetryOn(retry.MatchKinds(kinds...)...))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return opts, nil
}

// ModelOptions returns every retry option the config describes for the
// primary model: policy, fallbacks and params.
func (c *Config) ModelOptions() ([]retry.Option, error) {
	opts, err := c.Retry.ToRetryOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts, retry.WithParams(c.Params))
	if len(c.Fallbacks) > 0 {
		opts = append(opts, retry.WithFallbackIDs(c.Fallbacks...))
	}
	return opts, nil
}
