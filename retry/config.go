package retry

import (
	"errors"
	"math"
	"time"

	"github.com/samber/lo"
)

const (
	// DefaultMaxRetries is the number of retries per model after the first attempt.
	DefaultMaxRetries = 3

	// DefaultInitialDelay is the wait before the first retry on a model.
	DefaultInitialDelay = 500 * time.Millisecond

	// DefaultMaxDelay caps every backoff delay.
	DefaultMaxDelay = 60 * time.Second

	// DefaultBackoffMultiplier is the factor applied to the delay after each retry.
	DefaultBackoffMultiplier = 2.0

	// DefaultJitter disables randomization.
	DefaultJitter = 0.0
)

// Config is the retry policy applied to every model in a fallback chain.
// It is a value type; copies share nothing but the RetryOn matchers, which
// are never mutated.
type Config struct {
	// MaxRetries is the number of attempts after the first, per model.
	MaxRetries int
	// InitialDelay is the wait before the first retry on each model.
	InitialDelay time.Duration
	// MaxDelay caps the un-jittered delay.
	MaxDelay time.Duration
	// BackoffMultiplier scales the delay after each retry. Must be finite and >= 1.
	BackoffMultiplier float64
	// Jitter randomizes each delay uniformly within ±Jitter of its value.
	Jitter float64
	// RetryOn decides which attempt errors are retried. Anything else stops
	// the whole chain.
	RetryOn []Matcher
}

// DefaultConfig returns the default policy.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        DefaultMaxRetries,
		InitialDelay:      DefaultInitialDelay,
		MaxDelay:          DefaultMaxDelay,
		BackoffMultiplier: DefaultBackoffMultiplier,
		Jitter:            DefaultJitter,
		RetryOn:           DefaultRetryOn(),
	}
}

// NewConfig builds a validated Config from the defaults and opts. Options
// that do not affect the policy are ignored.
func NewConfig(opts ...Option) (Config, error) {
	s := newSettings(opts)
	if err := s.config.Validate(); err != nil {
		return Config{}, err
	}
	return s.config, nil
}

// Validate reports every invalid field. Values are never clamped.
func (c Config) Validate() error {
	var errs []error
	if c.MaxRetries < 0 {
		errs = append(errs, ErrInvalidMaxRetries)
	}
	if c.InitialDelay < 0 {
		errs = append(errs, ErrInvalidInitialDelay)
	}
	if c.MaxDelay < 0 {
		errs = append(errs, ErrInvalidMaxDelay)
	}
	if math.IsNaN(c.BackoffMultiplier) || math.IsInf(c.BackoffMultiplier, 0) || c.BackoffMultiplier < 1 {
		errs = append(errs, ErrInvalidBackoffMultiplier)
	}
	if !(c.Jitter >= 0 && c.Jitter <= 1) {
		errs = append(errs, ErrInvalidJitter)
	}
	return errors.Join(errs...)
}

// Retryable reports whether err matches any RetryOn matcher.
func (c Config) Retryable(err error) bool {
	if err == nil {
		return false
	}
	return lo.SomeBy(c.RetryOn, func(m Matcher) bool { return m.Match(err) })
}

func (c Config) clone() Config {
	c.RetryOn = append([]Matcher(nil), c.RetryOn...)
	return c
}
