package retry

import (
	"time"

	"github.com/aschepis/backscratcher/llmretry/llm"
	"github.com/rs/zerolog"
)

// Option configures a retry model, call or prompt.
type Option func(*settings)

// Validator checks a successful response. A non-nil error fails the attempt
// and is classified like any other attempt error, so it is only retried when
// a RetryOn matcher accepts it.
type Validator func(resp *llm.Response) error

type settings struct {
	config    Config
	fallbacks []Fallback
	params    *llm.Params
	resolver  llm.Resolver
	logger    zerolog.Logger
	observer  Observer
	sleep     SleepFunc
	validate  Validator
}

func newSettings(opts []Option) settings {
	s := settings{
		config:   DefaultConfig(),
		resolver: llm.DefaultRegistry,
		logger:   zerolog.Nop(),
		sleep:    sleep,
	}
	return s.with(opts)
}

// with returns a copy of s with opts applied. s itself is not modified.
func (s settings) with(opts []Option) settings {
	s.config = s.config.clone()
	s.fallbacks = append([]Fallback(nil), s.fallbacks...)
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// WithConfig replaces the whole policy.
func WithConfig(c Config) Option {
	return func(s *settings) { s.config = c.clone() }
}

// WithMaxRetries sets the number of retries per model.
func WithMaxRetries(n int) Option {
	return func(s *settings) { s.config.MaxRetries = n }
}

// WithInitialDelay sets the delay before the first retry on a model.
func WithInitialDelay(d time.Duration) Option {
	return func(s *settings) { s.config.InitialDelay = d }
}

// WithMaxDelay caps every computed delay.
func WithMaxDelay(d time.Duration) Option {
	return func(s *settings) { s.config.MaxDelay = d }
}

// WithBackoffMultiplier sets the growth factor between successive delays.
func WithBackoffMultiplier(m float64) Option {
	return func(s *settings) { s.config.BackoffMultiplier = m }
}

// WithJitter sets the fractional randomization applied to each delay.
func WithJitter(j float64) Option {
	return func(s *settings) { s.config.Jitter = j }
}

// WithRetryOn replaces the set of retryable errors.
func WithRetryOn(matchers ...Matcher) Option {
	return func(s *settings) { s.config.RetryOn = append([]Matcher(nil), matchers...) }
}

// AlsoRetryOn adds matchers to the current set of retryable errors.
func AlsoRetryOn(matchers ...Matcher) Option {
	return func(s *settings) { s.config.RetryOn = append(s.config.RetryOn, matchers...) }
}

// WithFallbacks sets the ordered fallback models tried after the primary.
func WithFallbacks(fallbacks ...Fallback) Option {
	return func(s *settings) { s.fallbacks = append([]Fallback(nil), fallbacks...) }
}

// WithFallbackIDs is shorthand for WithFallbacks(FallbackID(id), ...).
func WithFallbackIDs(ids ...string) Option {
	return func(s *settings) {
		s.fallbacks = s.fallbacks[:0]
		for _, id := range ids {
			s.fallbacks = append(s.fallbacks, FallbackID(id))
		}
	}
}

// WithParams sets the params a model identifier is resolved with by ModelByID.
func WithParams(p llm.Params) Option {
	return func(s *settings) { s.params = &p }
}

// WithResolver sets the resolver for model identifiers. The default is
// llm.DefaultRegistry.
func WithResolver(r llm.Resolver) Option {
	return func(s *settings) { s.resolver = r }
}

// WithLogger sets the logger attempts are reported to.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithObserver adds an observer notified after every physical attempt.
func WithObserver(o Observer) Option {
	return func(s *settings) {
		if o == nil {
			return
		}
		if s.observer == nil {
			s.observer = o
			return
		}
		s.observer = Observers{s.observer, o}
	}
}

// WithSleep replaces the function used to wait between attempts.
func WithSleep(fn SleepFunc) Option {
	return func(s *settings) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

// WithValidator sets a check applied to every successful response.
func WithValidator(v Validator) Option {
	return func(s *settings) { s.validate = v }
}
