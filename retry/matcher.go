package retry

import (
	"errors"

	"github.com/aschepis/backscratcher/llmretry/llm"
	"github.com/samber/lo"
)

// Matcher decides whether an attempt error is retryable.
type Matcher interface {
	Match(err error) bool
}

// MatchFunc adapts a function to a Matcher.
type MatchFunc func(err error) bool

// Match implements Matcher.
func (f MatchFunc) Match(err error) bool {
	return f(err)
}

// MatchKind matches *llm.Error values of the given kind anywhere in the chain.
func MatchKind(kind llm.ErrorType) Matcher {
	return MatchFunc(func(err error) bool {
		t, ok := llm.TypeOf(err)
		return ok && t == kind
	})
}

// MatchKinds returns one matcher per kind.
func MatchKinds(kinds ...llm.ErrorType) []Matcher {
	return lo.Map(kinds, func(k llm.ErrorType, _ int) Matcher { return MatchKind(k) })
}

// MatchType matches errors whose chain contains an E, such as a response
// validation error type.
func MatchType[E error]() Matcher {
	return MatchFunc(func(err error) bool {
		var target E
		return errors.As(err, &target)
	})
}

// MatchError matches errors for which errors.Is(err, target) holds.
func MatchError(target error) Matcher {
	return MatchFunc(func(err error) bool {
		return errors.Is(err, target)
	})
}

// DefaultRetryOn returns matchers for the transient error kinds: connection,
// timeout, rate limit and server.
func DefaultRetryOn() []Matcher {
	return MatchKinds(lo.Filter(llm.ErrorTypes, func(t llm.ErrorType, _ int) bool {
		return t.Transient()
	})...)
}
