package retry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aschepis/backscratcher/llmretry/llm"
)

var (
	// ErrInvalidConfig is wrapped by every configuration validation error.
	ErrInvalidConfig = errors.New("invalid retry config")

	ErrInvalidMaxRetries        = fmt.Errorf("%w: max retries must be >= 0", ErrInvalidConfig)
	ErrInvalidInitialDelay      = fmt.Errorf("%w: initial delay must be >= 0", ErrInvalidConfig)
	ErrInvalidMaxDelay          = fmt.Errorf("%w: max delay must be >= 0", ErrInvalidConfig)
	ErrInvalidBackoffMultiplier = fmt.Errorf("%w: backoff multiplier must be finite and >= 1", ErrInvalidConfig)
	ErrInvalidJitter            = fmt.Errorf("%w: jitter must be between 0 and 1", ErrInvalidConfig)

	// ErrRetriesExhausted matches any *RetriesExhaustedError.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrStreamRestarted matches any *StreamRestartedError.
	ErrStreamRestarted = errors.New("stream restarted")

	// ErrStreamNotConsumed is returned by Resume on a stream that has not finished.
	ErrStreamNotConsumed = errors.New("stream has not been consumed")
	// ErrConcurrentIteration is returned when a stream response is pulled from
	// more than one goroutine at a time.
	ErrConcurrentIteration = errors.New("stream response is already being iterated")
	// ErrNoResolver is returned when a model identifier cannot be resolved.
	ErrNoResolver = errors.New("no model resolver configured")
)

// Failure records one failed attempt.
type Failure struct {
	Model llm.Model
	Err   error
}

func (f Failure) String() string {
	return fmt.Sprintf("%s: %v", f.Model.ModelID(), f.Err)
}

// RetriesExhaustedError is returned once every model in the chain has used
// its full retry budget. Failures are in chronological order.
type RetriesExhaustedError struct {
	Failures []Failure
}

func (e *RetriesExhaustedError) Error() string {
	if len(e.Failures) == 0 {
		return ErrRetriesExhausted.Error()
	}
	models := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		if id := f.Model.ModelID(); len(models) == 0 || models[len(models)-1] != id {
			models = append(models, id)
		}
	}
	last := e.Failures[len(e.Failures)-1]
	return fmt.Sprintf("%s after %d attempts on %s: %v",
		ErrRetriesExhausted, len(e.Failures), strings.Join(models, ", "), last.Err)
}

// Is matches ErrRetriesExhausted.
func (e *RetriesExhaustedError) Is(target error) bool {
	return target == ErrRetriesExhausted
}

// Unwrap exposes every recorded failure to errors.Is and errors.As.
func (e *RetriesExhaustedError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// StreamRestartedError is returned by a stream response in place of a
// retryable failure. The consumer iterates the same response again to receive
// the restarted stream from its beginning.
type StreamRestartedError struct {
	Failure Failure
	// Attempt is the 1-based number of failed attempts so far.
	Attempt int
}

func (e *StreamRestartedError) Error() string {
	return fmt.Sprintf("%s after attempt %d (%s)", ErrStreamRestarted, e.Attempt, e.Failure)
}

// Is matches ErrStreamRestarted.
func (e *StreamRestartedError) Is(target error) bool {
	return target == ErrStreamRestarted
}

func (e *StreamRestartedError) Unwrap() error {
	return e.Failure.Err
}

// UnsupportedTargetError is returned by Retry for values it cannot wrap.
type UnsupportedTargetError struct {
	Target any
}

func (e *UnsupportedTargetError) Error() string {
	return fmt.Sprintf("retry: unsupported target type %T", e.Target)
}
