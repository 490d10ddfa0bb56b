package retry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Outcome classifies how an attempt ended and what the loop did next.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeRetry     Outcome = "retry"     // retried on the same model
	OutcomeFallback  Outcome = "fallback"  // moved on to the next model
	OutcomeExhausted Outcome = "exhausted" // last attempt of the chain failed
	OutcomeFatal     Outcome = "fatal"     // not retryable
	OutcomeCanceled  Outcome = "canceled"
)

// Attempt describes one physical attempt against a model.
type Attempt struct {
	// CallID identifies the logical call the attempt belongs to. Resumed
	// calls get a new ID.
	CallID     uuid.UUID
	ModelID    string
	ModelIndex int
	// Number is the 0-based attempt on this model.
	Number   int
	Stream   bool
	Delay    time.Duration
	Duration time.Duration
	Err      error
	Outcome  Outcome
}

// Observer is notified after every attempt. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveAttempt(ctx context.Context, a Attempt)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(ctx context.Context, a Attempt)

// ObserveAttempt implements Observer.
func (f ObserverFunc) ObserveAttempt(ctx context.Context, a Attempt) {
	f(ctx, a)
}

// Observers fans an attempt out to several observers in order.
type Observers []Observer

// ObserveAttempt implements Observer.
func (o Observers) ObserveAttempt(ctx context.Context, a Attempt) {
	for _, obs := range o {
		obs.ObserveAttempt(ctx, a)
	}
}
