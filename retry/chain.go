package retry

import (
	"context"
	"errors"
	"time"

	"github.com/aschepis/backscratcher/llmretry/llm"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// cursor walks a chain one attempt at a time and records failures.
type cursor struct {
	m        *Model
	chain    []llm.Model
	callID   uuid.UUID
	stream   bool
	index    int
	attempt  int
	backoff  backoff.BackOff
	failures []Failure
}

func (m *Model) newCursor(chain []llm.Model, stream bool) *cursor {
	return &cursor{
		m:        m,
		chain:    chain,
		callID:   uuid.New(),
		stream:   stream,
		backoff:  m.s.config.newBackOff(),
		failures: []Failure{},
	}
}

func (c *cursor) model() llm.Model {
	return c.chain[c.index]
}

// wait sleeps before every attempt except the first on each model.
func (c *cursor) wait(ctx context.Context) (time.Duration, error) {
	if c.attempt == 0 {
		return 0, ctx.Err()
	}
	d := c.backoff.NextBackOff()
	c.m.logger.Debug().
		Str("call_id", c.callID.String()).
		Str("model", c.model().ModelID()).
		Int("attempt", c.attempt).
		Dur("delay", d).
		Msg("Backing off before retry")
	return d, c.m.s.sleep(ctx, d)
}

// settle classifies the result of the current attempt, records a retryable
// failure and moves the cursor to the next attempt.
func (c *cursor) settle(ctx context.Context, err error, delay, dur time.Duration) Outcome {
	a := Attempt{
		CallID:     c.callID,
		ModelID:    c.model().ModelID(),
		ModelIndex: c.index,
		Number:     c.attempt,
		Stream:     c.stream,
		Delay:      delay,
		Duration:   dur,
		Err:        err,
	}

	switch {
	case err == nil:
		a.Outcome = OutcomeSuccess
	case canceled(ctx, err):
		a.Outcome = OutcomeCanceled
	case !c.m.s.config.Retryable(err):
		a.Outcome = OutcomeFatal
	default:
		c.failures = append(c.failures, Failure{Model: c.model(), Err: err})
		switch {
		case c.attempt < c.m.s.config.MaxRetries:
			a.Outcome = OutcomeRetry
			c.attempt++
		case c.index+1 < len(c.chain):
			a.Outcome = OutcomeFallback
			c.index++
			c.attempt = 0
			c.backoff.Reset()
		default:
			a.Outcome = OutcomeExhausted
		}
	}

	c.log(a)
	if c.m.s.observer != nil {
		c.m.s.observer.ObserveAttempt(ctx, a)
	}
	return a.Outcome
}

func (c *cursor) log(a Attempt) {
	var ev *zerolog.Event
	switch a.Outcome {
	case OutcomeSuccess:
		if len(c.failures) == 0 {
			ev = c.m.logger.Debug()
		} else {
			ev = c.m.logger.Info().Int("failures", len(c.failures))
		}
		ev.Msg("Attempt succeeded")
		return
	case OutcomeRetry:
		ev = c.m.logger.Warn()
	case OutcomeFallback:
		ev = c.m.logger.Warn().Str("next_model", c.model().ModelID())
	case OutcomeExhausted:
		ev = c.m.logger.Error().Int("failures", len(c.failures))
	case OutcomeFatal:
		ev = c.m.logger.Warn().Bool("retryable", false)
	default:
		ev = c.m.logger.Debug()
	}
	if t, ok := llm.TypeOf(a.Err); ok {
		ev = ev.Str("error_type", string(t))
	}
	ev.Err(a.Err).
		Str("call_id", a.CallID.String()).
		Str("model", a.ModelID).
		Int("attempt", a.Number).
		Bool("stream", a.Stream).
		Dur("duration", a.Duration).
		Msgf("Attempt failed (%s)", a.Outcome)
}

func (c *cursor) exhausted() error {
	return &RetriesExhaustedError{Failures: append([]Failure(nil), c.failures...)}
}

func canceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

// call runs the attempt loop over chain.
func (m *Model) call(ctx context.Context, req *llm.Request, chain []llm.Model) (*Response, error) {
	if req == nil {
		return nil, llm.NewBadRequestError("request is required", nil)
	}

	c := m.newCursor(chain, false)
	for {
		delay, err := c.wait(ctx)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := c.model().Call(ctx, req)
		if err == nil && resp == nil {
			err = llm.NewServerError("model returned no response", 0, nil)
		}
		if err == nil && m.s.validate != nil {
			err = m.s.validate(resp)
		}

		index := c.index
		switch c.settle(ctx, err, delay, time.Since(start)) {
		case OutcomeSuccess:
			return newResponse(m, resp, chain, index, c.failures), nil
		case OutcomeRetry, OutcomeFallback:
			continue
		case OutcomeExhausted:
			return nil, c.exhausted()
		default:
			return nil, err
		}
	}
}
