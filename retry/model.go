// Package retry wraps llm.Model implementations with retries, exponential
// backoff and ordered fallback models.
//
// A Model owns a chain made of a primary model followed by its fallbacks.
// Every model in the chain gets the full retry budget of the Config before the
// next one is tried. Errors that no RetryOn matcher accepts end the call
// immediately, whatever budget or fallbacks remain. Successful responses carry
// every failure recorded on the way and remember which model succeeded, so
// Resume continues on that model.
package retry

import (
	"context"
	"fmt"

	"github.com/aschepis/backscratcher/llmretry/llm"
	"github.com/rs/zerolog"
)

// Model is a primary model plus ordered fallbacks governed by one retry
// policy. It is immutable and safe for concurrent use.
type Model struct {
	primary llm.Model
	chain   []llm.Model
	s       settings
	logger  zerolog.Logger
}

// NewModel wraps primary. A primary that is itself a retry model is unwrapped
// to its plain primary model.
func NewModel(primary llm.Model, opts ...Option) (*Model, error) {
	if primary == nil {
		return nil, llm.ErrNoModel
	}
	return build(unwrap(primary), newSettings(opts))
}

// ModelByID resolves id through the configured resolver (llm.DefaultRegistry
// unless WithResolver is given) and wraps the result.
func ModelByID(id string, opts ...Option) (*Model, error) {
	s := newSettings(opts)
	if s.resolver == nil {
		return nil, ErrNoResolver
	}
	var params llm.Params
	if s.params != nil {
		params = *s.params
	}
	primary, err := s.resolver.Resolve(id, params)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve model %s: %w", id, err)
	}
	return build(primary, s)
}

func build(primary llm.Model, s settings) (*Model, error) {
	if err := s.config.Validate(); err != nil {
		return nil, err
	}

	chain := make([]llm.Model, 0, 1+len(s.fallbacks))
	chain = append(chain, primary)
	for _, fb := range s.fallbacks {
		m, err := fb.resolve(primary, s.resolver)
		if err != nil {
			return nil, err
		}
		chain = append(chain, m)
	}

	return &Model{
		primary: primary,
		chain:   chain,
		s:       s,
		logger:  s.logger.With().Str("component", "retry").Logger(),
	}, nil
}

// With returns a new Model with opts applied on top of m's settings.
func (m *Model) With(opts ...Option) (*Model, error) {
	return build(m.primary, m.s.with(opts))
}

// ModelID returns the primary model's identifier.
func (m *Model) ModelID() string { return m.primary.ModelID() }

// Params returns the primary model's params.
func (m *Model) Params() llm.Params { return m.primary.Params() }

// Primary returns the first model of the chain.
func (m *Model) Primary() llm.Model { return m.primary }

// Fallbacks returns the resolved fallback models in order.
func (m *Model) Fallbacks() []llm.Model {
	return append([]llm.Model(nil), m.chain[1:]...)
}

// Config returns the retry policy.
func (m *Model) Config() Config { return m.s.config.clone() }

// Call sends req through the chain and returns the first successful response.
// When every attempt fails with a retryable error it returns a
// *RetriesExhaustedError.
func (m *Model) Call(ctx context.Context, req *llm.Request) (*Response, error) {
	return m.call(ctx, req, m.chain)
}

// CallAsync runs Call on its own goroutine.
func (m *Model) CallAsync(ctx context.Context, req *llm.Request) *Future[*Response] {
	return goFuture(func() (*Response, error) { return m.Call(ctx, req) })
}

// ContextCall is Call with cc attached to the context of every attempt and of
// later resumes and tool executions.
func (m *Model) ContextCall(ctx context.Context, cc *llm.CallContext, req *llm.Request) (*ContextResponse, error) {
	resp, err := m.call(llm.WithCallContext(ctx, cc), req, m.chain)
	if err != nil {
		return nil, err
	}
	return &ContextResponse{Response: resp, CallContext: cc}, nil
}

// ContextCallAsync runs ContextCall on its own goroutine.
func (m *Model) ContextCallAsync(ctx context.Context, cc *llm.CallContext, req *llm.Request) *Future[*ContextResponse] {
	return goFuture(func() (*ContextResponse, error) { return m.ContextCall(ctx, cc, req) })
}

// Stream returns a stream response for req. No provider stream is opened
// until the first chunk is pulled.
func (m *Model) Stream(ctx context.Context, req *llm.Request) (*StreamResponse, error) {
	if req == nil {
		return nil, llm.NewBadRequestError("request is required", nil)
	}
	return m.newStream(req, m.chain, nil), nil
}

// ContextStream is Stream with cc attached to every pull.
func (m *Model) ContextStream(ctx context.Context, cc *llm.CallContext, req *llm.Request) (*ContextStreamResponse, error) {
	if req == nil {
		return nil, llm.NewBadRequestError("request is required", nil)
	}
	return &ContextStreamResponse{m.newStream(req, m.chain, cc)}, nil
}

// resumeChain picks the model and chain a continuation runs on. An override
// in ctx wins: a retry model is used as it is, a plain model gets m's policy
// and fallbacks, the same as in Call.Model.
// Otherwise the chain restarts at index, followed by the models after it and
// then the ones before it.
func (m *Model) resumeChain(ctx context.Context, chain []llm.Model, index int) (*Model, []llm.Model, error) {
	if override, ok := llm.ModelFromContext(ctx); ok {
		if rm := asRetryModel(override); rm != nil {
			return rm, rm.chain, nil
		}
		wrapped, err := build(override, m.s)
		if err != nil {
			return nil, nil, err
		}
		return wrapped, wrapped.chain, nil
	}
	sticky := make([]llm.Model, 0, len(chain))
	sticky = append(sticky, chain[index:]...)
	sticky = append(sticky, chain[:index]...)
	return m, sticky, nil
}

// Fallback is a model tried after the primary. Create one with FallbackID or
// FallbackModel.
type Fallback interface {
	resolve(primary llm.Model, r llm.Resolver) (llm.Model, error)
}

type fallbackID string

// FallbackID names a fallback by "provider/name". It is resolved with the
// primary model's params.
func FallbackID(id string) Fallback { return fallbackID(id) }

func (f fallbackID) resolve(primary llm.Model, r llm.Resolver) (llm.Model, error) {
	if r == nil {
		return nil, fmt.Errorf("fallback %s: %w", string(f), ErrNoResolver)
	}
	m, err := r.Resolve(string(f), primary.Params())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve fallback %s: %w", string(f), err)
	}
	return m, nil
}

type fallbackModel struct{ m llm.Model }

// FallbackModel uses m with its own params. A retry model is unwrapped to its
// primary; its policy and fallbacks are ignored.
func FallbackModel(m llm.Model) Fallback { return fallbackModel{m: m} }

func (f fallbackModel) resolve(llm.Model, llm.Resolver) (llm.Model, error) {
	if f.m == nil {
		return nil, fmt.Errorf("fallback: %w", llm.ErrNoModel)
	}
	return unwrap(f.m), nil
}

// retryCarrier is implemented by llm.Model values that stand for a *Model.
type retryCarrier interface {
	RetryModel() *Model
}

func asRetryModel(m llm.Model) *Model {
	if c, ok := m.(retryCarrier); ok {
		return c.RetryModel()
	}
	return nil
}

func unwrap(m llm.Model) llm.Model {
	if rm := asRetryModel(m); rm != nil {
		return rm.primary
	}
	return m
}
