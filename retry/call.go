package retry

import (
	"context"

	"github.com/aschepis/backscratcher/llmretry/llm"
)

// Call binds an llm.Call, a prompt with a default model, to a retry policy.
type Call struct {
	call *llm.Call
	s    settings
}

// NewCall wraps call. The options are validated here, not per invocation.
func NewCall(call *llm.Call, opts ...Option) (*Call, error) {
	if call == nil || call.Prompt == nil {
		return nil, &UnsupportedTargetError{Target: call}
	}
	s := newSettings(opts)
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	return &Call{call: call, s: s}, nil
}

// With returns a new Call with opts applied on top of c's settings.
func (c *Call) With(opts ...Option) (*Call, error) {
	s := c.s.with(opts)
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	return &Call{call: c.call, s: s}, nil
}

// Config returns the retry policy.
func (c *Call) Config() Config { return c.s.config.clone() }

// Unwrap returns the wrapped call.
func (c *Call) Unwrap() *llm.Call { return c.call }

// Model returns the retry model an invocation in ctx uses. A model override in
// ctx wins over the call's default model: a retry model is used as it is, a
// plain model is wrapped with the call's policy.
func (c *Call) Model(ctx context.Context) (*Model, error) {
	return resolve(ctx, c.s, c.call.Model)
}

// Call renders the prompt and calls the resolved model.
func (c *Call) Call(ctx context.Context, vars llm.Vars) (*Response, error) {
	rm, req, err := c.prepare(ctx, vars)
	if err != nil {
		return nil, err
	}
	return rm.Call(ctx, req)
}

// CallAsync runs Call on its own goroutine.
func (c *Call) CallAsync(ctx context.Context, vars llm.Vars) *Future[*Response] {
	return goFuture(func() (*Response, error) { return c.Call(ctx, vars) })
}

// Stream renders the prompt and returns a stream response from the resolved
// model.
func (c *Call) Stream(ctx context.Context, vars llm.Vars) (*StreamResponse, error) {
	rm, req, err := c.prepare(ctx, vars)
	if err != nil {
		return nil, err
	}
	return rm.Stream(ctx, req)
}

// ContextCall is Call with cc attached.
func (c *Call) ContextCall(ctx context.Context, cc *llm.CallContext, vars llm.Vars) (*ContextResponse, error) {
	rm, req, err := c.prepare(ctx, vars)
	if err != nil {
		return nil, err
	}
	return rm.ContextCall(ctx, cc, req)
}

// ContextStream is Stream with cc attached.
func (c *Call) ContextStream(ctx context.Context, cc *llm.CallContext, vars llm.Vars) (*ContextStreamResponse, error) {
	rm, req, err := c.prepare(ctx, vars)
	if err != nil {
		return nil, err
	}
	return rm.ContextStream(ctx, cc, req)
}

func (c *Call) prepare(ctx context.Context, vars llm.Vars) (*Model, *llm.Request, error) {
	rm, err := c.Model(ctx)
	if err != nil {
		return nil, nil, err
	}
	req, err := c.call.Prompt.Request(vars)
	if err != nil {
		return nil, nil, err
	}
	return rm, req, nil
}

func (c *Call) rewrap(opts []Option) (Rewrapper, error) {
	if c == nil {
		return nil, &UnsupportedTargetError{Target: c}
	}
	next, err := c.With(opts...)
	if err != nil {
		return nil, err
	}
	return next, nil
}

// Prompt binds an llm.Prompt to a retry policy. The model is supplied per
// invocation.
type Prompt struct {
	prompt *llm.Prompt
	s      settings
}

// NewPrompt wraps prompt.
func NewPrompt(prompt *llm.Prompt, opts ...Option) (*Prompt, error) {
	if prompt == nil {
		return nil, &UnsupportedTargetError{Target: prompt}
	}
	s := newSettings(opts)
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	return &Prompt{prompt: prompt, s: s}, nil
}

// With returns a new Prompt with opts applied on top of p's settings.
func (p *Prompt) With(opts ...Option) (*Prompt, error) {
	s := p.s.with(opts)
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	return &Prompt{prompt: p.prompt, s: s}, nil
}

// Config returns the retry policy.
func (p *Prompt) Config() Config { return p.s.config.clone() }

// Unwrap returns the wrapped prompt.
func (p *Prompt) Unwrap() *llm.Prompt { return p.prompt }

// Bind returns a Call with model as its default and p's policy.
func (p *Prompt) Bind(model llm.Model) *Call {
	return &Call{call: llm.NewCall(model, p.prompt), s: p.s.with(nil)}
}

// Model returns the retry model an invocation with model in ctx uses.
func (p *Prompt) Model(ctx context.Context, model llm.Model) (*Model, error) {
	return resolve(ctx, p.s, model)
}

// Call renders the prompt and calls model, or the override in ctx.
func (p *Prompt) Call(ctx context.Context, model llm.Model, vars llm.Vars) (*Response, error) {
	return p.Bind(model).Call(ctx, vars)
}

// CallAsync runs Call on its own goroutine.
func (p *Prompt) CallAsync(ctx context.Context, model llm.Model, vars llm.Vars) *Future[*Response] {
	return goFuture(func() (*Response, error) { return p.Call(ctx, model, vars) })
}

// Stream renders the prompt and streams it from model, or the override in ctx.
func (p *Prompt) Stream(ctx context.Context, model llm.Model, vars llm.Vars) (*StreamResponse, error) {
	return p.Bind(model).Stream(ctx, vars)
}

// ContextCall is Call with cc attached.
func (p *Prompt) ContextCall(ctx context.Context, cc *llm.CallContext, model llm.Model, vars llm.Vars) (*ContextResponse, error) {
	return p.Bind(model).ContextCall(ctx, cc, vars)
}

// ContextStream is Stream with cc attached.
func (p *Prompt) ContextStream(ctx context.Context, cc *llm.CallContext, model llm.Model, vars llm.Vars) (*ContextStreamResponse, error) {
	return p.Bind(model).ContextStream(ctx, cc, vars)
}

func (p *Prompt) rewrap(opts []Option) (Rewrapper, error) {
	if p == nil {
		return nil, &UnsupportedTargetError{Target: p}
	}
	next, err := p.With(opts...)
	if err != nil {
		return nil, err
	}
	return next, nil
}

// resolve picks the retry model for an invocation. An override in ctx comes
// first, then def. Retry models are used as they are; plain models are
// wrapped with s.
func resolve(ctx context.Context, s settings, def llm.Model) (*Model, error) {
	m := def
	if override, ok := llm.ModelFromContext(ctx); ok {
		m = override
	}
	if m == nil {
		return nil, llm.ErrNoModel
	}
	if rm := asRetryModel(m); rm != nil {
		return rm, nil
	}
	return build(m, s)
}
