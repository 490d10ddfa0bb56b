package llm

import (
	"context"
	"errors"
	"fmt"
)

// Vars are the template variables a prompt is rendered with.
type Vars map[string]any

// TemplateFunc renders the conversation for one invocation of a prompt.
type TemplateFunc func(vars Vars) ([]Message, error)

// ErrNoModel is returned when a prompt is invoked without a model and no
// model override is in scope.
var ErrNoModel = errors.New("no model provided")

// Prompt is a reusable request template that is not bound to a model.
type Prompt struct {
	System   string
	Template TemplateFunc
	Toolkit  *Toolkit
}

// NewPrompt creates a prompt from a template function and optional tools.
func NewPrompt(system string, tmpl TemplateFunc, tools ...Tool) *Prompt {
	p := &Prompt{System: system, Template: tmpl}
	if len(tools) > 0 {
		p.Toolkit = NewToolkit(tools...)
	}
	return p
}

// TextPrompt creates a prompt with a single user message rendered with fmt.Sprintf
// from the "args" variable, or used verbatim when no args are supplied.
func TextPrompt(system, format string) *Prompt {
	return NewPrompt(system, func(vars Vars) ([]Message, error) {
		text := format
		if args, ok := vars["args"].([]any); ok && len(args) > 0 {
			text = fmt.Sprintf(format, args...)
		}
		return []Message{NewTextMessage(RoleUser, text)}, nil
	})
}

// Request renders the prompt into a request.
func (p *Prompt) Request(vars Vars) (*Request, error) {
	if p.Template == nil {
		return nil, errors.New("prompt has no template")
	}
	msgs, err := p.Template(vars)
	if err != nil {
		return nil, fmt.Errorf("failed to render prompt: %w", err)
	}
	return &Request{
		System:   p.System,
		Messages: msgs,
		Tools:    p.Toolkit.Specs(),
		Toolkit:  p.Toolkit,
	}, nil
}

// Call renders the prompt and sends it to model. A model override in ctx wins.
func (p *Prompt) Call(ctx context.Context, model Model, vars Vars) (*Response, error) {
	model, err := resolveModel(ctx, model)
	if err != nil {
		return nil, err
	}
	req, err := p.Request(vars)
	if err != nil {
		return nil, err
	}
	return model.Call(ctx, req)
}

// Stream renders the prompt and streams it from model. A model override in ctx wins.
func (p *Prompt) Stream(ctx context.Context, model Model, vars Vars) (Stream, error) {
	model, err := resolveModel(ctx, model)
	if err != nil {
		return nil, err
	}
	req, err := p.Request(vars)
	if err != nil {
		return nil, err
	}
	return model.Stream(ctx, req)
}

// Call is a prompt bound to a default model.
type Call struct {
	Prompt *Prompt
	Model  Model
}

// NewCall binds prompt to model.
func NewCall(model Model, prompt *Prompt) *Call {
	return &Call{Prompt: prompt, Model: model}
}

// ResolveModel returns the model the call will use in ctx.
func (c *Call) ResolveModel(ctx context.Context) (Model, error) {
	return resolveModel(ctx, c.Model)
}

// Call renders and sends the prompt.
func (c *Call) Call(ctx context.Context, vars Vars) (*Response, error) {
	return c.Prompt.Call(ctx, c.Model, vars)
}

// Stream renders and streams the prompt.
func (c *Call) Stream(ctx context.Context, vars Vars) (Stream, error) {
	return c.Prompt.Stream(ctx, c.Model, vars)
}

type modelKey struct{}

// WithModel returns a context in which model overrides the model of every
// call made with it or with a context derived from it.
func WithModel(ctx context.Context, model Model) context.Context {
	return context.WithValue(ctx, modelKey{}, model)
}

// ModelFromContext returns the model override in scope, if any.
func ModelFromContext(ctx context.Context) (Model, bool) {
	m, ok := ctx.Value(modelKey{}).(Model)
	return m, ok && m != nil
}

func resolveModel(ctx context.Context, fallback Model) (Model, error) {
	if m, ok := ModelFromContext(ctx); ok {
		return m, nil
	}
	if fallback == nil {
		return nil, ErrNoModel
	}
	return fallback, nil
}
