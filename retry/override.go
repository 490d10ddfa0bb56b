package retry

import (
	"context"

	"github.com/aschepis/backscratcher/llmretry/llm"
)

// WithModel returns a context in which model replaces the model of every
// retry call, prompt and resume run with it or a context derived from it.
// A plain model is wrapped with the policy of whatever it replaces.
func WithModel(ctx context.Context, model llm.Model) context.Context {
	return llm.WithModel(ctx, model)
}

// WithRetryModel is WithModel for a retry model, which is then used with its
// own policy and fallbacks.
func WithRetryModel(ctx context.Context, rm *Model) context.Context {
	if rm == nil {
		return ctx
	}
	return llm.WithModel(ctx, rm.AsModel())
}

// OverrideFromContext returns the model override in scope, if any.
func OverrideFromContext(ctx context.Context) (llm.Model, bool) {
	return llm.ModelFromContext(ctx)
}
