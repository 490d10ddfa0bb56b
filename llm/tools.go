package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samber/lo"
)

// ToolFunc executes a tool call and returns its JSON-serialisable result.
type ToolFunc func(ctx context.Context, input map[string]any) (any, error)

// Tool pairs a tool definition with its implementation.
type Tool struct {
	Spec ToolSpec
	Fn   ToolFunc
}

// Toolkit is a named set of tools that can execute the calls a model requests.
type Toolkit struct {
	tools map[string]Tool
	order []string
}

// NewToolkit builds a toolkit. Later tools replace earlier ones with the same name.
func NewToolkit(tools ...Tool) *Toolkit {
	tk := &Toolkit{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, exists := tk.tools[t.Spec.Name]; !exists {
			tk.order = append(tk.order, t.Spec.Name)
		}
		tk.tools[t.Spec.Name] = t
	}
	return tk
}

// Specs returns the tool definitions in registration order.
func (tk *Toolkit) Specs() []ToolSpec {
	if tk == nil {
		return nil
	}
	return lo.Map(tk.order, func(name string, _ int) ToolSpec {
		return tk.tools[name].Spec
	})
}

// Execute runs a single tool call. Failures are reported to the model as an
// error result rather than returned.
func (tk *Toolkit) Execute(ctx context.Context, call ToolUseBlock) ContentBlock {
	tool, ok := tk.lookup(call.Name)
	if !ok {
		return NewToolResultBlock(call.ID, fmt.Sprintf("unknown tool %q", call.Name), true)
	}
	if call.Malformed() {
		return NewToolResultBlock(call.ID, fmt.Sprintf("malformed input for tool %q: %s", call.Name, call.RawInput), true)
	}
	out, err := tool.Fn(ctx, call.Input)
	if err != nil {
		return NewToolResultBlock(call.ID, err.Error(), true)
	}
	if s, ok := out.(string); ok {
		return NewToolResultBlock(call.ID, s, false)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return NewToolResultBlock(call.ID, fmt.Sprintf("failed to encode result: %v", err), true)
	}
	return NewToolResultBlock(call.ID, string(data), false)
}

func (tk *Toolkit) lookup(name string) (Tool, bool) {
	if tk == nil {
		return Tool{}, false
	}
	t, ok := tk.tools[name]
	return t, ok
}

// ExecuteTools runs every tool call in the response with the request's toolkit
// and returns the results, ready to be passed back when resuming.
func (r *Response) ExecuteTools(ctx context.Context) []ContentBlock {
	var tk *Toolkit
	if r.Request != nil {
		tk = r.Request.Toolkit
	}
	return lo.Map(r.ToolCalls(), func(call ToolUseBlock, _ int) ContentBlock {
		return tk.Execute(ctx, call)
	})
}

// CallContext carries caller dependencies into context-aware calls and their tools.
type CallContext struct {
	Deps any
}

type callContextKey struct{}

// WithCallContext stores cc on ctx.
func WithCallContext(ctx context.Context, cc *CallContext) context.Context {
	return context.WithValue(ctx, callContextKey{}, cc)
}

// CallContextFrom returns the CallContext stored on ctx, if any.
func CallContextFrom(ctx context.Context) (*CallContext, bool) {
	cc, ok := ctx.Value(callContextKey{}).(*CallContext)
	return cc, ok && cc != nil
}
