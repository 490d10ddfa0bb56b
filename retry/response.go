package retry

import (
	"context"

	"github.com/aschepis/backscratcher/llmretry/llm"
)

// Response is a successful response together with the failures recorded
// while obtaining it. The embedded *llm.Response exposes content, tool calls
// and usage unchanged.
type Response struct {
	*llm.Response

	rm       *Model
	chain    []llm.Model
	index    int
	failures []Failure
}

func newResponse(rm *Model, resp *llm.Response, chain []llm.Model, index int, failures []Failure) *Response {
	return &Response{
		Response: resp,
		rm:       rm,
		chain:    chain,
		index:    index,
		failures: append([]Failure{}, failures...),
	}
}

// RetryFailures returns the failed attempts that preceded this response in
// chronological order. It is empty, not nil, when nothing failed.
func (r *Response) RetryFailures() []Failure {
	return append([]Failure{}, r.failures...)
}

// Model returns the model that produced the response.
func (r *Response) Model() llm.Model {
	return r.chain[r.index]
}

// RetryModel returns the retry model the response was obtained through.
func (r *Response) RetryModel() *Model {
	return r.rm
}

// Resume continues the conversation with content appended as a user turn.
// The continuation starts on the model that produced r, unless ctx carries a
// model override.
func (r *Response) Resume(ctx context.Context, content ...llm.ContentBlock) (*Response, error) {
	rm, chain, err := r.rm.resumeChain(ctx, r.chain, r.index)
	if err != nil {
		return nil, err
	}
	return rm.call(ctx, r.Response.FollowUp(content...), chain)
}

// ResumeAsync runs Resume on its own goroutine.
func (r *Response) ResumeAsync(ctx context.Context, content ...llm.ContentBlock) *Future[*Response] {
	return goFuture(func() (*Response, error) { return r.Resume(ctx, content...) })
}

// ContextResponse is a Response whose resumes and tool executions run with a
// call context attached.
type ContextResponse struct {
	*Response
	CallContext *llm.CallContext
}

// Resume continues the conversation with the call context attached.
func (r *ContextResponse) Resume(ctx context.Context, content ...llm.ContentBlock) (*ContextResponse, error) {
	resp, err := r.Response.Resume(llm.WithCallContext(ctx, r.CallContext), content...)
	if err != nil {
		return nil, err
	}
	return &ContextResponse{Response: resp, CallContext: r.CallContext}, nil
}

// ResumeAsync runs Resume on its own goroutine.
func (r *ContextResponse) ResumeAsync(ctx context.Context, content ...llm.ContentBlock) *Future[*ContextResponse] {
	return goFuture(func() (*ContextResponse, error) { return r.Resume(ctx, content...) })
}

// ExecuteTools runs the response's tool calls with the call context attached.
func (r *ContextResponse) ExecuteTools(ctx context.Context) []llm.ContentBlock {
	return r.Response.ExecuteTools(llm.WithCallContext(ctx, r.CallContext))
}
