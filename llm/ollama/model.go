// Package ollama implements llm.Model for a local or remote Ollama server.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aschepis/backscratcher/llmretry/llm"
	"github.com/ollama/ollama/api"
)

// Model implements llm.Model for one Ollama model.
type Model struct {
	client *api.Client
	name   string
	params llm.Params
}

// NewClient creates an Ollama client. An empty host defers to OLLAMA_HOST and
// then http://localhost:11434.
func NewClient(host string) (*api.Client, error) {
	if host == "" {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return client, nil
	}
	baseURL, err := parseHost(host)
	if err != nil {
		return nil, fmt.Errorf("invalid host: %w", err)
	}
	return api.NewClient(baseURL, &http.Client{}), nil
}

func parseHost(host string) (*url.URL, error) {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return url.Parse(host)
}

// NewWithClient creates a Model sharing an existing client.
func NewWithClient(client *api.Client, name string, params llm.Params) *Model {
	return &Model{client: client, name: name, params: params}
}

// Factory returns an llm.Factory whose models share one client.
func Factory(host string) llm.Factory {
	client, clientErr := NewClient(host)
	return func(name string, params llm.Params) (llm.Model, error) {
		if clientErr != nil {
			return nil, clientErr
		}
		return NewWithClient(client, name, params), nil
	}
}

// ModelID implements llm.Model.
func (m *Model) ModelID() string {
	return llm.ProviderOllama + "/" + m.name
}

// Params implements llm.Model.
func (m *Model) Params() llm.Params {
	return m.params
}

func (m *Model) newRequest(req *llm.Request, stream bool) *api.ChatRequest {
	msgs := ToOllamaMessages(req.Messages)
	if req.System != "" {
		msgs = append([]api.Message{{Role: "system", Content: req.System}}, msgs...)
	}

	chatReq := &api.ChatRequest{
		Model:    m.name,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{},
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = ToOllamaTools(req.Tools)
	}
	if m.params.MaxTokens > 0 {
		chatReq.Options["num_predict"] = int(m.params.MaxTokens)
	}
	if m.params.Temperature != nil {
		chatReq.Options["temperature"] = *m.params.Temperature
	}
	if m.params.TopP != nil {
		chatReq.Options["top_p"] = *m.params.TopP
	}
	if len(m.params.StopSequences) > 0 {
		chatReq.Options["stop"] = m.params.StopSequences
	}
	return chatReq
}

// Call implements llm.Model.
func (m *Model) Call(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, llm.NewBadRequestError("request is required", nil)
	}

	var chatResp api.ChatResponse
	err := m.client.Chat(ctx, m.newRequest(req, false), func(resp api.ChatResponse) error {
		chatResp = resp
		return nil
	})
	if err != nil {
		return nil, convertError(err)
	}

	content := make([]llm.ContentBlock, 0, 1+len(chatResp.Message.ToolCalls))
	if chatResp.Message.Content != "" {
		content = append(content, llm.NewTextBlock(chatResp.Message.Content))
	}
	for i, toolCall := range chatResp.Message.ToolCalls {
		content = append(content, llm.ContentBlock{
			Type:    llm.ContentBlockTypeToolUse,
			ToolUse: FromOllamaToolCall(toolCall, i, req.Tools),
		})
	}

	return &llm.Response{
		ModelID: m.ModelID(),
		Params:  m.params,
		Content: content,
		Usage: &llm.Usage{
			InputTokens:  int64(chatResp.PromptEvalCount),
			OutputTokens: int64(chatResp.EvalCount),
		},
		StopReason: stopReason(chatResp),
		Request:    req,
	}, nil
}

// Stream implements llm.Model. The chat request is sent when the stream is
// first advanced.
func (m *Model) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	if req == nil {
		return nil, llm.NewBadRequestError("request is required", nil)
	}
	chatReq := m.newRequest(req, true)
	return llm.NewPumpStream(ctx, func(ctx context.Context, emit func(*llm.StreamEvent)) error {
		t := &translator{emit: emit, tools: req.Tools}
		emit(&llm.StreamEvent{Type: llm.StreamEventTypeStart})
		if err := m.client.Chat(ctx, chatReq, t.handle); err != nil {
			return convertError(err)
		}
		return t.finish()
	}, nil), nil
}

func stopReason(resp api.ChatResponse) string {
	if len(resp.Message.ToolCalls) > 0 {
		return "tool_calls"
	}
	if resp.DoneReason != "" {
		return resp.DoneReason
	}
	return "stop"
}

// convertError maps Ollama client errors onto the llm error taxonomy.
func convertError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}

	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		msg := statusErr.ErrorMessage
		if msg == "" {
			msg = statusErr.Status
		}
		llmErr := llm.FromStatusCode(statusErr.StatusCode, "Ollama error: "+msg, err)
		llmErr.Provider = llm.ProviderOllama
		return llmErr
	}

	if llmErr := llm.ClassifyTransportError(llm.ProviderOllama, err); llmErr != nil {
		return llmErr
	}
	return err
}

var _ llm.Model = (*Model)(nil)
