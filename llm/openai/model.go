// Package openai implements llm.Model for OpenAI-compatible chat completion APIs.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/aschepis/backscratcher/llmretry/llm"
	openai "github.com/sashabaranov/go-openai"
)

// Model implements llm.Model for one OpenAI chat model.
type Model struct {
	client *openai.Client
	name   string
	params llm.Params
}

// NewClient creates an OpenAI client. baseURL and organization are optional.
func NewClient(apiKey, baseURL, organization string) (*openai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if organization != "" {
		config.OrgID = organization
	}
	return openai.NewClientWithConfig(config), nil
}

// NewWithClient creates a Model sharing an existing client.
func NewWithClient(client *openai.Client, name string, params llm.Params) *Model {
	return &Model{client: client, name: name, params: params}
}

// Factory returns an llm.Factory whose models share one client.
func Factory(apiKey, baseURL, organization string) llm.Factory {
	client, clientErr := NewClient(apiKey, baseURL, organization)
	return func(name string, params llm.Params) (llm.Model, error) {
		if clientErr != nil {
			return nil, clientErr
		}
		return NewWithClient(client, name, params), nil
	}
}

// ModelID implements llm.Model.
func (m *Model) ModelID() string {
	return llm.ProviderOpenAI + "/" + m.name
}

// Params implements llm.Model.
func (m *Model) Params() llm.Params {
	return m.params
}

func (m *Model) newRequest(req *llm.Request) (openai.ChatCompletionRequest, error) {
	msgs, err := ToOpenAIMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionRequest{}, llm.NewBadRequestError("failed to convert messages", err)
	}
	if req.System != "" {
		msgs = append([]openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		}}, msgs...)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    m.name,
		Messages: msgs,
		Stop:     m.params.StopSequences,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = ToOpenAITools(req.Tools)
		chatReq.ToolChoice = "auto"
	}
	if m.params.MaxTokens > 0 {
		chatReq.MaxTokens = int(m.params.MaxTokens)
	}
	if m.params.Temperature != nil {
		chatReq.Temperature = float32(*m.params.Temperature)
	}
	if m.params.TopP != nil {
		chatReq.TopP = float32(*m.params.TopP)
	}
	return chatReq, nil
}

// Call implements llm.Model.
func (m *Model) Call(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, llm.NewBadRequestError("request is required", nil)
	}
	chatReq, err := m.newRequest(req)
	if err != nil {
		return nil, err
	}

	chatResp, err := m.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, convertError(err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, llm.NewServerError("OpenAI returned no choices", 0, nil)
	}

	choice := chatResp.Choices[0]
	content := make([]llm.ContentBlock, 0, 1+len(choice.Message.ToolCalls))
	if choice.Message.Content != "" {
		content = append(content, llm.NewTextBlock(choice.Message.Content))
	}
	for _, toolCall := range choice.Message.ToolCalls {
		content = append(content, llm.ContentBlock{
			Type:    llm.ContentBlockTypeToolUse,
			ToolUse: FromOpenAIToolCall(toolCall),
		})
	}

	return &llm.Response{
		ModelID: m.ModelID(),
		Params:  m.params,
		Content: content,
		Usage: &llm.Usage{
			InputTokens:  int64(chatResp.Usage.PromptTokens),
			OutputTokens: int64(chatResp.Usage.CompletionTokens),
		},
		StopReason: stopReason(choice.FinishReason),
		Request:    req,
	}, nil
}

// Stream implements llm.Model. The HTTP request is sent immediately so that
// connection and status errors are returned here rather than from the stream.
func (m *Model) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	if req == nil {
		return nil, llm.NewBadRequestError("request is required", nil)
	}
	chatReq, err := m.newRequest(req)
	if err != nil {
		return nil, err
	}
	chatReq.Stream = true
	chatReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := m.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, convertError(err)
	}
	return newStream(ctx, stream), nil
}

func stopReason(reason openai.FinishReason) string {
	switch reason {
	case openai.FinishReasonLength:
		return "max_tokens"
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return "tool_calls"
	case "":
		return ""
	default:
		return "stop"
	}
}

// convertError maps go-openai errors onto the llm error taxonomy. The client
// does not expose response headers, so rate limit errors carry no retry-after.
func convertError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		llmErr := llm.FromStatusCode(apiErr.HTTPStatusCode, fmt.Sprintf("OpenAI API error: %s", apiErr.Message), err)
		llmErr.Provider = llm.ProviderOpenAI
		return llmErr
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		llmErr := llm.FromStatusCode(reqErr.HTTPStatusCode, fmt.Sprintf("OpenAI request failed (%d)", reqErr.HTTPStatusCode), err)
		llmErr.Provider = llm.ProviderOpenAI
		return llmErr
	}

	if llmErr := llm.ClassifyTransportError(llm.ProviderOpenAI, err); llmErr != nil {
		return llmErr
	}
	return err
}

var _ llm.Model = (*Model)(nil)
