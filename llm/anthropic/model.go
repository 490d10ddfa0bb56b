// Package anthropic implements llm.Model on top of Anthropic's Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aschepis/backscratcher/llmretry/llm"
	"github.com/rs/zerolog"
)

// defaultMaxTokens is used when the bound params leave MaxTokens unset; the
// Messages API requires it.
const defaultMaxTokens = 4096

// Model implements llm.Model for one Anthropic model.
type Model struct {
	client *anthropic.Client
	name   string
	params llm.Params
	logger zerolog.Logger
}

// NewClient creates an Anthropic API client.
func NewClient(apiKey string) (*anthropic.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &client, nil
}

// New creates a Model with its own client.
func New(apiKey, name string, params llm.Params, logger zerolog.Logger) (*Model, error) {
	client, err := NewClient(apiKey)
	if err != nil {
		return nil, err
	}
	return NewWithClient(client, name, params, logger), nil
}

// NewWithClient creates a Model sharing an existing client.
func NewWithClient(client *anthropic.Client, name string, params llm.Params, logger zerolog.Logger) *Model {
	return &Model{
		client: client,
		name:   name,
		params: params,
		logger: logger.With().Str("component", "anthropic").Str("model", name).Logger(),
	}
}

// Factory returns an llm.Factory whose models share one client.
func Factory(apiKey string, logger zerolog.Logger) llm.Factory {
	client, clientErr := NewClient(apiKey)
	return func(name string, params llm.Params) (llm.Model, error) {
		if clientErr != nil {
			return nil, clientErr
		}
		return NewWithClient(client, name, params, logger), nil
	}
}

// ModelID implements llm.Model.
func (m *Model) ModelID() string {
	return llm.ProviderAnthropic + "/" + m.name
}

// Params implements llm.Model.
func (m *Model) Params() llm.Params {
	return m.params
}

func (m *Model) newParams(req *llm.Request) (anthropic.MessageNewParams, error) {
	msgs, err := ToMessageParams(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, llm.NewBadRequestError("failed to convert messages", err)
	}

	maxTokens := m.params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:         anthropic.Model(m.name),
		MaxTokens:     maxTokens,
		Messages:      msgs,
		Tools:         ToToolUnionParams(req.Tools),
		StopSequences: m.params.StopSequences,
	}
	if req.System != "" {
		params.System = buildSystemBlocks(req.System)
	}
	if m.params.Temperature != nil {
		params.Temperature = anthropic.Float(*m.params.Temperature)
	}
	if m.params.TopP != nil {
		params.TopP = anthropic.Float(*m.params.TopP)
	}
	return params, nil
}

// Call implements llm.Model.
func (m *Model) Call(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, llm.NewBadRequestError("request is required", nil)
	}
	params, err := m.newParams(req)
	if err != nil {
		return nil, err
	}

	message, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, convertError(err)
	}

	content := make([]llm.ContentBlock, 0, len(message.Content))
	for _, blockUnion := range message.Content {
		switch block := blockUnion.AsAny().(type) {
		case anthropic.TextBlock:
			content = append(content, llm.NewTextBlock(block.Text))
		case anthropic.ToolUseBlock:
			content = append(content, llm.ContentBlock{
				Type: llm.ContentBlockTypeToolUse,
				ToolUse: &llm.ToolUseBlock{
					ID:    block.ID,
					Name:  block.Name,
					Input: decodeInput(block.Input),
				},
			})
		}
	}

	usage := &llm.Usage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}
	m.logCacheStats(usage, "Prompt cache stats")

	return &llm.Response{
		ModelID:    m.ModelID(),
		Params:     m.params,
		Content:    content,
		Usage:      usage,
		StopReason: string(message.StopReason),
		Request:    req,
	}, nil
}

// Stream implements llm.Model. Connection failures surface from the stream's
// Err once iteration starts.
func (m *Model) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	if req == nil {
		return nil, llm.NewBadRequestError("request is required", nil)
	}
	params, err := m.newParams(req)
	if err != nil {
		return nil, err
	}
	return newStream(ctx, m, params), nil
}

func (m *Model) logCacheStats(usage *llm.Usage, msg string) {
	if usage.CacheCreationInputTokens == 0 && usage.CacheReadInputTokens == 0 {
		return
	}
	cacheEfficiency := float64(0)
	if usage.InputTokens > 0 {
		cacheEfficiency = float64(usage.CacheReadInputTokens) / float64(usage.InputTokens) * 100
	}
	m.logger.Debug().
		Int64("input_tokens", usage.InputTokens).
		Int64("cache_creation_tokens", usage.CacheCreationInputTokens).
		Int64("cache_read_tokens", usage.CacheReadInputTokens).
		Float64("cache_efficiency", cacheEfficiency).
		Msg(msg)
}

// buildSystemBlocks creates the system block with prompt caching enabled.
// cache_control on the system block caches the full prefix of tools and system.
func buildSystemBlocks(systemPrompt string) []anthropic.TextBlockParam {
	return []anthropic.TextBlockParam{
		{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
	}
}

// convertError maps Anthropic SDK errors onto the llm error taxonomy.
func convertError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		llmErr := llm.FromStatusCode(apiErr.StatusCode, fmt.Sprintf("Anthropic API error (%d)", apiErr.StatusCode), err)
		llmErr.Provider = llm.ProviderAnthropic
		if llmErr.Type == llm.ErrorTypeRateLimit && apiErr.Response != nil {
			llmErr.RetryAfter = llm.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"), time.Now())
		}
		return llmErr
	}

	if llmErr := llm.ClassifyTransportError(llm.ProviderAnthropic, err); llmErr != nil {
		return llmErr
	}
	return err
}

var _ llm.Model = (*Model)(nil)
