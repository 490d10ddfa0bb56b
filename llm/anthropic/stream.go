package anthropic

import (
	"context"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/aschepis/backscratcher/llmretry/llm"
)

// newStream opens a streaming Messages request when the returned stream is
// first advanced and translates Anthropic events into llm.StreamEvents.
func newStream(ctx context.Context, m *Model, params anthropic.MessageNewParams) llm.Stream {
	return llm.NewPumpStream(ctx, func(ctx context.Context, emit func(*llm.StreamEvent)) error {
		stream := m.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()
		return translate(stream.Next, stream.Current, stream.Err, emit, m)
	}, nil)
}

// translate drains an Anthropic event stream. Tool input JSON is forwarded as
// deltas and assembled by the consumer's accumulator.
func translate(
	next func() bool,
	current func() anthropic.MessageStreamEventUnion,
	streamErr func() error,
	emit func(*llm.StreamEvent),
	m *Model,
) error {
	emit(&llm.StreamEvent{Type: llm.StreamEventTypeStart})

	var usage *llm.Usage
	var stopReason string
	for next() {
		event := current()
		switch evt := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			usage = &llm.Usage{
				InputTokens:              evt.Message.Usage.InputTokens,
				CacheCreationInputTokens: evt.Message.Usage.CacheCreationInputTokens,
				CacheReadInputTokens:     evt.Message.Usage.CacheReadInputTokens,
			}

		case anthropic.ContentBlockStartEvent:
			if block, ok := evt.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				emit(&llm.StreamEvent{
					Type: llm.StreamEventTypeContentBlock,
					Delta: &llm.StreamDelta{
						Type:    llm.StreamDeltaTypeToolUse,
						ToolUse: &llm.ToolUseBlock{ID: block.ID, Name: block.Name},
					},
				})
			}

		case anthropic.ContentBlockDeltaEvent:
			switch d := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if d.Text != "" {
					emit(&llm.StreamEvent{
						Type:  llm.StreamEventTypeContentDelta,
						Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeText, Text: d.Text},
					})
				}
			case anthropic.InputJSONDelta:
				if d.PartialJSON != "" {
					emit(&llm.StreamEvent{
						Type:  llm.StreamEventTypeContentDelta,
						Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeToolInput, ToolInput: d.PartialJSON},
					})
				}
			}

		case anthropic.MessageDeltaEvent:
			if usage == nil {
				usage = &llm.Usage{}
			}
			usage.OutputTokens = evt.Usage.OutputTokens
			if evt.Usage.InputTokens > 0 {
				usage.InputTokens = evt.Usage.InputTokens
			}
			stopReason = string(evt.Delta.StopReason)
			emit(&llm.StreamEvent{Type: llm.StreamEventTypeMessageDelta, Usage: usage, StopReason: stopReason})

		case anthropic.MessageStopEvent:
			if usage != nil {
				m.logCacheStats(usage, "Prompt cache stats (stream)")
			}
			emit(&llm.StreamEvent{Type: llm.StreamEventTypeStop, Usage: usage, StopReason: stopReason, Done: true})
			return nil
		}
	}

	if err := streamErr(); err != nil {
		return convertError(err)
	}
	// The connection ended without a message_stop event.
	return llm.NewConnectionError("anthropic stream ended before message_stop", nil)
}
