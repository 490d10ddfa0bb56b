package openai

import (
	"context"
	"errors"
	"io"

	"github.com/aschepis/backscratcher/llmretry/llm"
	openai "github.com/sashabaranov/go-openai"
)

// chunkSource is the part of *openai.ChatCompletionStream the translator reads.
type chunkSource interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
}

func newStream(ctx context.Context, stream *openai.ChatCompletionStream) llm.Stream {
	return llm.NewPumpStream(ctx, func(ctx context.Context, emit func(*llm.StreamEvent)) error {
		return translate(stream, emit)
	}, stream.Close)
}

// translate reads chunks until io.EOF. Tool call arguments arrive as
// fragments keyed by index; the first fragment of each call carries its ID.
func translate(src chunkSource, emit func(*llm.StreamEvent)) error {
	emit(&llm.StreamEvent{Type: llm.StreamEventTypeStart})

	var usage *llm.Usage
	var finish string
	toolIndex := -1
	for {
		chunk, err := src.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return convertError(err)
		}

		if chunk.Usage != nil {
			usage = &llm.Usage{
				InputTokens:  int64(chunk.Usage.PromptTokens),
				OutputTokens: int64(chunk.Usage.CompletionTokens),
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			emit(&llm.StreamEvent{
				Type:  llm.StreamEventTypeContentDelta,
				Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeText, Text: choice.Delta.Content},
			})
		}

		for _, tc := range choice.Delta.ToolCalls {
			index := toolIndex
			if tc.Index != nil {
				index = *tc.Index
			}
			if tc.ID != "" && (index != toolIndex || toolIndex < 0) {
				toolIndex = index
				emit(&llm.StreamEvent{
					Type: llm.StreamEventTypeContentBlock,
					Delta: &llm.StreamDelta{
						Type:    llm.StreamDeltaTypeToolUse,
						ToolUse: &llm.ToolUseBlock{ID: tc.ID, Name: tc.Function.Name},
					},
				})
			}
			if tc.Function.Arguments != "" {
				emit(&llm.StreamEvent{
					Type:  llm.StreamEventTypeContentDelta,
					Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeToolInput, ToolInput: tc.Function.Arguments},
				})
			}
		}

		if choice.FinishReason != "" {
			finish = stopReason(choice.FinishReason)
		}
	}

	if finish == "" {
		return llm.NewConnectionError("openai stream ended without a finish reason", nil)
	}
	emit(&llm.StreamEvent{Type: llm.StreamEventTypeMessageDelta, Usage: usage, StopReason: finish})
	emit(&llm.StreamEvent{Type: llm.StreamEventTypeStop, Usage: usage, StopReason: finish, Done: true})
	return nil
}
