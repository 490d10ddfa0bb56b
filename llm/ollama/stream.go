package ollama

import (
	"encoding/json"

	"github.com/aschepis/backscratcher/llmretry/llm"
	"github.com/ollama/ollama/api"
)

// translator turns Ollama chat chunks into llm.StreamEvents. Ollama delivers
// tool calls whole, so each becomes a content block plus one input delta.
type translator struct {
	emit  func(*llm.StreamEvent)
	tools []llm.ToolSpec
	calls int
	last  *api.ChatResponse
}

func (t *translator) handle(resp api.ChatResponse) error {
	if resp.Message.Content != "" {
		t.emit(&llm.StreamEvent{
			Type:  llm.StreamEventTypeContentDelta,
			Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeText, Text: resp.Message.Content},
		})
	}

	for _, toolCall := range resp.Message.ToolCalls {
		block := FromOllamaToolCall(toolCall, t.calls, t.tools)
		t.calls++
		t.emit(&llm.StreamEvent{
			Type: llm.StreamEventTypeContentBlock,
			Delta: &llm.StreamDelta{
				Type:    llm.StreamDeltaTypeToolUse,
				ToolUse: &llm.ToolUseBlock{ID: block.ID, Name: block.Name},
			},
		})
		input, err := json.Marshal(block.Input)
		if err != nil {
			return err
		}
		t.emit(&llm.StreamEvent{
			Type:  llm.StreamEventTypeContentDelta,
			Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeToolInput, ToolInput: string(input)},
		})
	}

	if resp.Done {
		t.last = &resp
	}
	return nil
}

func (t *translator) finish() error {
	if t.last == nil {
		return llm.NewConnectionError("ollama stream ended before done", nil)
	}

	usage := &llm.Usage{
		InputTokens:  int64(t.last.PromptEvalCount),
		OutputTokens: int64(t.last.EvalCount),
	}
	reason := stopReason(*t.last)
	if t.calls > 0 {
		reason = "tool_calls"
	}
	t.emit(&llm.StreamEvent{Type: llm.StreamEventTypeMessageDelta, Usage: usage, StopReason: reason})
	t.emit(&llm.StreamEvent{Type: llm.StreamEventTypeStop, Usage: usage, StopReason: reason, Done: true})
	return nil
}
