package llm

import (
	"context"
	"strings"
	"testing"
)

func textDelta(s string) *StreamEvent {
	return &StreamEvent{Type: StreamEventTypeContentDelta, Delta: &StreamDelta{Type: StreamDeltaTypeText, Text: s}}
}

func TestAccumulator_TextAndToolUse(t *testing.T) {
	acc := NewAccumulator()
	events := []*StreamEvent{
		{Type: StreamEventTypeStart},
		textDelta("Let me "),
		textDelta("check."),
		{Type: StreamEventTypeContentBlock, Delta: &StreamDelta{Type: StreamDeltaTypeToolUse, ToolUse: &ToolUseBlock{ID: "t1", Name: "weather"}}},
		{Type: StreamEventTypeContentDelta, Delta: &StreamDelta{Type: StreamDeltaTypeToolInput, ToolInput: `{"city":`}},
		{Type: StreamEventTypeContentDelta, Delta: &StreamDelta{Type: StreamDeltaTypeToolInput, ToolInput: `"Paris"}`}},
		{Type: StreamEventTypeMessageDelta, Usage: &Usage{InputTokens: 10, OutputTokens: 4}},
		{Type: StreamEventTypeStop, StopReason: "tool_use", Done: true},
	}
	for _, ev := range events {
		acc.Process(ev)
	}

	if !acc.Done() {
		t.Fatal("Expected accumulator to be done after stop event")
	}
	if acc.Chunks() != len(events) {
		t.Errorf("Expected %d chunks, got %d", len(events), acc.Chunks())
	}

	model := &stubModel{id: "anthropic/claude", params: Params{MaxTokens: 100}}
	resp := acc.Response(model, &Request{})
	if resp.Text() != "Let me check." {
		t.Errorf("Unexpected text %q", resp.Text())
	}
	calls := resp.ToolCalls()
	if len(calls) != 1 {
		t.Fatalf("Expected one tool call, got %d", len(calls))
	}
	if calls[0].Input["city"] != "Paris" {
		t.Errorf("Expected parsed tool input, got %+v", calls[0].Input)
	}
	if resp.StopReason != "tool_use" {
		t.Errorf("Expected stop reason tool_use, got %q", resp.StopReason)
	}
	if resp.Usage == nil || resp.Usage.OutputTokens != 4 {
		t.Errorf("Expected usage from message delta, got %+v", resp.Usage)
	}
	if resp.ModelID != "anthropic/claude" || resp.Params.MaxTokens != 100 {
		t.Errorf("Expected model identity on response, got %q %+v", resp.ModelID, resp.Params)
	}
}

func TestAccumulator_PartialAndReset(t *testing.T) {
	acc := NewAccumulator()
	acc.Process(textDelta("par"))
	acc.Process(textDelta("tial"))
	if acc.Done() {
		t.Error("Expected accumulator not to be done")
	}
	if acc.Text() != "partial" {
		t.Errorf("Expected partial text, got %q", acc.Text())
	}

	acc.Reset()
	if acc.Text() != "" || acc.Chunks() != 0 {
		t.Errorf("Expected reset to discard content, got %q (%d chunks)", acc.Text(), acc.Chunks())
	}
	acc.Process(textDelta("fresh"))
	if acc.Text() != "fresh" {
		t.Errorf("Expected only post-reset text, got %q", acc.Text())
	}
}

func TestAccumulator_InvalidToolInput(t *testing.T) {
	acc := NewAccumulator()
	acc.Process(&StreamEvent{Type: StreamEventTypeContentBlock, Delta: &StreamDelta{Type: StreamDeltaTypeToolUse, ToolUse: &ToolUseBlock{ID: "t1", Name: "x"}}})
	acc.Process(&StreamEvent{Type: StreamEventTypeContentDelta, Delta: &StreamDelta{Type: StreamDeltaTypeToolInput, ToolInput: `{"broken`}})
	acc.Process(&StreamEvent{Type: StreamEventTypeStop, Done: true})

	calls := acc.Response(nil, nil).ToolCalls()
	if len(calls) != 1 {
		t.Fatalf("Expected one tool call, got %d", len(calls))
	}
	if calls[0].Input == nil || len(calls[0].Input) != 0 {
		t.Errorf("Expected empty input for invalid JSON, got %+v", calls[0].Input)
	}
	if !calls[0].Malformed() || calls[0].RawInput != `{"broken` {
		t.Errorf("Expected raw input to be kept, got %q", calls[0].RawInput)
	}

	called := false
	tk := NewToolkit(Tool{
		Spec: ToolSpec{Name: "x"},
		Fn: func(ctx context.Context, input map[string]any) (any, error) {
			called = true
			return "ok", nil
		},
	})
	result := tk.Execute(context.Background(), calls[0])
	if called {
		t.Error("Expected the tool not to run with malformed input")
	}
	if result.ToolResult == nil || !result.ToolResult.IsError || !strings.Contains(result.ToolResult.Content, `{"broken`) {
		t.Errorf("Expected an error result naming the raw input, got %+v", result.ToolResult)
	}
}

func TestAccumulator_RepeatedStartDiscardsPartial(t *testing.T) {
	acc := NewAccumulator()
	acc.Process(&StreamEvent{Type: StreamEventTypeStart})
	acc.Process(textDelta("lost"))
	acc.Process(&StreamEvent{Type: StreamEventTypeStart})
	acc.Process(textDelta("kept"))
	acc.Process(&StreamEvent{Type: StreamEventTypeStop, Done: true})

	if acc.Text() != "kept" {
		t.Errorf("Expected only the restarted text, got %q", acc.Text())
	}
	if acc.Chunks() != 3 {
		t.Errorf("Expected 3 chunks after restart, got %d", acc.Chunks())
	}
}
