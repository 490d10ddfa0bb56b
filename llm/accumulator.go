package llm

import (
	"encoding/json"
	"strings"
)

// Accumulator collects StreamEvent values and produces a complete Response.
// It bridges streaming mode back to code that expects a Response.
type Accumulator struct {
	content    []ContentBlock
	text       *strings.Builder
	tool       *ToolUseBlock
	toolInput  strings.Builder
	usage      *Usage
	stopReason string
	chunks     int
	done       bool
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Process folds one event into the accumulated response.
func (a *Accumulator) Process(ev *StreamEvent) {
	if a == nil || ev == nil {
		return
	}
	if ev.Type == StreamEventTypeStart && a.chunks > 0 {
		// A restarted stream begins the response again.
		a.Reset()
	}
	a.chunks++
	switch ev.Type {
	case StreamEventTypeContentBlock:
		if ev.Delta != nil && ev.Delta.Type == StreamDeltaTypeToolUse && ev.Delta.ToolUse != nil {
			a.flush()
			a.tool = &ToolUseBlock{ID: ev.Delta.ToolUse.ID, Name: ev.Delta.ToolUse.Name}
		}
	case StreamEventTypeContentDelta:
		if ev.Delta == nil {
			return
		}
		switch ev.Delta.Type {
		case StreamDeltaTypeText:
			if a.tool != nil {
				a.flush()
			}
			if a.text == nil {
				a.text = &strings.Builder{}
			}
			a.text.WriteString(ev.Delta.Text)
		case StreamDeltaTypeToolInput:
			if a.tool != nil {
				a.toolInput.WriteString(ev.Delta.ToolInput)
			}
		}
	case StreamEventTypeMessageDelta:
		if ev.Usage != nil {
			a.usage = ev.Usage
		}
		if ev.StopReason != "" {
			a.stopReason = ev.StopReason
		}
	case StreamEventTypeStop:
		if ev.Usage != nil {
			a.usage = ev.Usage
		}
		if ev.StopReason != "" {
			a.stopReason = ev.StopReason
		}
		a.flush()
		a.done = true
	}
}

// flush closes the block under construction.
func (a *Accumulator) flush() {
	if a.text != nil {
		a.content = append(a.content, NewTextBlock(a.text.String()))
		a.text = nil
	}
	if a.tool != nil {
		input := map[string]any{}
		if a.toolInput.Len() > 0 {
			if err := json.Unmarshal([]byte(a.toolInput.String()), &input); err != nil || input == nil {
				input = map[string]any{}
				a.tool.RawInput = a.toolInput.String()
			}
		}
		a.tool.Input = input
		a.content = append(a.content, ContentBlock{Type: ContentBlockTypeToolUse, ToolUse: a.tool})
		a.tool = nil
		a.toolInput.Reset()
	}
}

// Reset discards everything accumulated so far.
func (a *Accumulator) Reset() {
	*a = Accumulator{}
}

// Done reports whether a stop event has been processed.
func (a *Accumulator) Done() bool {
	return a.done
}

// Chunks returns the number of events processed since the last reset.
func (a *Accumulator) Chunks() int {
	return a.chunks
}

// Text returns the text received so far.
func (a *Accumulator) Text() string {
	var b strings.Builder
	for _, block := range a.content {
		if block.Type == ContentBlockTypeText {
			b.WriteString(block.Text)
		}
	}
	if a.text != nil {
		b.WriteString(a.text.String())
	}
	return b.String()
}

// Response builds the response accumulated so far for the given model and request.
func (a *Accumulator) Response(model Model, req *Request) *Response {
	content := append([]ContentBlock(nil), a.content...)
	if a.text != nil {
		content = append(content, NewTextBlock(a.text.String()))
	}
	resp := &Response{
		Content:    content,
		Usage:      a.usage,
		StopReason: a.stopReason,
		Request:    req,
	}
	if model != nil {
		resp.ModelID = model.ModelID()
		resp.Params = model.Params()
	}
	return resp
}
