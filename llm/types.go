package llm

import (
	"encoding/json"
	"strings"

	"github.com/samber/lo"
)

// MessageRole represents the role of a message in a conversation.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    MessageRole    `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock represents a single content block within a message.
// It can be text, a tool use, or a tool result.
type ContentBlock struct {
	Type       ContentBlockType `json:"type"`
	Text       string           `json:"text,omitempty"`
	ToolUse    *ToolUseBlock    `json:"tool_use,omitempty"`
	ToolResult *ToolResultBlock `json:"tool_result,omitempty"`
}

// ContentBlockType represents the type of content block.
type ContentBlockType string

const (
	ContentBlockTypeText       ContentBlockType = "text"
	ContentBlockTypeToolUse    ContentBlockType = "tool_use"
	ContentBlockTypeToolResult ContentBlockType = "tool_result"
)

// ToolUseBlock represents a tool invocation request from the assistant.
type ToolUseBlock struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
	// RawInput holds streamed input that was not valid JSON, such as a
	// truncated payload. Input is empty when it is set.
	RawInput string `json:"raw_input,omitempty"`
}

// Malformed reports whether the tool input could not be decoded.
func (b ToolUseBlock) Malformed() bool {
	return b.RawInput != ""
}

// ToolResultBlock represents the result of a tool invocation.
type ToolResultBlock struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// ToolSpec represents a tool definition that can be provided to an LLM.
type ToolSpec struct {
	Name        string
	Description string
	Schema      ToolSchema
}

// ToolSchema represents the JSON schema for a tool's input parameters.
type ToolSchema struct {
	Type        string
	Properties  map[string]any
	Required    []string
	ExtraFields map[string]any
}

// Params holds the generation parameters a model is bound to.
type Params struct {
	MaxTokens     int64    `yaml:"max_tokens,omitempty"`
	Temperature   *float64 `yaml:"temperature,omitempty"`
	TopP          *float64 `yaml:"top_p,omitempty"`
	StopSequences []string `yaml:"stop_sequences,omitempty"`
}

// Request is one logical request sent to a model. The model supplies its own
// identifier and parameters.
type Request struct {
	System   string
	Messages []Message
	Tools    []ToolSpec
	// Toolkit executes tool calls found in the response. Optional.
	Toolkit *Toolkit
}

// Clone returns a copy of the request whose message slice can be appended to
// without affecting the original.
func (r *Request) Clone() *Request {
	if r == nil {
		return &Request{}
	}
	c := *r
	c.Messages = append([]Message(nil), r.Messages...)
	c.Tools = append([]ToolSpec(nil), r.Tools...)
	return &c
}

// Response represents a complete LLM API response.
type Response struct {
	ModelID    string
	Params     Params
	Content    []ContentBlock
	Usage      *Usage
	StopReason string

	// Request is the request that produced this response.
	Request *Request
}

// Usage represents token usage information from an LLM response.
type Usage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// Text concatenates the text blocks of the response.
func (r *Response) Text() string {
	var b strings.Builder
	for _, block := range r.Content {
		if block.Type == ContentBlockTypeText {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// ToolCalls returns the tool invocations requested by the model.
func (r *Response) ToolCalls() []ToolUseBlock {
	blocks := lo.Filter(r.Content, func(b ContentBlock, _ int) bool {
		return b.Type == ContentBlockTypeToolUse && b.ToolUse != nil
	})
	return lo.Map(blocks, func(b ContentBlock, _ int) ToolUseBlock {
		return *b.ToolUse
	})
}

// Message returns the assistant message carried by the response.
func (r *Response) Message() Message {
	return Message{Role: RoleAssistant, Content: r.Content}
}

// Messages returns the full conversation: the request messages followed by
// the assistant reply.
func (r *Response) Messages() []Message {
	var msgs []Message
	if r.Request != nil {
		msgs = append(msgs, r.Request.Messages...)
	}
	return append(msgs, r.Message())
}

// FollowUp builds the request that continues this conversation with a new
// user turn made of content. With no content the conversation is continued
// as-is.
func (r *Response) FollowUp(content ...ContentBlock) *Request {
	next := r.Request.Clone()
	next.Messages = r.Messages()
	if len(content) > 0 {
		next.Messages = append(next.Messages, Message{Role: RoleUser, Content: content})
	}
	return next
}

// StreamDelta represents a single delta in a streaming response.
type StreamDelta struct {
	Type      StreamDeltaType
	Text      string        // For text deltas
	ToolUse   *ToolUseBlock // For tool use start
	ToolInput string        // For tool input JSON deltas
}

// StreamDeltaType represents the type of streaming delta.
type StreamDeltaType string

const (
	StreamDeltaTypeText      StreamDeltaType = "text"
	StreamDeltaTypeToolUse   StreamDeltaType = "tool_use"
	StreamDeltaTypeToolInput StreamDeltaType = "tool_input"
)

// StreamEvent represents a complete streaming event.
type StreamEvent struct {
	Type       StreamEventType
	Delta      *StreamDelta
	Usage      *Usage
	StopReason string
	Done       bool
}

// StreamEventType represents the type of streaming event.
type StreamEventType string

const (
	StreamEventTypeStart        StreamEventType = "start"
	StreamEventTypeContentBlock StreamEventType = "content_block"
	StreamEventTypeContentDelta StreamEventType = "content_delta"
	StreamEventTypeMessageDelta StreamEventType = "message_delta"
	StreamEventTypeStop         StreamEventType = "stop"
)

// TextDelta returns the text carried by the event, if any.
func (e *StreamEvent) TextDelta() string {
	if e == nil || e.Delta == nil || e.Delta.Type != StreamDeltaTypeText {
		return ""
	}
	return e.Delta.Text
}

// NewTextMessage creates a new message with text content.
func NewTextMessage(role MessageRole, text string) Message {
	return Message{
		Role:    role,
		Content: []ContentBlock{NewTextBlock(text)},
	}
}

// NewTextBlock creates a text content block.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentBlockTypeText, Text: text}
}

// NewToolResultBlock creates a tool result content block.
func NewToolResultBlock(id, content string, isError bool) ContentBlock {
	return ContentBlock{
		Type:       ContentBlockTypeToolResult,
		ToolResult: &ToolResultBlock{ID: id, Content: content, IsError: isError},
	}
}

// NewToolUseMessage creates a new assistant message with tool use blocks.
func NewToolUseMessage(toolUses []ToolUseBlock) Message {
	content := make([]ContentBlock, len(toolUses))
	for i := range toolUses {
		content[i] = ContentBlock{
			Type:    ContentBlockTypeToolUse,
			ToolUse: &toolUses[i],
		}
	}
	return Message{
		Role:    RoleAssistant,
		Content: content,
	}
}

// NewToolResultMessage creates a new user message with tool result blocks.
func NewToolResultMessage(toolResults []ToolResultBlock) Message {
	content := make([]ContentBlock, len(toolResults))
	for i := range toolResults {
		content[i] = ContentBlock{
			Type:       ContentBlockTypeToolResult,
			ToolResult: &toolResults[i],
		}
	}
	return Message{
		Role:    RoleUser,
		Content: content,
	}
}

// ToJSON marshals a message to JSON for debugging/logging purposes.
func (m Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
