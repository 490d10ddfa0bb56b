package ollama

import (
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/aschepis/backscratcher/llmretry/llm"
	"github.com/ollama/ollama/api"
	"github.com/samber/lo"
)

// ToOllamaMessages converts llm.Messages to Ollama chat messages. Tool results
// are sent as "tool" role messages.
func ToOllamaMessages(msgs []llm.Message) []api.Message {
	result := make([]api.Message, 0, len(msgs))
	for _, msg := range msgs {
		result = append(result, ToOllamaMessage(msg)...)
	}
	return result
}

// ToOllamaMessage converts a single llm.Message.
func ToOllamaMessage(msg llm.Message) []api.Message {
	var text []string
	var toolCalls []api.ToolCall
	var results []api.Message

	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentBlockTypeText:
			text = append(text, block.Text)
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse == nil {
				continue
			}
			args := make(api.ToolCallFunctionArguments)
			maps.Copy(args, block.ToolUse.Input)
			toolCalls = append(toolCalls, api.ToolCall{
				Function: api.ToolCallFunction{Name: block.ToolUse.Name, Arguments: args},
			})
		case llm.ContentBlockTypeToolResult:
			if block.ToolResult != nil {
				results = append(results, api.Message{Role: "tool", Content: block.ToolResult.Content})
			}
		}
	}

	if len(text) == 0 && len(toolCalls) == 0 {
		return results
	}
	out := api.Message{
		Role:      string(msg.Role),
		Content:   strings.Join(text, "\n"),
		ToolCalls: toolCalls,
	}
	return append([]api.Message{out}, results...)
}

// ToOllamaTools converts llm.ToolSpecs to Ollama tools.
func ToOllamaTools(specs []llm.ToolSpec) []api.Tool {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) api.Tool {
		return ToOllamaTool(&spec)
	})
}

// ToOllamaTool converts a single llm.ToolSpec. Property types default to string.
func ToOllamaTool(spec *llm.ToolSpec) api.Tool {
	properties := make(map[string]api.ToolProperty, len(spec.Schema.Properties))
	for name, v := range spec.Schema.Properties {
		prop := api.ToolProperty{Type: []string{propertyType(v)}}
		if m, ok := v.(map[string]any); ok {
			if desc, ok := m["description"].(string); ok {
				prop.Description = desc
			}
		}
		properties[name] = prop
	}

	schemaType := spec.Schema.Type
	if schemaType == "" {
		schemaType = "object"
	}
	return api.Tool{
		Type: "function",
		Function: api.ToolFunction{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters: api.ToolFunctionParameters{
				Type:       schemaType,
				Properties: properties,
				Required:   spec.Schema.Required,
			},
		},
	}
}

// FromOllamaToolCall converts an Ollama tool call. Ollama does not assign call
// IDs, so one is derived from the tool name and position. Arguments are
// coerced to the types declared by the matching tool spec, since small local
// models often quote numbers and booleans.
func FromOllamaToolCall(toolCall api.ToolCall, index int, specs []llm.ToolSpec) *llm.ToolUseBlock {
	input := make(map[string]any, len(toolCall.Function.Arguments))
	maps.Copy(input, toolCall.Function.Arguments)

	if spec, ok := lo.Find(specs, func(s llm.ToolSpec) bool { return s.Name == toolCall.Function.Name }); ok {
		input = coerceArguments(input, spec.Schema)
	}

	return &llm.ToolUseBlock{
		ID:    fmt.Sprintf("call_%s_%d", toolCall.Function.Name, index),
		Name:  toolCall.Function.Name,
		Input: input,
	}
}

func propertyType(propSchema any) string {
	if m, ok := propSchema.(map[string]any); ok {
		if t, ok := m["type"].(string); ok {
			return t
		}
	}
	return "string"
}

// coerceArguments converts each argument with a declared schema type. Values
// that cannot be converted are kept unchanged.
func coerceArguments(args map[string]any, schema llm.ToolSchema) map[string]any {
	for k, v := range args {
		propSchema, ok := schema.Properties[k]
		if !ok {
			continue
		}
		if converted, ok := coerceValue(v, propertyType(propSchema)); ok {
			args[k] = converted
		}
	}
	return args
}

func coerceValue(v any, targetType string) (any, bool) {
	switch targetType {
	case "integer":
		switch val := v.(type) {
		case float64:
			return int(val), true
		case string:
			i, err := strconv.Atoi(strings.TrimSpace(val))
			return i, err == nil
		}
	case "number":
		if s, ok := v.(string); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			return f, err == nil
		}
	case "boolean":
		if s, ok := v.(string); ok {
			b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(s)))
			return b, err == nil
		}
	case "string":
		if v != nil {
			if _, ok := v.(string); !ok {
				return fmt.Sprint(v), true
			}
		}
	}
	return v, false
}
