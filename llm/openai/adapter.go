package openai

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/aschepis/backscratcher/llmretry/llm"
	openai "github.com/sashabaranov/go-openai"
	"github.com/samber/lo"
)

// ToOpenAIMessages converts llm.Messages to OpenAI chat messages. Tool results
// become separate "tool" role messages as the chat API requires.
func ToOpenAIMessages(msgs []llm.Message) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		converted, err := ToOpenAIMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to convert message: %w", err)
		}
		result = append(result, converted...)
	}
	return result, nil
}

// ToOpenAIMessage converts a single llm.Message. It returns more than one
// message when the input carries tool results.
func ToOpenAIMessage(msg llm.Message) ([]openai.ChatCompletionMessage, error) {
	var role string
	switch msg.Role {
	case llm.RoleAssistant:
		role = openai.ChatMessageRoleAssistant
	case llm.RoleSystem:
		role = openai.ChatMessageRoleSystem
	default:
		role = openai.ChatMessageRoleUser
	}

	var text []string
	var toolCalls []openai.ToolCall
	var results []openai.ChatCompletionMessage
	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentBlockTypeText:
			text = append(text, block.Text)
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse == nil {
				continue
			}
			args, err := json.Marshal(block.ToolUse.Input)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal tool input: %w", err)
			}
			toolCalls = append(toolCalls, openai.ToolCall{
				ID:   block.ToolUse.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      block.ToolUse.Name,
					Arguments: string(args),
				},
			})
		case llm.ContentBlockTypeToolResult:
			if block.ToolResult != nil {
				results = append(results, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    block.ToolResult.Content,
					ToolCallID: block.ToolResult.ID,
				})
			}
		}
	}

	if len(text) == 0 && len(toolCalls) == 0 {
		return results, nil
	}
	out := openai.ChatCompletionMessage{
		Role:      role,
		Content:   strings.Join(text, "\n"),
		ToolCalls: toolCalls,
	}
	return append([]openai.ChatCompletionMessage{out}, results...), nil
}

// ToOpenAITools converts llm.ToolSpecs to OpenAI function tools.
func ToOpenAITools(specs []llm.ToolSpec) []openai.Tool {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) openai.Tool {
		return ToOpenAITool(&spec)
	})
}

// ToOpenAITool converts a single llm.ToolSpec to an OpenAI function tool.
func ToOpenAITool(spec *llm.ToolSpec) openai.Tool {
	schemaType := spec.Schema.Type
	if schemaType == "" {
		schemaType = "object"
	}
	properties := map[string]any{}
	maps.Copy(properties, spec.Schema.Properties)

	parameters := map[string]any{
		"type":       schemaType,
		"properties": properties,
	}
	if len(spec.Schema.Required) > 0 {
		parameters["required"] = spec.Schema.Required
	}
	maps.Copy(parameters, spec.Schema.ExtraFields)

	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  parameters,
		},
	}
}

// FromOpenAIToolCall converts an OpenAI tool call to an llm.ToolUseBlock.
// Unparseable arguments yield an empty input map and are kept in RawInput.
func FromOpenAIToolCall(toolCall openai.ToolCall) *llm.ToolUseBlock {
	block := &llm.ToolUseBlock{
		ID:    toolCall.ID,
		Name:  toolCall.Function.Name,
		Input: map[string]any{},
	}
	if toolCall.Function.Arguments != "" {
		input := map[string]any{}
		if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &input); err != nil || input == nil {
			block.RawInput = toolCall.Function.Arguments
		} else {
			block.Input = input
		}
	}
	return block
}
