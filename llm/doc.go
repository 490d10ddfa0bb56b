// Package llm provides a provider-neutral abstraction layer for Large Language Model (LLM) APIs.
//
// This package defines common types, interfaces, and utilities that allow the codebase
// to work with multiple LLM providers (Anthropic, OpenAI, Ollama) without being
// tightly coupled to any specific provider's SDK.
//
// # Core Concepts
//
//  1. Messages: The Message type represents a conversation message with role (user, assistant, system)
//     and content blocks (text, tool use, tool results).
//
//  2. Models: The Model interface is a provider model bound to an identifier and Params.
//     Call and Stream each perform exactly one physical attempt.
//
//  3. Errors: every failure a provider adapter surfaces is an *Error carrying one of a
//     closed set of kinds. Connection, timeout, rate limit and server errors are transient.
//
//  4. Registry: "provider/name" identifiers resolve to models through registered factories.
//
//  5. Prompts: Prompt renders a request from template variables; Call binds a prompt to a
//     default model. WithModel installs a context-scoped model override honoured by both.
//
//  6. Middleware: WrapWithMiddleware decorates a Model with per-attempt hooks such as
//     LoggingMiddleware.
//
// Usage Example
//
//	reg := llm.NewRegistry()
//	reg.Register(llm.ProviderAnthropic, anthropic.Factory(apiKey, logger))
//
//	model, err := reg.Resolve("anthropic/claude-haiku-4-5", llm.Params{MaxTokens: 1024})
//	if err != nil {
//	    return err
//	}
//
//	resp, err := model.Call(ctx, &llm.Request{
//	    Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "Hello!")},
//	})
//
// Retries and fallbacks across models live in the retry package.
package llm
