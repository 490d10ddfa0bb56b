package llm

import (
	"context"
	"errors"
	"testing"
)

type stubModel struct {
	id     string
	params Params
}

func (m *stubModel) ModelID() string { return m.id }
func (m *stubModel) Params() Params  { return m.params }
func (m *stubModel) Call(ctx context.Context, req *Request) (*Response, error) {
	return &Response{ModelID: m.id, Content: []ContentBlock{NewTextBlock("ok")}, Request: req}, nil
}
func (m *stubModel) Stream(ctx context.Context, req *Request) (Stream, error) {
	return nil, errors.New("not implemented")
}

func stubFactory(provider string, built *int) Factory {
	return func(name string, params Params) (Model, error) {
		*built++
		return &stubModel{id: provider + "/" + name, params: params}, nil
	}
}

func TestParseModelID(t *testing.T) {
	provider, name, err := ParseModelID("ollama/library/llama3.2:3b")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if provider != "ollama" || name != "library/llama3.2:3b" {
		t.Errorf("Unexpected split %q / %q", provider, name)
	}

	for _, bad := range []string{"", "anthropic", "/name", "provider/"} {
		if _, _, err := ParseModelID(bad); !errors.Is(err, ErrInvalidModelID) {
			t.Errorf("%q: expected ErrInvalidModelID, got %v", bad, err)
		}
	}
}

func TestRegistry_Resolve(t *testing.T) {
	var built int
	reg := NewRegistry()
	reg.Register(ProviderAnthropic, stubFactory(ProviderAnthropic, &built))

	temp := 0.2
	params := Params{MaxTokens: 512, Temperature: &temp}
	m, err := reg.Resolve("anthropic/claude-haiku-4-5", params)
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if m.ModelID() != "anthropic/claude-haiku-4-5" {
		t.Errorf("Unexpected model id %q", m.ModelID())
	}
	if m.Params().MaxTokens != 512 {
		t.Errorf("Expected params to be passed to the factory, got %+v", m.Params())
	}

	again, err := reg.Resolve("anthropic/claude-haiku-4-5", params)
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if again != m || built != 1 {
		t.Errorf("Expected cached model, built %d times", built)
	}

	if _, err := reg.Resolve("anthropic/claude-haiku-4-5", Params{MaxTokens: 64}); err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if built != 2 {
		t.Errorf("Expected different params to build a new model, built %d times", built)
	}
}

func TestRegistry_UnknownProvider(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Resolve("openai/gpt-4o", Params{}); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("Expected ErrUnknownProvider, got %v", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("no api key")
	reg.Register(ProviderOpenAI, func(name string, params Params) (Model, error) {
		return nil, boom
	})
	if _, err := reg.Resolve("openai/gpt-4o", Params{}); !errors.Is(err, boom) {
		t.Errorf("Expected factory error to be wrapped, got %v", err)
	}
}

func TestRegistry_RegisterReplacesCachedModels(t *testing.T) {
	var first, second int
	reg := NewRegistry()
	reg.Register(ProviderOllama, stubFactory(ProviderOllama, &first))
	if _, err := reg.Resolve("ollama/llama3.2:3b", Params{}); err != nil {
		t.Fatal(err)
	}
	reg.Register(ProviderOllama, stubFactory(ProviderOllama, &second))
	if _, err := reg.Resolve("ollama/llama3.2:3b", Params{}); err != nil {
		t.Fatal(err)
	}
	if first != 1 || second != 1 {
		t.Errorf("Expected re-registration to drop cached models, got first=%d second=%d", first, second)
	}
	if !reg.IsProviderRegistered(ProviderOllama) || reg.IsProviderRegistered(ProviderOpenAI) {
		t.Errorf("Unexpected providers %v", reg.Providers())
	}
}
