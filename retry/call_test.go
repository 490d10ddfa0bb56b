package retry

import (
	"context"
	"errors"
	"testing"

	"github.com/aschepis/backscratcher/llmretry/llm"
	"github.com/aschepis/backscratcher/llmretry/llm/llmtest"
)

func greeting() *llm.Prompt {
	return llm.TextPrompt("be brief", "hello %s")
}

func TestRetry_CustomErrorType(t *testing.T) {
	primary := llmtest.NewModel("x/primary", llmtest.Fail(&formatError{got: "oops"}), llmtest.Reply("fine"))
	target, err := Retry(llm.NewCall(primary, greeting()),
		WithMaxRetries(1), WithRetryOn(MatchType[*formatError]()), WithSleep((&sleepRecorder{}).sleep))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	call, ok := target.(*Call)
	if !ok {
		t.Fatalf("Expected *Call, got %T", target)
	}

	resp, err := call.Call(context.Background(), llm.Vars{"args": []any{"world"}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if primary.Calls() != 2 || len(resp.RetryFailures()) != 1 || resp.Text() != "fine" {
		t.Errorf("Expected 2 calls and 1 failure, got %d calls and %d failures", primary.Calls(), len(resp.RetryFailures()))
	}
	if got := primary.LastRequest().Messages[0].Content[0].Text; got != "hello world" {
		t.Errorf("Expected rendered prompt, got %q", got)
	}

	// Connection errors are no longer retryable with the narrowed set.
	primary.Push(llmtest.Fail(connErr()), llmtest.Reply("never"))
	if _, err := call.Call(context.Background(), nil); !errors.Is(err, llm.ErrConnection) || errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("Expected the connection error unchanged, got %v", err)
	}
}

func TestCall_ModelResolution(t *testing.T) {
	def := llmtest.NewModel("x/default")
	plain := llmtest.NewModel("x/plain")
	other, err := NewModel(llmtest.NewModel("x/other"), WithMaxRetries(9))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	call, err := NewCall(llm.NewCall(def, greeting()), WithMaxRetries(2))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	tests := []struct {
		name    string
		ctx     context.Context
		model   string
		retries int
	}{
		{"default", context.Background(), "x/default", 2},
		{"plain override", WithModel(context.Background(), plain), "x/plain", 2},
		{"retry override", WithRetryModel(context.Background(), other), "x/other", 9},
		{"nested override", WithModel(WithRetryModel(context.Background(), other), plain), "x/plain", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm, err := call.Model(tt.ctx)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if rm.ModelID() != tt.model || rm.Config().MaxRetries != tt.retries {
				t.Errorf("Expected %s with %d retries, got %s with %d", tt.model, tt.retries, rm.ModelID(), rm.Config().MaxRetries)
			}
		})
	}
}

func TestCall_OverrideScope(t *testing.T) {
	def := llmtest.NewModel("x/default", llmtest.Reply("default"), llmtest.Reply("default again"))
	override := llmtest.NewModel("x/override", llmtest.Reply("override"))
	call, err := NewCall(llm.NewCall(def, greeting()))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	base := context.Background()
	scoped := WithModel(base, override)
	if _, ok := OverrideFromContext(scoped); !ok {
		t.Fatal("Expected override in scope")
	}

	resp, err := call.Call(scoped, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp.Text() != "override" {
		t.Errorf("Expected override reply, got %q", resp.Text())
	}
	resp, err = call.Call(base, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp.Text() != "default" {
		t.Errorf("Expected the override not to leak, got %q", resp.Text())
	}
}

func TestCall_Stream(t *testing.T) {
	def := llmtest.NewModel("x/default", llmtest.Fail(connErr()), llmtest.StreamReply("str", "eam"))
	call, err := NewCall(llm.NewCall(def, greeting()), WithMaxRetries(1), WithSleep((&sleepRecorder{}).sleep))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	s, err := call.Stream(context.Background(), nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := s.Finish(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if s.Text() != "stream" || def.Streams() != 2 {
		t.Errorf("Expected 'stream' after 2 opens, got %q after %d", s.Text(), def.Streams())
	}
}

func TestCall_NoModel(t *testing.T) {
	call, err := NewCall(llm.NewCall(nil, greeting()))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := call.Call(context.Background(), nil); !errors.Is(err, llm.ErrNoModel) {
		t.Errorf("Expected ErrNoModel, got %v", err)
	}
}

func TestPrompt_ModelPerInvocation(t *testing.T) {
	a := llmtest.NewModel("x/a", llmtest.Fail(connErr()), llmtest.Reply("from a"))
	b := llmtest.NewModel("x/b", llmtest.Reply("from b"))
	p, err := NewPrompt(greeting(), WithMaxRetries(1), WithSleep((&sleepRecorder{}).sleep))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	resp, err := p.CallAsync(context.Background(), a, nil).Await(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp.Text() != "from a" || len(resp.RetryFailures()) != 1 {
		t.Errorf("Expected 'from a' after one failure, got %q", resp.Text())
	}

	resp, err = p.Call(WithModel(context.Background(), b), a, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp.Text() != "from b" || a.Calls() != 2 {
		t.Errorf("Expected the override to win, got %q", resp.Text())
	}

	bound := p.Bind(b)
	if bound.Config().MaxRetries != 1 || bound.Unwrap().Model != llm.Model(b) {
		t.Errorf("Expected bound call to keep the prompt's policy")
	}
}

func TestRetry_Dispatch(t *testing.T) {
	model := llmtest.NewModel("x/primary")
	rm, err := NewModel(model, WithMaxRetries(1))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	call, err := NewCall(llm.NewCall(model, greeting()), WithMaxRetries(1))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	prompt, err := NewPrompt(greeting(), WithMaxRetries(1))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		target any
		check  func(t *testing.T, got Rewrapper)
	}{
		{"llm.Model", model, func(t *testing.T, got Rewrapper) {
			if m, ok := got.(*Model); !ok || m.Primary() != llm.Model(model) {
				t.Errorf("Expected *Model around the target, got %T", got)
			}
		}},
		{"llm.Call", llm.NewCall(model, greeting()), func(t *testing.T, got Rewrapper) {
			if _, ok := got.(*Call); !ok {
				t.Errorf("Expected *Call, got %T", got)
			}
		}},
		{"llm.Prompt", greeting(), func(t *testing.T, got Rewrapper) {
			if _, ok := got.(*Prompt); !ok {
				t.Errorf("Expected *Prompt, got %T", got)
			}
		}},
		{"retry.Model", rm, func(t *testing.T, got Rewrapper) {
			if m, ok := got.(*Model); !ok || m == rm || m.Config().MaxRetries != 4 {
				t.Errorf("Expected a new *Model with 4 retries, got %T", got)
			}
		}},
		{"AsModel", rm.AsModel(), func(t *testing.T, got Rewrapper) {
			if m, ok := got.(*Model); !ok || m.Config().MaxRetries != 4 {
				t.Errorf("Expected a new *Model with 4 retries, got %T", got)
			}
		}},
		{"retry.Call", call, func(t *testing.T, got Rewrapper) {
			if c, ok := got.(*Call); !ok || c == call || c.Config().MaxRetries != 4 {
				t.Errorf("Expected a new *Call with 4 retries, got %T", got)
			}
		}},
		{"retry.Prompt", prompt, func(t *testing.T, got Rewrapper) {
			if p, ok := got.(*Prompt); !ok || p == prompt || p.Config().MaxRetries != 4 {
				t.Errorf("Expected a new *Prompt with 4 retries, got %T", got)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Retry(tt.target, WithMaxRetries(4))
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			tt.check(t, got)
		})
	}

	if rm.Config().MaxRetries != 1 || call.Config().MaxRetries != 1 || prompt.Config().MaxRetries != 1 {
		t.Error("Expected originals to be unchanged")
	}
}

func TestRetry_Unsupported(t *testing.T) {
	for _, target := range []any{nil, "x/model", 42, (*Model)(nil), (*llm.Call)(nil)} {
		_, err := Retry(target)
		var unsupported *UnsupportedTargetError
		if !errors.As(err, &unsupported) {
			t.Errorf("Retry(%T): expected *UnsupportedTargetError, got %v", target, err)
		}
	}

	_, err := Retry("x/model")
	if err == nil || err.Error() != "retry: unsupported target type string" {
		t.Errorf("Expected the error to name the type, got %v", err)
	}
	if _, err := Retry(llmtest.NewModel("x/primary"), WithJitter(2)); !errors.Is(err, ErrInvalidJitter) {
		t.Errorf("Expected ErrInvalidJitter, got %v", err)
	}
}
