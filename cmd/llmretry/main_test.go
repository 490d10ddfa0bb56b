package main

import (
	"bytes"
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/aschepis/backscratcher/llmretry/audit"
	"github.com/aschepis/backscratcher/llmretry/llm"
	"github.com/aschepis/backscratcher/llmretry/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestSplitList(t *testing.T) {
	got := splitList(" openai/gpt-4o-mini, ,ollama/llama3 ")
	want := []string{"openai/gpt-4o-mini", "ollama/llama3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitList = %v, want %v", got, want)
	}
	if splitList("") != nil {
		t.Error("Expected nil for empty input")
	}
}

func TestPrintStats(t *testing.T) {
	store, err := audit.Open(":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	callID := uuid.New()
	attempts := []retry.Attempt{
		{CallID: callID, ModelID: "anthropic/claude-haiku-4-5", Number: 0, Outcome: retry.OutcomeRetry, Err: llm.NewRateLimitError("slow down", nil, nil)},
		{CallID: callID, ModelID: "anthropic/claude-haiku-4-5", Number: 1, Outcome: retry.OutcomeFallback, Err: llm.NewServerError("overloaded", 529, nil)},
		{CallID: callID, ModelID: "openai/gpt-4o-mini", ModelIndex: 1, Outcome: retry.OutcomeSuccess},
	}
	for _, a := range attempts {
		if err := store.Record(ctx, a); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := printStats(ctx, &buf, store); err != nil {
		t.Fatalf("printStats: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("Expected 3 summary lines and 2 failures, got %d:\n%s", len(lines), buf.String())
	}

	wantSummary := []string{"fallback   1", "retry      1", "success    1"}
	for i, want := range wantSummary {
		if lines[i] != want {
			t.Errorf("Summary line %d = %q, want %q", i, lines[i], want)
		}
	}
	// Failures are listed newest first.
	if !strings.Contains(lines[3], "attempt=1 server: ") || !strings.Contains(lines[3], "overloaded") {
		t.Errorf("Unexpected failure line %q", lines[3])
	}
	if !strings.Contains(lines[4], "anthropic/claude-haiku-4-5") || !strings.Contains(lines[4], "attempt=0 rate_limit: ") {
		t.Errorf("Unexpected failure line %q", lines[4])
	}
}

func TestPrintStats_Empty(t *testing.T) {
	store, err := audit.Open(":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	var buf bytes.Buffer
	if err := printStats(context.Background(), &buf, store); err != nil {
		t.Fatalf("printStats: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("Expected no output for an empty log, got %q", buf.String())
	}
}
