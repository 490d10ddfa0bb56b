package audit

import (
	"context"
	"testing"
	"time"

	"github.com/aschepis/backscratcher/llmretry/llm"
	"github.com/aschepis/backscratcher/llmretry/llm/llmtest"
	"github.com/aschepis/backscratcher/llmretry/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_RecordsRetryModelAttempts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	primary := llmtest.NewModel("x/primary", llmtest.Fail(llm.NewConnectionError("reset", nil)))
	fallback := llmtest.NewModel("x/fallback", llmtest.Reply("ok"))
	var callID uuid.UUID
	rm, err := retry.NewModel(primary,
		retry.WithMaxRetries(0),
		retry.WithFallbacks(retry.FallbackModel(fallback)),
		retry.WithObserver(store),
		retry.WithObserver(retry.ObserverFunc(func(_ context.Context, a retry.Attempt) { callID = a.CallID })),
	)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	if _, err := rm.Call(ctx, &llm.Request{}); err != nil {
		t.Fatalf("Call: %v", err)
	}

	records, err := store.ListByCall(ctx, callID)
	if err != nil {
		t.Fatalf("ListByCall: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	first, second := records[0], records[1]
	if first.ModelID != "x/primary" || first.Outcome != retry.OutcomeFallback || first.ErrorType != "connection" {
		t.Errorf("Unexpected first record %+v", first)
	}
	if first.Error == "" {
		t.Error("Expected the error message to be stored")
	}
	if second.ModelID != "x/fallback" || second.ModelIndex != 1 || second.Outcome != retry.OutcomeSuccess || second.ErrorType != "" {
		t.Errorf("Unexpected second record %+v", second)
	}
	if second.CallID != callID {
		t.Errorf("Expected call id %s, got %s", callID, second.CallID)
	}
}

func TestStore_RecentFailuresAndSummary(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return base }

	attempts := []retry.Attempt{
		{CallID: uuid.New(), ModelID: "x/a", Outcome: retry.OutcomeRetry, Err: llm.NewServerError("boom", 500, nil), Delay: 250 * time.Millisecond},
		{CallID: uuid.New(), ModelID: "x/a", Outcome: retry.OutcomeSuccess, Stream: true, Duration: 2 * time.Second},
		{CallID: uuid.New(), ModelID: "x/b", Outcome: retry.OutcomeFatal, Err: llm.NewBadRequestError("bad", nil)},
	}
	for _, a := range attempts {
		if err := store.Record(ctx, a); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	failures, err := store.RecentFailures(ctx, 10)
	if err != nil {
		t.Fatalf("RecentFailures: %v", err)
	}
	if len(failures) != 2 || failures[0].ModelID != "x/b" || failures[1].Delay != 250*time.Millisecond {
		t.Fatalf("Unexpected failures %+v", failures)
	}
	if !failures[1].CreatedAt.Equal(base) {
		t.Errorf("Expected created_at %v, got %v", base, failures[1].CreatedAt)
	}

	limited, err := store.RecentFailures(ctx, 1)
	if err != nil {
		t.Fatalf("RecentFailures: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected the limit to apply, got %d", len(limited))
	}

	summary, err := store.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary[retry.OutcomeRetry] != 1 || summary[retry.OutcomeSuccess] != 1 || summary[retry.OutcomeFatal] != 1 {
		t.Errorf("Unexpected summary %v", summary)
	}

	calls, err := store.ListByCall(ctx, attempts[1].CallID)
	if err != nil {
		t.Fatalf("ListByCall: %v", err)
	}
	if len(calls) != 1 || !calls[0].Stream || calls[0].Duration != 2*time.Second {
		t.Errorf("Unexpected stream record %+v", calls)
	}
}

func TestStore_ObserveAttemptIgnoresCancellation(t *testing.T) {
	store := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	id := uuid.New()
	store.ObserveAttempt(ctx, retry.Attempt{CallID: id, ModelID: "x/a", Outcome: retry.OutcomeCanceled, Err: context.Canceled})

	records, err := store.ListByCall(context.Background(), id)
	if err != nil {
		t.Fatalf("ListByCall: %v", err)
	}
	if len(records) != 1 || records[0].Outcome != retry.OutcomeCanceled {
		t.Errorf("Expected the canceled attempt to be stored, got %+v", records)
	}
}
