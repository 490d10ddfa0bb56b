package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aschepis/backscratcher/llmretry/llm"
	"github.com/aschepis/backscratcher/llmretry/llm/llmtest"
	"github.com/aschepis/backscratcher/llmretry/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestRecorder() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	return NewPrometheusRecorderWith(reg, reg)
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func TestPrometheusRecorder_CountsAttempts(t *testing.T) {
	rec := newTestRecorder()
	primary := llmtest.NewModel("x/primary",
		llmtest.Fail(llm.NewRateLimitError("slow down", nil, nil)),
		llmtest.Fail(llm.NewServerError("boom", 500, nil)),
	)
	fallback := llmtest.NewModel("x/fallback", llmtest.Reply("ok"))
	rm, err := retry.NewModel(primary,
		retry.WithMaxRetries(1),
		retry.WithSleep(noSleep),
		retry.WithFallbacks(retry.FallbackModel(fallback)),
		retry.WithObserver(rec),
	)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := rm.Call(context.Background(), &llm.Request{}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	tests := []struct {
		labels []string
		want   float64
	}{
		{[]string{"x/primary", "retry", "rate_limit"}, 1},
		{[]string{"x/primary", "fallback", "server"}, 1},
		{[]string{"x/fallback", "success", "none"}, 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(rec.attemptsTotal.WithLabelValues(tt.labels...)); got != tt.want {
			t.Errorf("attempts%v = %v, want %v", tt.labels, got, tt.want)
		}
	}
	if got := testutil.ToFloat64(rec.fallbacksTotal.WithLabelValues("x/primary")); got != 1 {
		t.Errorf("Expected 1 fallback, got %v", got)
	}
	if got := testutil.CollectAndCount(rec.backoffDelay); got != 1 {
		t.Errorf("Expected one backoff series, got %d", got)
	}
}

func TestPrometheusRecorder_StreamRestartsAndExhaustion(t *testing.T) {
	rec := newTestRecorder()
	primary := llmtest.NewModel("x/primary",
		llmtest.FailMidStream(llm.NewConnectionError("reset", nil), "a"),
		llmtest.Fail(llm.NewTimeoutError("slow", nil)),
	)
	rm, err := retry.NewModel(primary, retry.WithMaxRetries(1), retry.WithSleep(noSleep), retry.WithObserver(rec))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	s, err := rm.Stream(context.Background(), &llm.Request{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := s.Finish(context.Background()); err == nil {
		t.Fatal("Expected the stream to exhaust its retries")
	}

	if got := testutil.ToFloat64(rec.restartsTotal.WithLabelValues("x/primary")); got != 1 {
		t.Errorf("Expected 1 restart, got %v", got)
	}
	if got := testutil.ToFloat64(rec.exhaustedTotal.WithLabelValues("x/primary")); got != 1 {
		t.Errorf("Expected 1 exhaustion, got %v", got)
	}
	if got := testutil.ToFloat64(rec.attemptsTotal.WithLabelValues("x/primary", "exhausted", "timeout")); got != 1 {
		t.Errorf("Expected exhausted timeout attempt, got %v", got)
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{context.Canceled, "canceled"},
		{llm.NewNotFoundError("gone", nil), "not_found"},
		{io.ErrUnexpectedEOF, "other"},
	}
	for _, tt := range tests {
		if got := errorType(tt.err); got != tt.want {
			t.Errorf("errorType(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestPrometheusRecorder_Handler(t *testing.T) {
	rec := newTestRecorder()
	rec.ObserveAttempt(context.Background(), retry.Attempt{ModelID: "x/m", Outcome: retry.OutcomeSuccess})

	w := httptest.NewRecorder()
	rec.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	body := w.Body.String()
	if !strings.Contains(body, `llmretry_attempts_total{error_type="none",model="x/m",outcome="success"} 1`) {
		t.Errorf("Expected attempt counter in output, got:\n%s", body)
	}
}
