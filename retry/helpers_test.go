package retry

import (
	"context"
	"sync"
	"time"

	"github.com/aschepis/backscratcher/llmretry/llm"
	"github.com/aschepis/backscratcher/llmretry/llm/llmtest"
)

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

// fastOptions makes tests deterministic: no real sleeping, no jitter.
func fastOptions(rec *sleepRecorder, opts ...Option) []Option {
	base := []Option{
		WithInitialDelay(10 * time.Millisecond),
		WithMaxDelay(time.Second),
		WithJitter(0),
		WithSleep(rec.sleep),
	}
	return append(base, opts...)
}

func connErr() error {
	return llm.NewConnectionError("connection reset", nil)
}

func userRequest(text string) *llm.Request {
	return &llm.Request{Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, text)}}
}

func failN(n int, err error) []llmtest.Step {
	steps := make([]llmtest.Step, n)
	for i := range steps {
		steps[i] = llmtest.Fail(err)
	}
	return steps
}

// formatError stands in for a caller-defined response validation error.
type formatError struct {
	got string
}

func (e *formatError) Error() string { return "unexpected format: " + e.got }

func registryOf(models ...*llmtest.Model) *llm.Registry {
	reg := llm.NewRegistry()
	byID := make(map[string]*llmtest.Model, len(models))
	for _, m := range models {
		byID[m.ModelID()] = m
	}
	reg.Register("x", func(name string, params llm.Params) (llm.Model, error) {
		m, ok := byID["x/"+name]
		if !ok {
			return nil, llm.NewNotFoundError("no model "+name, nil)
		}
		return m, nil
	})
	return reg
}
