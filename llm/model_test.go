package llm

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type sliceStream struct {
	events []*StreamEvent
	i      int
	err    error
}

func (s *sliceStream) Next() bool {
	s.i++
	return s.i <= len(s.events)
}
func (s *sliceStream) Event() *StreamEvent { return s.events[s.i-1] }
func (s *sliceStream) Err() error {
	if s.i > len(s.events) {
		return s.err
	}
	return nil
}
func (s *sliceStream) Close() error { return nil }

type failingModel struct {
	stubModel
	err    error
	stream Stream
}

func (m *failingModel) Call(ctx context.Context, req *Request) (*Response, error) {
	return nil, m.err
}

func (m *failingModel) Stream(ctx context.Context, req *Request) (Stream, error) {
	if m.stream != nil {
		return m.stream, nil
	}
	return nil, m.err
}

func TestWrapWithMiddleware_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return MiddlewareFunc{
			BeforeRequestFunc: func(ctx context.Context, model Model, req *Request) (*Request, error) {
				order = append(order, "before:"+name)
				return req, nil
			},
			AfterResponseFunc: func(ctx context.Context, model Model, req *Request, resp *Response) (*Response, error) {
				order = append(order, "after:"+name)
				return resp, nil
			},
		}
	}

	base := &stubModel{id: "anthropic/claude", params: Params{MaxTokens: 10}}
	wrapped := WrapWithMiddleware(base, mw("a"), mw("b"))
	if wrapped.ModelID() != base.ModelID() || wrapped.Params().MaxTokens != 10 {
		t.Error("Expected wrapped model to keep identity")
	}
	if _, err := wrapped.Call(context.Background(), &Request{}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := "before:a,before:b,after:b,after:a"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}

	if WrapWithMiddleware(base) != Model(base) {
		t.Error("Expected no-op wrap without middleware")
	}
}

func TestWrapWithMiddleware_BeforeRequestAborts(t *testing.T) {
	abort := errors.New("blocked")
	base := &stubModel{id: "openai/gpt"}
	wrapped := WrapWithMiddleware(base, MiddlewareFunc{
		BeforeRequestFunc: func(ctx context.Context, model Model, req *Request) (*Request, error) {
			return nil, abort
		},
	})
	if _, err := wrapped.Call(context.Background(), &Request{}); !errors.Is(err, abort) {
		t.Errorf("Expected abort error, got %v", err)
	}
}

func TestWrapWithMiddleware_OnErrorKeepsOriginalWhenNil(t *testing.T) {
	orig := NewServerError("boom", 500, nil)
	base := &failingModel{stubModel: stubModel{id: "openai/gpt"}, err: orig}
	wrapped := WrapWithMiddleware(base, MiddlewareFunc{
		OnErrorFunc: func(ctx context.Context, model Model, req *Request, err error) error {
			return nil
		},
	})
	if _, err := wrapped.Call(context.Background(), &Request{}); err != orig {
		t.Errorf("Expected original error, got %v", err)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	orig := NewRateLimitError("slow down", nil, nil)

	base := &failingModel{stubModel: stubModel{id: "anthropic/claude"}, err: orig}
	wrapped := WrapWithMiddleware(base, LoggingMiddleware(logger))
	if _, err := wrapped.Call(context.Background(), &Request{}); err != orig {
		t.Fatalf("Expected error to pass through, got %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"error_type":"rate_limit"`) {
		t.Errorf("Expected error type in log output, got %s", out)
	}
	if !strings.Contains(out, `"model":"anthropic/claude"`) {
		t.Errorf("Expected model in log output, got %s", out)
	}
}

type dropTextMiddleware struct {
	MiddlewareFunc
	seen int
}

func (d *dropTextMiddleware) OnStreamEvent(ctx context.Context, model Model, event *StreamEvent) (*StreamEvent, error) {
	d.seen++
	if event.Type == StreamEventTypeStop {
		return nil, errors.New("stop rejected")
	}
	return event, nil
}

func TestWrapWithMiddleware_Stream(t *testing.T) {
	stream := &sliceStream{events: []*StreamEvent{
		{Type: StreamEventTypeStart},
		textDelta("hi"),
		{Type: StreamEventTypeStop, Done: true},
	}}
	base := &failingModel{stubModel: stubModel{id: "ollama/llama"}, stream: stream}
	mw := &dropTextMiddleware{}
	wrapped := WrapWithMiddleware(base, mw)

	s, err := wrapped.Stream(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	var n int
	for s.Next() {
		n++
	}
	if n != 2 {
		t.Errorf("Expected 2 events before rejection, got %d", n)
	}
	if s.Err() == nil || s.Err().Error() != "stop rejected" {
		t.Errorf("Expected middleware error from stream, got %v", s.Err())
	}
	if mw.seen != 3 {
		t.Errorf("Expected middleware to see 3 events, got %d", mw.seen)
	}
}
