// Package llmtest provides scripted llm.Model implementations for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/aschepis/backscratcher/llmretry/llm"
)

// ErrScriptExhausted is returned when a model is invoked more times than it was scripted for.
var ErrScriptExhausted = errors.New("llmtest: no scripted step left")

// Step scripts the outcome of one physical attempt.
type Step struct {
	// Text is the reply when Response is nil.
	Text     string
	Response *llm.Response
	// Err fails the call, or the opening of a stream.
	Err error
	// Chunks are the text deltas a stream emits. Defaults to Text as one chunk.
	Chunks []string
	// StreamErr fails the stream after Chunks were emitted.
	StreamErr error
}

// Reply scripts a successful attempt returning text.
func Reply(text string) Step {
	return Step{Text: text}
}

// Fail scripts an attempt that fails with err.
func Fail(err error) Step {
	return Step{Err: err}
}

// StreamReply scripts a stream that emits chunks and ends cleanly.
func StreamReply(chunks ...string) Step {
	return Step{Chunks: chunks}
}

// FailMidStream scripts a stream that emits chunks and then fails with err.
func FailMidStream(err error, chunks ...string) Step {
	return Step{Chunks: chunks, StreamErr: err}
}

// Model is an llm.Model that replays scripted steps in order.
type Model struct {
	id     string
	params llm.Params

	mu       sync.Mutex
	steps    []Step
	calls    int
	streams  int
	requests []*llm.Request
}

// NewModel creates a scripted model.
func NewModel(id string, steps ...Step) *Model {
	return &Model{id: id, steps: steps}
}

// NewModelWithParams creates a scripted model bound to params.
func NewModelWithParams(id string, params llm.Params, steps ...Step) *Model {
	return &Model{id: id, params: params, steps: steps}
}

// ModelID implements llm.Model.
func (m *Model) ModelID() string { return m.id }

// Params implements llm.Model.
func (m *Model) Params() llm.Params { return m.params }

// Push appends steps to the script.
func (m *Model) Push(steps ...Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, steps...)
}

// Calls returns the number of Call invocations.
func (m *Model) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Streams returns the number of Stream invocations.
func (m *Model) Streams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams
}

// Attempts returns the total number of physical attempts.
func (m *Model) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls + m.streams
}

// Requests returns every request the model received, in order.
func (m *Model) Requests() []*llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*llm.Request(nil), m.requests...)
}

// LastRequest returns the most recent request, or nil.
func (m *Model) LastRequest() *llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

func (m *Model) next(req *llm.Request, stream bool) (Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stream {
		m.streams++
	} else {
		m.calls++
	}
	m.requests = append(m.requests, req)
	if len(m.steps) == 0 {
		return Step{}, ErrScriptExhausted
	}
	step := m.steps[0]
	m.steps = m.steps[1:]
	return step, nil
}

// Call implements llm.Model.
func (m *Model) Call(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	step, err := m.next(req, false)
	if err != nil {
		return nil, err
	}
	if step.Err != nil {
		return nil, step.Err
	}
	if step.Response != nil {
		resp := *step.Response
		resp.Request = req
		return &resp, nil
	}
	text := step.Text
	if text == "" && len(step.Chunks) > 0 {
		for _, c := range step.Chunks {
			text += c
		}
	}
	return &llm.Response{
		ModelID:    m.id,
		Params:     m.params,
		Content:    []llm.ContentBlock{llm.NewTextBlock(text)},
		Usage:      &llm.Usage{},
		StopReason: "end_turn",
		Request:    req,
	}, nil
}

// Stream implements llm.Model.
func (m *Model) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	step, err := m.next(req, true)
	if err != nil {
		return nil, err
	}
	if step.Err != nil {
		return nil, step.Err
	}
	chunks := step.Chunks
	if len(chunks) == 0 && step.Text != "" {
		chunks = []string{step.Text}
	}
	events := TextEvents(chunks...)
	if step.StreamErr != nil {
		// Drop the stop event so the failure happens mid-stream.
		events = events[:len(events)-1]
	}
	return NewStream(ctx, events, step.StreamErr), nil
}

// TextEvents builds the event sequence of a text-only reply.
func TextEvents(chunks ...string) []*llm.StreamEvent {
	events := []*llm.StreamEvent{{Type: llm.StreamEventTypeStart}}
	for _, c := range chunks {
		events = append(events, &llm.StreamEvent{
			Type:  llm.StreamEventTypeContentDelta,
			Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeText, Text: c},
		})
	}
	return append(events, &llm.StreamEvent{
		Type:       llm.StreamEventTypeStop,
		StopReason: "end_turn",
		Usage:      &llm.Usage{},
		Done:       true,
	})
}

// Stream replays a fixed list of events, optionally ending in an error.
type Stream struct {
	ctx     context.Context
	events  []*llm.StreamEvent
	err     error
	current int
	failed  error
	closed  bool
}

// NewStream returns a stream that emits events and then fails with err, if non-nil.
func NewStream(ctx context.Context, events []*llm.StreamEvent, err error) *Stream {
	return &Stream{ctx: ctx, events: events, err: err, current: -1}
}

// Next implements llm.Stream.
func (s *Stream) Next() bool {
	if s.closed || s.failed != nil {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.failed = err
		return false
	}
	s.current++
	if s.current < len(s.events) {
		return true
	}
	s.failed = s.err
	return false
}

// Event implements llm.Stream.
func (s *Stream) Event() *llm.StreamEvent {
	if s.current < 0 || s.current >= len(s.events) {
		return nil
	}
	return s.events[s.current]
}

// Err implements llm.Stream.
func (s *Stream) Err() error { return s.failed }

// Close implements llm.Stream.
func (s *Stream) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool { return s.closed }

var (
	_ llm.Model  = (*Model)(nil)
	_ llm.Stream = (*Stream)(nil)
)
