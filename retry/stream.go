package retry

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync/atomic"
	"time"

	"github.com/aschepis/backscratcher/llmretry/llm"
)

// ErrStreamClosed is returned when pulling from a closed stream response.
var ErrStreamClosed = errors.New("stream response closed")

type streamState int

const (
	stateNotStarted streamState = iota
	stateStreaming
	stateRestartPending
	stateConsumed
	stateFailed
)

// StreamResponse streams one logical response across as many physical
// streams as the retry policy allows.
//
// When the current stream fails with a retryable error and attempts remain,
// the pull returns a *StreamRestartedError instead of the error. The consumer
// then pulls again from the same StreamResponse and receives a new stream
// from its beginning, possibly from a fallback model. Events of the failed
// stream are discarded. When no attempts remain the pull returns a
// *RetriesExhaustedError.
//
// A StreamResponse has a single consumer. Pulls from several goroutines at
// once fail with ErrConcurrentIteration.
type StreamResponse struct {
	rm      *Model
	req     *llm.Request
	cur     *cursor
	callCtx *llm.CallContext

	busy   atomic.Bool
	state  streamState
	stream llm.Stream
	events []*llm.StreamEvent
	acc    *llm.Accumulator
	delay  time.Duration
	opened time.Time
	err    error
}

func (m *Model) newStream(req *llm.Request, chain []llm.Model, cc *llm.CallContext) *StreamResponse {
	return &StreamResponse{
		rm:      m,
		req:     req,
		cur:     m.newCursor(chain, true),
		callCtx: cc,
		acc:     llm.NewAccumulator(),
	}
}

// NextChunk returns the next event of the current attempt. It returns io.EOF,
// unwrapped, once the response is complete.
func (s *StreamResponse) NextChunk(ctx context.Context) (*llm.StreamEvent, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrConcurrentIteration
	}
	defer s.busy.Store(false)
	return s.pull(ctx)
}

// Chunks iterates over the events of the current attempt from its first
// event. Iteration stops after yielding a non-nil error. Iterating again after
// a *StreamRestartedError continues with the restarted stream; iterating a
// consumed response replays the final attempt's events.
func (s *StreamResponse) Chunks(ctx context.Context) iter.Seq2[*llm.StreamEvent, error] {
	return func(yield func(*llm.StreamEvent, error) bool) {
		if !s.busy.CompareAndSwap(false, true) {
			yield(nil, ErrConcurrentIteration)
			return
		}
		defer s.busy.Store(false)

		for i := 0; ; i++ {
			var ev *llm.StreamEvent
			var err error
			if i < len(s.events) && (s.state == stateStreaming || s.state == stateConsumed) {
				ev = s.events[i]
			} else {
				ev, err = s.pull(ctx)
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// Texts iterates over the text deltas of the current attempt, like Chunks.
func (s *StreamResponse) Texts(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for ev, err := range s.Chunks(ctx) {
			if err != nil {
				yield("", err)
				return
			}
			if text := ev.TextDelta(); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}

// Finish pulls until the response is complete, following restarts. It
// returns nil once consumed, or the terminal error.
func (s *StreamResponse) Finish(ctx context.Context) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrConcurrentIteration
	}
	defer s.busy.Store(false)

	for {
		_, err := s.pull(ctx)
		if err == nil {
			continue
		}
		if err == io.EOF {
			return nil
		}
		var restarted *StreamRestartedError
		if errors.As(err, &restarted) {
			continue
		}
		return err
	}
}

// FinishAsync runs Finish on its own goroutine.
func (s *StreamResponse) FinishAsync(ctx context.Context) *Future[*StreamResponse] {
	return goFuture(func() (*StreamResponse, error) {
		if err := s.Finish(ctx); err != nil {
			return nil, err
		}
		return s, nil
	})
}

// Close releases the underlying stream. Later pulls return ErrStreamClosed.
func (s *StreamResponse) Close() error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrConcurrentIteration
	}
	defer s.busy.Store(false)

	var err error
	if s.stream != nil {
		err = s.stream.Close()
		s.stream = nil
	}
	if s.state != stateConsumed && s.state != stateFailed {
		s.state = stateFailed
		s.err = ErrStreamClosed
	}
	return err
}

// Consumed reports whether the response completed.
func (s *StreamResponse) Consumed() bool {
	return s.state == stateConsumed
}

// Response returns what the current attempt produced so far.
func (s *StreamResponse) Response() *llm.Response {
	return s.acc.Response(s.cur.model(), s.req)
}

// Text returns the text the current attempt produced so far.
func (s *StreamResponse) Text() string {
	return s.acc.Text()
}

// ChunkCount returns the number of events of the current attempt.
func (s *StreamResponse) ChunkCount() int {
	return s.acc.Chunks()
}

// RetryFailures returns the failed attempts so far in chronological order.
func (s *StreamResponse) RetryFailures() []Failure {
	return append([]Failure{}, s.cur.failures...)
}

// Model returns the model of the current attempt.
func (s *StreamResponse) Model() llm.Model {
	return s.cur.model()
}

// ExecuteTools runs the tool calls of the completed response.
func (s *StreamResponse) ExecuteTools(ctx context.Context) []llm.ContentBlock {
	return s.Response().ExecuteTools(s.attach(ctx))
}

// Resume continues the conversation after the response completed. It returns
// ErrStreamNotConsumed before that.
func (s *StreamResponse) Resume(ctx context.Context, content ...llm.ContentBlock) (*StreamResponse, error) {
	if s.state != stateConsumed {
		return nil, ErrStreamNotConsumed
	}
	rm, chain, err := s.rm.resumeChain(ctx, s.cur.chain, s.cur.index)
	if err != nil {
		return nil, err
	}
	return rm.newStream(s.Response().FollowUp(content...), chain, s.callCtx), nil
}

func (s *StreamResponse) attach(ctx context.Context) context.Context {
	if s.callCtx == nil {
		return ctx
	}
	return llm.WithCallContext(ctx, s.callCtx)
}

func (s *StreamResponse) pull(ctx context.Context) (*llm.StreamEvent, error) {
	ctx = s.attach(ctx)
	switch s.state {
	case stateConsumed:
		return nil, io.EOF
	case stateFailed:
		return nil, s.err
	case stateNotStarted, stateRestartPending:
		if err := s.open(ctx); err != nil {
			return nil, err
		}
	}

	if s.stream.Next() {
		ev := s.stream.Event()
		s.acc.Process(ev)
		s.events = append(s.events, ev)
		return ev, nil
	}

	err := s.stream.Err()
	_ = s.stream.Close()
	s.stream = nil
	if err == nil && s.rm.s.validate != nil {
		err = s.rm.s.validate(s.Response())
	}
	return nil, s.settle(ctx, err)
}

// open starts the next attempt after its backoff delay.
func (s *StreamResponse) open(ctx context.Context) error {
	delay, err := s.cur.wait(ctx)
	if err != nil {
		return s.fail(err)
	}

	s.delay = delay
	s.acc.Reset()
	s.events = nil
	s.opened = time.Now()
	stream, err := s.cur.model().Stream(ctx, s.req)
	if err != nil {
		return s.settle(ctx, err)
	}
	s.stream = stream
	s.state = stateStreaming
	return nil
}

// settle ends the current attempt and returns what the pull reports.
func (s *StreamResponse) settle(ctx context.Context, err error) error {
	failed := Failure{Model: s.cur.model(), Err: err}
	switch s.cur.settle(ctx, err, s.delay, time.Since(s.opened)) {
	case OutcomeSuccess:
		s.state = stateConsumed
		return io.EOF
	case OutcomeRetry, OutcomeFallback:
		s.state = stateRestartPending
		return &StreamRestartedError{Failure: failed, Attempt: len(s.cur.failures)}
	case OutcomeExhausted:
		return s.fail(s.cur.exhausted())
	default:
		return s.fail(err)
	}
}

func (s *StreamResponse) fail(err error) error {
	s.state = stateFailed
	s.err = err
	return err
}

// ContextStreamResponse is a StreamResponse whose pulls, resumes and tool
// executions run with a call context attached.
type ContextStreamResponse struct {
	*StreamResponse
}

// CallContext returns the attached call context.
func (s *ContextStreamResponse) CallContext() *llm.CallContext {
	return s.callCtx
}

// Resume continues the conversation with the call context attached.
func (s *ContextStreamResponse) Resume(ctx context.Context, content ...llm.ContentBlock) (*ContextStreamResponse, error) {
	next, err := s.StreamResponse.Resume(s.attach(ctx), content...)
	if err != nil {
		return nil, err
	}
	return &ContextStreamResponse{next}, nil
}
