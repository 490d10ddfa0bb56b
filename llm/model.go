package llm

import (
	"context"
)

// Model is a provider model bound to an identifier and generation parameters.
// Each Call or Stream is exactly one physical attempt against the provider.
// Implementations report failures as *Error so callers can classify them.
type Model interface {
	// ModelID returns the "provider/name" identifier of the model.
	ModelID() string

	// Params returns the generation parameters the model was built with.
	Params() Params

	// Call sends a request and returns a complete response.
	Call(ctx context.Context, req *Request) (*Response, error)

	// Stream sends a request and returns a stream of events.
	// The caller should read from the returned Stream until it's done or an error occurs.
	Stream(ctx context.Context, req *Request) (Stream, error)
}

// Stream represents a streaming response from an LLM.
type Stream interface {
	// Next advances to the next event in the stream.
	// Returns false when the stream is complete or an error occurs.
	Next() bool

	// Event returns the current event.
	// Should only be called after Next() returns true.
	Event() *StreamEvent

	// Err returns any error that occurred during streaming.
	Err() error

	// Close closes the stream and releases resources.
	Close() error
}

// Middleware provides hooks around each physical model attempt.
type Middleware interface {
	// BeforeRequest can modify the request or return an error to abort it.
	BeforeRequest(ctx context.Context, model Model, req *Request) (*Request, error)

	// AfterResponse can modify the response or return an error.
	AfterResponse(ctx context.Context, model Model, req *Request, resp *Response) (*Response, error)

	// OnError can return a modified error or nil to use the original error.
	OnError(ctx context.Context, model Model, req *Request, err error) error
}

// StreamMiddleware provides hooks for decorating streaming calls. Middleware
// that also implements StreamMiddleware sees every event of a stream.
type StreamMiddleware interface {
	OnStreamEvent(ctx context.Context, model Model, event *StreamEvent) (*StreamEvent, error)
}

// MiddlewareFunc implements Middleware from optional functions.
type MiddlewareFunc struct {
	BeforeRequestFunc func(ctx context.Context, model Model, req *Request) (*Request, error)
	AfterResponseFunc func(ctx context.Context, model Model, req *Request, resp *Response) (*Response, error)
	OnErrorFunc       func(ctx context.Context, model Model, req *Request, err error) error
}

// BeforeRequest calls the BeforeRequestFunc if set.
func (f MiddlewareFunc) BeforeRequest(ctx context.Context, model Model, req *Request) (*Request, error) {
	if f.BeforeRequestFunc != nil {
		return f.BeforeRequestFunc(ctx, model, req)
	}
	return req, nil
}

// AfterResponse calls the AfterResponseFunc if set.
func (f MiddlewareFunc) AfterResponse(ctx context.Context, model Model, req *Request, resp *Response) (*Response, error) {
	if f.AfterResponseFunc != nil {
		return f.AfterResponseFunc(ctx, model, req, resp)
	}
	return resp, nil
}

// OnError calls the OnErrorFunc if set.
func (f MiddlewareFunc) OnError(ctx context.Context, model Model, req *Request, err error) error {
	if f.OnErrorFunc != nil {
		return f.OnErrorFunc(ctx, model, req, err)
	}
	return err
}

// WrapWithMiddleware wraps a Model so every attempt passes through middleware.
// The wrapped model keeps the identifier and parameters of the original.
func WrapWithMiddleware(model Model, middleware ...Middleware) Model {
	if len(middleware) == 0 {
		return model
	}
	return &modelWithMiddleware{
		Model:      model,
		middleware: middleware,
	}
}

type modelWithMiddleware struct {
	Model
	middleware []Middleware
}

// Unwrap returns the model beneath the middleware.
func (m *modelWithMiddleware) Unwrap() Model {
	return m.Model
}

func (m *modelWithMiddleware) before(ctx context.Context, req *Request) (*Request, error) {
	for _, mw := range m.middleware {
		var err error
		req, err = mw.BeforeRequest(ctx, m.Model, req)
		if err != nil {
			return nil, err
		}
	}
	return req, nil
}

func (m *modelWithMiddleware) onError(ctx context.Context, req *Request, err error) error {
	for _, mw := range m.middleware {
		if handled := mw.OnError(ctx, m.Model, req, err); handled != nil {
			err = handled
		}
	}
	return err
}

// Call implements Model.Call with middleware support.
func (m *modelWithMiddleware) Call(ctx context.Context, req *Request) (*Response, error) {
	req, err := m.before(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := m.Model.Call(ctx, req)
	if err != nil {
		return nil, m.onError(ctx, req, err)
	}

	for i := len(m.middleware) - 1; i >= 0; i-- {
		resp, err = m.middleware[i].AfterResponse(ctx, m.Model, req, resp)
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// Stream implements Model.Stream with middleware support.
func (m *modelWithMiddleware) Stream(ctx context.Context, req *Request) (Stream, error) {
	req, err := m.before(ctx, req)
	if err != nil {
		return nil, err
	}

	stream, err := m.Model.Stream(ctx, req)
	if err != nil {
		return nil, m.onError(ctx, req, err)
	}

	return &streamWithMiddleware{
		stream: stream,
		model:  m,
		req:    req,
		ctx:    ctx,
	}, nil
}

type streamWithMiddleware struct {
	stream Stream
	model  *modelWithMiddleware
	req    *Request
	ctx    context.Context
	event  *StreamEvent
	err    error
}

// Next implements Stream.Next with middleware support.
func (s *streamWithMiddleware) Next() bool {
	if s.err != nil || !s.stream.Next() {
		return false
	}

	event := s.stream.Event()
	for _, mw := range s.model.middleware {
		smw, ok := mw.(StreamMiddleware)
		if !ok {
			continue
		}
		var err error
		event, err = smw.OnStreamEvent(s.ctx, s.model.Model, event)
		if err != nil {
			s.err = err
			return false
		}
	}

	s.event = event
	return event != nil
}

// Event implements Stream.Event.
func (s *streamWithMiddleware) Event() *StreamEvent {
	return s.event
}

// Err implements Stream.Err.
func (s *streamWithMiddleware) Err() error {
	err := s.err
	if err == nil {
		err = s.stream.Err()
	}
	if err != nil {
		return s.model.onError(s.ctx, s.req, err)
	}
	return nil
}

// Close implements Stream.Close.
func (s *streamWithMiddleware) Close() error {
	return s.stream.Close()
}

var (
	_ Stream = (*streamWithMiddleware)(nil)
	_ Model  = (*modelWithMiddleware)(nil)
)
