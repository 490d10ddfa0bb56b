package llm

import (
	"context"
	"sync"
)

// ProduceFunc pushes events into a stream until the provider response ends.
// A non-nil return value becomes the stream's Err.
type ProduceFunc func(ctx context.Context, emit func(*StreamEvent)) error

// pumpStream adapts a push-style provider SDK into the pull-style Stream.
// The producer runs in its own goroutine from the first call to Next.
type pumpStream struct {
	ctx     context.Context
	cancel  context.CancelFunc
	produce ProduceFunc
	closeFn func() error

	mu      sync.Mutex
	cond    *sync.Cond // Signalled when events arrive or the producer finishes
	events  []*StreamEvent
	current int
	err     error
	done    bool
	started bool
	closed  bool
}

// NewPumpStream returns a Stream fed by produce. closeFn, if non-nil, is called
// once when the stream is closed.
func NewPumpStream(ctx context.Context, produce ProduceFunc, closeFn func() error) Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &pumpStream{
		ctx:     ctx,
		cancel:  cancel,
		produce: produce,
		closeFn: closeFn,
		current: -1,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Next advances to the next event in the stream.
func (s *pumpStream) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if !s.started {
		s.started = true
		go s.run()
	}

	s.current++
	for s.current >= len(s.events) && !s.done {
		s.cond.Wait()
	}
	return s.current < len(s.events)
}

// Event returns the current event.
func (s *pumpStream) Event() *StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current < 0 || s.current >= len(s.events) {
		return nil
	}
	return s.events[s.current]
}

// Err returns any error that occurred during streaming.
func (s *pumpStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the producer and releases resources.
func (s *pumpStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.done = true
	s.cond.Broadcast()
	s.mu.Unlock()

	s.cancel()
	if s.closeFn != nil {
		return s.closeFn()
	}
	return nil
}

func (s *pumpStream) run() {
	err := s.produce(s.ctx, s.emit)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil && !s.closed {
		s.err = err
	}
	s.done = true
	s.cond.Broadcast()
}

func (s *pumpStream) emit(ev *StreamEvent) {
	if ev == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events = append(s.events, ev)
	s.cond.Broadcast()
}
