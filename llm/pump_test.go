package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPumpStream_DeliversEventsInOrder(t *testing.T) {
	s := NewPumpStream(context.Background(), func(ctx context.Context, emit func(*StreamEvent)) error {
		emit(&StreamEvent{Type: StreamEventTypeStart})
		emit(textDelta("a"))
		emit(textDelta("b"))
		emit(&StreamEvent{Type: StreamEventTypeStop, Done: true})
		return nil
	}, nil)
	defer s.Close()

	var text string
	var n int
	for s.Next() {
		n++
		text += s.Event().TextDelta()
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n != 4 || text != "ab" {
		t.Errorf("Expected 4 events and text 'ab', got %d events and %q", n, text)
	}
}

func TestPumpStream_ProducerError(t *testing.T) {
	boom := NewConnectionError("reset", nil)
	s := NewPumpStream(context.Background(), func(ctx context.Context, emit func(*StreamEvent)) error {
		emit(textDelta("partial"))
		return boom
	}, nil)

	if !s.Next() {
		t.Fatal("Expected the partial event before the error")
	}
	if s.Next() {
		t.Fatal("Expected stream to end after the error")
	}
	if !errors.Is(s.Err(), boom) {
		t.Errorf("Expected producer error, got %v", s.Err())
	}
}

func TestPumpStream_CloseCancelsProducer(t *testing.T) {
	closed := false
	stopped := make(chan struct{})
	s := NewPumpStream(context.Background(), func(ctx context.Context, emit func(*StreamEvent)) error {
		defer close(stopped)
		emit(textDelta("first"))
		<-ctx.Done()
		return ctx.Err()
	}, func() error {
		closed = true
		return nil
	})

	if !s.Next() {
		t.Fatal("Expected first event")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Unexpected close error: %v", err)
	}
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Expected producer to observe cancellation")
	}
	if !closed {
		t.Error("Expected close function to run")
	}
	if s.Next() {
		t.Error("Expected no events after close")
	}
	if s.Err() != nil {
		t.Errorf("Expected no error after an explicit close, got %v", s.Err())
	}
}
