package retry

import (
	"context"
	"errors"
	"io"

	"github.com/aschepis/backscratcher/llmretry/llm"
)

// AsModel returns m as a plain llm.Model, so it can be passed anywhere a
// model is expected, including llm.WithModel. Calls return the bare
// *llm.Response. Streams restart transparently: a restarted stream begins
// again with a start event, which resets an llm.Accumulator.
func (m *Model) AsModel() llm.Model {
	return modelAdapter{rm: m}
}

type modelAdapter struct {
	rm *Model
}

func (a modelAdapter) ModelID() string    { return a.rm.ModelID() }
func (a modelAdapter) Params() llm.Params { return a.rm.Params() }
func (a modelAdapter) RetryModel() *Model { return a.rm }

func (a modelAdapter) Call(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	resp, err := a.rm.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Response, nil
}

func (a modelAdapter) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	s, err := a.rm.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return &restartingStream{ctx: ctx, s: s}, nil
}

func (a modelAdapter) rewrap(opts []Option) (Rewrapper, error) {
	return a.rm.rewrap(opts)
}

// restartingStream adapts a StreamResponse to llm.Stream, swallowing restart
// signals.
type restartingStream struct {
	ctx     context.Context
	s       *StreamResponse
	current *llm.StreamEvent
	err     error
	done    bool
}

func (r *restartingStream) Next() bool {
	if r.done {
		return false
	}
	for {
		ev, err := r.s.NextChunk(r.ctx)
		switch {
		case err == nil:
			r.current = ev
			return true
		case err == io.EOF:
		case errors.Is(err, ErrStreamRestarted):
			continue
		default:
			r.err = err
		}
		r.done = true
		r.current = nil
		return false
	}
}

func (r *restartingStream) Event() *llm.StreamEvent { return r.current }

func (r *restartingStream) Err() error { return r.err }

func (r *restartingStream) Close() error {
	r.done = true
	return r.s.Close()
}

var (
	_ llm.Model    = modelAdapter{}
	_ retryCarrier = modelAdapter{}
	_ llm.Stream   = (*restartingStream)(nil)
)
