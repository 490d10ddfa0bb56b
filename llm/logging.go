package llm

import (
	"context"

	"github.com/rs/zerolog"
)

// LoggingMiddleware logs every physical attempt made through a model.
func LoggingMiddleware(logger zerolog.Logger) Middleware {
	logger = logger.With().Str("component", "llm").Logger()
	return MiddlewareFunc{
		BeforeRequestFunc: func(ctx context.Context, model Model, req *Request) (*Request, error) {
			logger.Debug().
				Str("model", model.ModelID()).
				Int("messages", len(req.Messages)).
				Int("tools", len(req.Tools)).
				Msg("Sending request")
			return req, nil
		},
		AfterResponseFunc: func(ctx context.Context, model Model, req *Request, resp *Response) (*Response, error) {
			evt := logger.Debug().
				Str("model", model.ModelID()).
				Str("stop_reason", resp.StopReason)
			if resp.Usage != nil {
				evt = evt.Int64("input_tokens", resp.Usage.InputTokens).
					Int64("output_tokens", resp.Usage.OutputTokens)
			}
			evt.Msg("Received response")
			return resp, nil
		},
		OnErrorFunc: func(ctx context.Context, model Model, req *Request, err error) error {
			evt := logger.Warn().Str("model", model.ModelID()).Err(err)
			if t, ok := TypeOf(err); ok {
				evt = evt.Str("error_type", string(t))
			}
			evt.Msg("Request failed")
			return err
		},
	}
}
