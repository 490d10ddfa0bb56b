package retry

import (
	"github.com/aschepis/backscratcher/llmretry/llm"
)

// Rewrapper is implemented by every value Retry returns. It is closed: only
// this package's types implement it.
type Rewrapper interface {
	rewrap(opts []Option) (Rewrapper, error)
}

// Retry adds a retry policy to target:
//
//   - an llm.Model becomes a *Model;
//   - an *llm.Call becomes a *Call;
//   - an *llm.Prompt becomes a *Prompt;
//   - a *Model, *Call or *Prompt is copied with opts applied on top of its
//     settings. The original is unchanged.
//
// A model returned by (*Model).AsModel is rewrapped as its *Model. Any other
// target fails with an *UnsupportedTargetError.
func Retry(target any, opts ...Option) (Rewrapper, error) {
	switch t := target.(type) {
	case nil:
		return nil, &UnsupportedTargetError{Target: target}
	case Rewrapper:
		return t.rewrap(opts)
	case llm.Model:
		m, err := NewModel(t, opts...)
		if err != nil {
			return nil, err
		}
		return m, nil
	case *llm.Call:
		c, err := NewCall(t, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	case *llm.Prompt:
		p, err := NewPrompt(t, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, &UnsupportedTargetError{Target: target}
	}
}

func (m *Model) rewrap(opts []Option) (Rewrapper, error) {
	if m == nil {
		return nil, &UnsupportedTargetError{Target: m}
	}
	rm, err := m.With(opts...)
	if err != nil {
		return nil, err
	}
	return rm, nil
}

var (
	_ Rewrapper = (*Model)(nil)
	_ Rewrapper = (*Call)(nil)
	_ Rewrapper = (*Prompt)(nil)
	_ Rewrapper = modelAdapter{}
)
