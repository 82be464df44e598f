package vision

import (
	"context"
	"strings"

	"eye-report/api/internal/apperr"
	"eye-report/api/internal/prompt"
)

type DispatcherOptions struct {
	Temperature      float64
	ValidateHeadings bool
}

// Dispatcher guards an Engine: it refuses to send without an image and
// classifies every failure.
type Dispatcher struct {
	engine Engine
	opts   DispatcherOptions
}

func NewDispatcher(e Engine, opts DispatcherOptions) *Dispatcher {
	if opts.Temperature < 0 {
		opts.Temperature = DefaultTemperature
	}
	return &Dispatcher{engine: e, opts: opts}
}

func (d *Dispatcher) Engine() Engine { return d.engine }

// Dispatch sends prompt and image once. The returned text is the model output verbatim.
func (d *Dispatcher) Dispatch(ctx context.Context, in Request) (string, error) {
	if len(in.Image) == 0 {
		return "", apperr.Validation("image payload is empty", nil)
	}
	if d == nil || d.engine == nil {
		return "", apperr.Configuration("no inference engine configured", nil)
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return "", apperr.Configuration("prompt is empty", nil)
	}
	in.Temperature = d.opts.Temperature

	out, err := d.engine.Complete(ctx, in)
	if err != nil {
		return "", apperr.Dispatch(d.engine.Name()+" request failed", err)
	}
	if strings.TrimSpace(out) == "" {
		return "", apperr.Dispatch(d.engine.Name()+" returned an empty completion", nil)
	}
	if d.opts.ValidateHeadings {
		if missing := prompt.MissingHeadings(out); len(missing) > 0 {
			return "", apperr.MalformedResponse("report is missing headings: "+strings.Join(missing, ", "), nil)
		}
	}
	return out, nil
}
