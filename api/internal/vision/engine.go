package vision

import "context"

// DefaultTemperature keeps reports conservative.
const DefaultTemperature = 0.2

// Request is one instruction+image turn.
type Request struct {
	Prompt      string
	Image       []byte
	MIME        string
	Temperature float64
}

// Engine sends a single multimodal turn and returns the first completion text.
// Implementations must not retry.
type Engine interface {
	Name() string
	GetModel() string
	Complete(ctx context.Context, in Request) (string, error)
}
