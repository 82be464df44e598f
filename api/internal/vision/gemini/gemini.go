package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"eye-report/api/internal/util"
	"eye-report/api/internal/vision"
)

const DefaultModel = "gemini-1.5-flash"

type Engine struct {
	Model string

	client *genai.Client
}

// New builds the client once. Extra options are appended after the API key,
// so tests can point the engine at a local endpoint.
func New(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Engine, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	cl, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Engine{Model: model, client: cl}, nil
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) Close() error { return e.client.Close() }

// Complete sends the instruction and the image as an inline blob.
func (e *Engine) Complete(ctx context.Context, in vision.Request) (string, error) {
	m := e.client.GenerativeModel(e.Model)
	if m == nil {
		return "", fmt.Errorf("gemini: model is nil")
	}
	m.SetTemperature(float32(in.Temperature))

	resp, err := m.GenerateContent(ctx,
		genai.Text(in.Prompt),
		genai.Blob{MIMEType: util.PickMIME(in.MIME, in.Image), Data: in.Image},
	)
	if err != nil {
		return "", err
	}
	txt := firstText(resp)
	if txt == "" {
		return "", fmt.Errorf("gemini: empty response")
	}
	return txt, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}
