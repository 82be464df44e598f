package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"eye-report/api/internal/util"
	"eye-report/api/internal/vision"
)

const (
	DefaultModel = "claude-haiku-4-5-20251001"
	maxTokens    = 2048
)

type Engine struct {
	APIKey string
	Model  string
	client anthropic.Client
}

func New(key, model, baseURL string) *Engine {
	key = strings.TrimSpace(key)
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(base, "/")))
	}
	return &Engine{APIKey: key, Model: model, client: anthropic.NewClient(opts...)}
}

func (e *Engine) Name() string     { return "anthropic" }
func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) Complete(ctx context.Context, in vision.Request) (string, error) {
	if e.APIKey == "" {
		return "", errors.New("ANTHROPIC_API_KEY is empty")
	}
	mime := util.PickMIME(in.MIME, in.Image)

	msg, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(in.Prompt),
				anthropic.NewImageBlockBase64(mime, base64.StdEncoding.EncodeToString(in.Image)),
			),
		},
		Temperature: anthropic.Float(in.Temperature),
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("anthropic %d: %w", apiErr.StatusCode, err)
		}
		return "", err
	}
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("anthropic: empty response")
}
