package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"eye-report/api/internal/util"
	"eye-report/api/internal/vision"
)

const (
	GroqBaseURL  = "https://api.groq.com/openai/v1"
	DefaultModel = "meta-llama/llama-4-scout-17b-16e-instruct"
)

// Engine talks to any OpenAI-compatible chat completions endpoint.
type Engine struct {
	APIKey  string
	Model   string
	BaseURL string
	name    string
	client  openai.Client
}

// New builds an engine. name is the provider label ("groq", "openai").
func New(name, key, model, baseURL string) *Engine {
	key = strings.TrimSpace(key)
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimRight(strings.TrimSpace(baseURL), "/"); base != "" {
		opts = append(opts, option.WithBaseURL(base+"/"))
	}
	if name == "" {
		name = "openai"
	}
	return &Engine{
		APIKey:  key,
		Model:   model,
		BaseURL: baseURL,
		name:    name,
		client:  openai.NewClient(opts...),
	}
}

func (e *Engine) Name() string { return e.name }

func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) Complete(ctx context.Context, in vision.Request) (string, error) {
	if e.APIKey == "" {
		return "", errors.New("api key is empty")
	}
	mime := util.PickMIME(in.MIME, in.Image)

	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(e.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(in.Prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: util.MakeDataURL(mime, in.Image),
				}),
			}),
		},
		Temperature: openai.Float(in.Temperature),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%s %d: %w", e.name, apiErr.StatusCode, err)
		}
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: empty response", e.name)
	}
	return resp.Choices[0].Message.Content, nil
}
