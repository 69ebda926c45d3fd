package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/Abdin71/supportflow-ai/internal/config"
)

var (
	// ErrServiceUnavailable reports that the model call failed or timed out.
	ErrServiceUnavailable = errors.New("ai: model service unavailable")
	// ErrMalformedResponse reports model output that could not be used.
	ErrMalformedResponse = errors.New("ai: malformed model response")
)

// Completer is the single operation consumed from a chat-completion API.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error)
}

// OpenAICompleter calls an OpenAI-compatible chat completion endpoint.
type OpenAICompleter struct {
	client openai.Client
	model  string
}

// NewOpenAICompleter builds a completer from config. Retries are disabled;
// a failed call is absorbed by the caller's fallback path.
func NewOpenAICompleter(cfg config.AIConfig, opts ...option.RequestOption) *OpenAICompleter {
	base := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		base = append(base, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.BaseURL))
	}
	if timeout := cfg.Timeout(); timeout > 0 {
		base = append(base, option.WithRequestTimeout(timeout))
	}
	return &OpenAICompleter{
		client: openai.NewClient(append(base, opts...)...),
		model:  cfg.Model,
	}
}

// Model returns the model identifier sent with every request.
func (c *OpenAICompleter) Model() string { return c.model }

func (c *OpenAICompleter) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(int64(maxTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrMalformedResponse)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}
	return content, nil
}
