package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/mudler/xlog"
	"github.com/sashabaranov/go-openai"
)

// Settings are the tunable generation parameters for a single request.
// They mirror what the model settings store persists.
type Settings struct {
	Model         string
	FallbackModel string
	SystemPrompt  string
	Temperature   float32
	TopP          float32
	MaxTokens     int
}

// Result carries a generated answer together with the model that
// actually produced it.
type Result struct {
	Response     string
	ModelUsed    string
	UsedFallback bool
}

// Client talks to an OpenAI-compatible chat-completions backend.
type Client struct {
	client *openai.Client
}

// NewClient wraps an existing go-openai client. The same underlying
// client is shared with the embedding engine.
func NewClient(client *openai.Client) *Client {
	return &Client{client: client}
}

// Generate produces a completion for prompt. If the primary model fails
// and a fallback model is configured, the request is retried once on the
// fallback before giving up.
func (c *Client) Generate(ctx context.Context, prompt string, settings Settings) (*Result, error) {
	response, err := c.complete(ctx, prompt, settings.Model, settings)
	if err == nil {
		return &Result{Response: response, ModelUsed: settings.Model}, nil
	}

	if settings.FallbackModel == "" {
		return nil, fmt.Errorf("generation with model %q failed: %w", settings.Model, err)
	}

	xlog.Warn("Primary model failed, trying fallback", "model", settings.Model, "fallback", settings.FallbackModel, "error", err.Error())

	response, fallbackErr := c.complete(ctx, prompt, settings.FallbackModel, settings)
	if fallbackErr != nil {
		return nil, fmt.Errorf("generation with model %q failed (%v), fallback %q failed: %w",
			settings.Model, err, settings.FallbackModel, fallbackErr)
	}

	return &Result{Response: response, ModelUsed: settings.FallbackModel, UsedFallback: true}, nil
}

func (c *Client) complete(ctx context.Context, prompt, model string, settings Settings) (string, error) {
	messages := []openai.ChatCompletionMessage{}
	if settings.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: settings.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: settings.Temperature,
		TopP:        settings.TopP,
		MaxTokens:   settings.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model %q returned no choices", model)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// ListModels returns the model IDs the backend advertises.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	resp, err := c.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	models := make([]string, 0, len(resp.Models))
	for _, model := range resp.Models {
		models = append(models, model.ID)
	}
	return models, nil
}

// CheckConnection reports whether the backend is reachable.
func (c *Client) CheckConnection(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return fmt.Errorf("generation backend unreachable: %w", err)
	}
	return nil
}
