// Package gemini wraps the Google Gemini API for insight generation.
package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.0-flash"

// Client is a thin wrapper over the genai SDK pinned to one model.
type Client struct {
	client *genai.Client
	model  string
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithModel overrides the default model.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// NewClient creates a Gemini API client.
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	c := &Client{
		client: genaiClient,
		model:  DefaultModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GenerateContent sends prompt to the model and returns the generated text.
func (c *Client) GenerateContent(ctx context.Context, prompt string) (string, error) {
	slog.DebugContext(ctx, "Generating content", "model", c.model, "prompt_chars", len(prompt))

	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return extractText(result)
}

func extractText(result *genai.GenerateContentResponse) (string, error) {
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content generated")
	}

	text := ""
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
	}
	return text, nil
}
