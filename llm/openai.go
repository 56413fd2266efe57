// Package llm wraps the hosted generative-text backend used to produce
// spoken replies.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// NoPromptReply is returned for empty or whitespace-only prompts without
// calling the backend.
const NoPromptReply = "No prompt provided."

// ErrGeneration is returned on any backend invocation failure.
var ErrGeneration = errors.New("reply generation failed")

// Client generates reply text from a transcript prompt.
type Client struct {
	api    *openai.Client
	model  string
	system string
	logger *slog.Logger
}

// NewClient creates a generation client for the given API key and model.
func NewClient(apiKey, model, systemPrompt string, logger *slog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		api:    openai.NewClient(apiKey),
		model:  model,
		system: systemPrompt,
		logger: logger,
	}, nil
}

// Generate sends prompt to the backend and returns the generated reply.
// A whitespace-only prompt short-circuits to NoPromptReply with no network
// call. An empty completion is returned as an empty string, not an error.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return NoPromptReply, nil
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.logger.Debug("reply generated", slog.Int("chars", len(reply)))
	return reply, nil
}
