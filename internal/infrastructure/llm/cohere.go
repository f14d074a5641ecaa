package llm

import (
	"context"
	"fmt"
	"strings"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
)

const defaultCohereModel = "command-r"

// Cohere generates text with Cohere's chat endpoint.
type Cohere struct {
	client *cohereclient.Client
	model  string
}

// NewCohere builds a token-authenticated client.
func NewCohere(apiKey, model string) *Cohere {
	if model == "" {
		model = defaultCohereModel
	}
	return &Cohere{
		client: cohereclient.NewClient(cohereclient.WithToken(apiKey)),
		model:  model,
	}
}

// Generate sends the prompt as one chat turn with a preamble.
func (c *Cohere) Generate(ctx context.Context, prompt string) (string, error) {
	preamble := systemPrompt
	resp, err := c.client.Chat(ctx, &cohere.ChatRequest{
		Message:  prompt,
		Model:    &c.model,
		Preamble: &preamble,
	})
	if err != nil {
		return "", fmt.Errorf("cohere chat: %w", err)
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}

	out := strings.TrimSpace(resp.Text)
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}

// Close is a no-op.
func (c *Cohere) Close() error {
	return nil
}
