package engine

import (
	"context"
	"time"

	"github.com/kalambet/previouslives/internal/completion"
)

// OpenAIEngine adapts an OpenAI-compatible completion client to the Engine
// interface.
type OpenAIEngine struct {
	client *completion.Client
}

// NewOpenAIEngine creates an OpenAIEngine. An empty baseURL targets the
// public OpenAI API.
func NewOpenAIEngine(apiKey, baseURL string) *OpenAIEngine {
	return &OpenAIEngine{client: completion.NewClient(apiKey, baseURL)}
}

func (e *OpenAIEngine) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	msgs := make([]completion.Message, len(messages))
	for i, m := range messages {
		msgs[i] = completion.Message{Role: m.Role, Content: m.Content}
	}
	return e.client.Chat(ctx, completion.ChatRequest{Model: model, Messages: msgs})
}

// IsRunning reports whether the /models endpoint answers with the configured key.
func (e *OpenAIEngine) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := e.client.ListModels(ctx)
	return err == nil
}
