// Package llm adapts an OpenAI-compatible chat completion API to the
// assistant backend interface used by the session controller.
package llm

import (
	"context"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/lumina/internal/config"
)

// Client is the part of *openai.Client the backend calls.
type Client interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NewClient builds an openai client for cfg. An empty base_url keeps the
// library's default endpoint.
func NewClient(cfg config.LLMConfig) *openai.Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(oc)
}
