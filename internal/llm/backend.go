package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/lumina/internal/config"
	"github.com/comigor/lumina/internal/logger"
	"github.com/comigor/lumina/internal/remote"
	"github.com/comigor/lumina/internal/transcript"
)

const defaultSystemPrompt = "You are Lumina AI, a helpful assistant. Please respond to the user's request accurately and concisely."

// Backend answers asks with an OpenAI-compatible chat completion endpoint
// instead of the Lumina service. Conversations live only on this client, so
// it never assigns conversation ids and has nothing to delete remotely.
type Backend struct {
	client       Client
	model        string
	systemPrompt string
	timeout      time.Duration
	log          *slog.Logger
}

// NewBackend wires a Backend to client.
func NewBackend(client Client, cfg config.LLMConfig, timeout time.Duration) *Backend {
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	return &Backend{
		client:       client,
		model:        cfg.Model,
		systemPrompt: prompt,
		timeout:      timeout,
		log:          logger.L.With("component", "llm"),
	}
}

// Ask sends the prior transcript plus the new text and classifies the result
// the same way the Lumina client does: 429 is rate limiting, anything else
// that goes wrong is a failure.
func (b *Backend) Ask(ctx context.Context, req remote.AskRequest) remote.Outcome {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Transcript)+2)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: b.systemPrompt})
	for _, m := range req.Transcript {
		role := openai.ChatMessageRoleUser
		if m.Role == transcript.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Text})

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    b.model,
		Messages: messages,
	})
	if err != nil {
		b.log.Warn("chat completion failed", "error", err)
		return remote.Failed(classify(err))
	}
	if len(resp.Choices) == 0 {
		return remote.Failed(fmt.Errorf("chat completion: %w: no choices", remote.ErrServerError))
	}
	return remote.Succeeded(resp.Choices[0].Message.Content, "")
}

// DeleteConversation is a no-op: nothing is stored remotely.
func (b *Backend) DeleteConversation(_ context.Context, conversationID string) error {
	b.log.Debug("delete skipped; conversation is local only", "conversation_id", conversationID)
	return nil
}

func classify(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == 0 {
		return fmt.Errorf("chat completion: %w: %w", remote.ErrUnreachable, err)
	}
	// StatusError maps 429 to ErrRateLimited.
	return fmt.Errorf("%w: %w", &remote.StatusError{Op: "chat completion", StatusCode: status}, err)
}
