package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/comigor/lumina/internal/config"
	"github.com/comigor/lumina/internal/logger"
)

// TokenSource supplies the bearer token of the current session, or "" when
// nobody is signed in.
type TokenSource interface {
	Token() string
}

// Client is a client for the Lumina assistant API
type Client struct {
	baseURL  string
	timeouts config.ClientConfig
	tokens   TokenSource
	client   *http.Client
	log      *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// NewClient creates a new Client
func NewClient(server config.ServerConfig, timeouts config.ClientConfig, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(server.BaseURL, "/"),
		timeouts: timeouts,
		tokens:   tokens,
		client:   &http.Client{},
		log:      logger.L.With("component", "remote"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type askPayload struct {
	Message        string `json:"message"`
	ConversationID ID     `json:"conversation_id"`
}

type askResponse struct {
	Response       string `json:"response"`
	ConversationID ID     `json:"conversation_id"`
}

// Ask posts the user text to /ai/ask. It never returns an error: transport
// and status failures are folded into the Outcome. The call is cancelled
// after the configured ask timeout.
func (c *Client) Ask(ctx context.Context, req AskRequest) Outcome {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.AskTimeout)
	defer cancel()

	body, err := json.Marshal(askPayload{Message: req.Text, ConversationID: ID(req.ConversationID)})
	if err != nil {
		return Failed(fmt.Errorf("ask: encode: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ai/ask", bytes.NewReader(body))
	if err != nil {
		return Failed(fmt.Errorf("ask: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// Anonymous asks are allowed.
	if token := c.tokens.Token(); token != "" {
		httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.log.Warn("ask transport failure", "error", err, "elapsed", time.Since(start))
		return Failed(fmt.Errorf("ask: %w: %w", ErrUnreachable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drain(resp.Body)
		err := &StatusError{Op: "ask", StatusCode: resp.StatusCode}
		c.log.Warn("ask rejected", "status", resp.StatusCode)
		return Failed(err)
	}

	var out askResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.log.Warn("ask response undecodable", "error", err)
		return Failed(fmt.Errorf("ask: decode: %w: %w", ErrServerError, err))
	}
	c.log.Debug("ask settled", "conversation_id", string(out.ConversationID), "elapsed", time.Since(start))
	return Succeeded(out.Response, string(out.ConversationID))
}

// Record is one stored exchange as returned by /ai/history.
type Record struct {
	ID             ID     `json:"id"`
	ConversationID ID     `json:"conversation_id"`
	Message        string `json:"message"`
	Response       string `json:"response"`
	Timestamp      string `json:"timestamp"`
}

type historyResponse struct {
	History []Record `json:"history"`
}

// FetchHistory retrieves every stored exchange of the signed-in user, in
// server order. Without a token it returns ErrNoSession without calling out.
func (c *Client) FetchHistory(ctx context.Context) ([]Record, error) {
	token := c.tokens.Token()
	if token == "" {
		return nil, ErrNoSession
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeouts.HistoryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ai/history", nil)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history: %w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		drain(resp.Body)
		return nil, &StatusError{Op: "history", StatusCode: resp.StatusCode}
	}

	var out historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("history: decode: %w: %w", ErrServerError, err)
	}
	return out.History, nil
}

// DeleteConversation asks the service to forget a conversation. Callers
// treat it as best-effort; the error is only meant for logging.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	token := c.tokens.Token()
	if token == "" {
		return ErrNoSession
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeouts.DeleteTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/ai/conversation/%s", c.baseURL, url.PathEscape(conversationID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete: %w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	drain(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: "delete", StatusCode: resp.StatusCode}
	}
	return nil
}

func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 64<<10))
}
