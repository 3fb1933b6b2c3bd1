// Package llm is the client for the external text-transformation service, an
// OpenAI-compatible chat-completions endpoint. The client only ever sends
// de-identified text; it enforces nothing about that itself, but it does
// guarantee that no request or response body fragment ends up in an error.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// TokenPreservationClause is appended to every system instruction so the
// model returns bracketed placeholders verbatim. Without it the transform is
// free to paraphrase placeholders away, which surfaces as reinsertion gaps.
const TokenPreservationClause = "Placeholders of the form [CATEGORY_N], such as [NAME_0] or [MRN_2], " +
	"are protected identifiers. Reproduce every placeholder exactly as written. " +
	"Never remove, reword, translate, or merge them."

// maxResponseBytes caps how much of an upstream response is read.
const maxResponseBytes = 4 << 20

// Config contains upstream service configuration.
type Config struct {
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	Model       string        `yaml:"model" mapstructure:"model"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Client calls the chat-completions endpoint.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     *zap.Logger
}

// NewClient creates a new upstream client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends a system instruction and a prompt and returns the generated
// text. Status classes map to the package's sentinel errors; any other
// failure is reported by status code only, never by body content.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode completion request: %w", err)
	}

	url := c.cfg.BaseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport errors can wrap the URL but never the payload.
		c.logger.Warn("Upstream request failed", zap.Error(err))
		return "", ErrUnavailable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", ErrUnauthorized
	case resp.StatusCode >= 500:
		c.logger.Warn("Upstream server error", zap.Int("status_code", resp.StatusCode))
		return "", ErrUnavailable
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("llm: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", ErrUnavailable
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		// Decode errors can quote response fragments; report the shape
		// problem without them.
		return "", fmt.Errorf("llm: malformed completion response")
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llm: empty completion response")
	}

	c.logger.Debug("Completion received",
		zap.String("model", c.cfg.Model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("response_bytes", len(body)),
	)

	return parsed.Choices[0].Message.Content, nil
}
