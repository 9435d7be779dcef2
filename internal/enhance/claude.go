package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	messagesEndpoint = "https://api.anthropic.com/v1/messages"
	messagesVersion  = "2023-06-01"
	maxReplyBytes    = 1 << 20
)

// ClaudeClient sends prompts to the Anthropic Messages API. Request
// deadlines come from the caller's context.
type ClaudeClient struct {
	Model       string
	MaxTokens   int
	Temperature float64

	key      string
	endpoint string
	http     *http.Client
}

func NewClaudeClient(apiKey, model string) *ClaudeClient {
	return &ClaudeClient{
		Model:     model,
		MaxTokens: 4096,
		key:       apiKey,
		endpoint:  messagesEndpoint,
		http:      &http.Client{},
	}
}

// WithURL replaces the Messages endpoint, e.g. for a proxy or a test server.
func (c *ClaudeClient) WithURL(endpoint string) *ClaudeClient {
	c.endpoint = endpoint
	return c
}

func (c *ClaudeClient) ModelName() string { return c.Model }

type messageTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	System      string        `json:"system,omitempty"`
	Messages    []messageTurn `json:"messages"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicReply struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// text joins every text block of the reply.
func (r anthropicReply) text() string {
	var sb strings.Builder
	for _, b := range r.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

func (c *ClaudeClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	req, err := c.newRequest(ctx, system, prompt)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// Connection resets and the like are worth another attempt.
		return "", &RetryableError{Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return "", fmt.Errorf("anthropic: read reply: %w", err)
	}
	if err := classifyStatus(resp.StatusCode, raw); err != nil {
		return "", err
	}

	var reply anthropicReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", fmt.Errorf("anthropic: decode reply: %w", err)
	}
	if reply.Error != nil {
		return "", fmt.Errorf("anthropic: %s: %s", reply.Error.Type, reply.Error.Message)
	}
	out := strings.TrimSpace(reply.text())
	if out == "" {
		return "", errors.New("anthropic: reply has no text")
	}
	return out, nil
}

func (c *ClaudeClient) newRequest(ctx context.Context, system, prompt string) (*http.Request, error) {
	payload, err := json.Marshal(anthropicRequest{
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		System:      system,
		Messages:    []messageTurn{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.key)
	req.Header.Set("anthropic-version", messagesVersion)
	return req, nil
}

// classifyStatus maps a non-200 reply to an error. Rate limits, overload
// (529) and other server errors are retryable.
func classifyStatus(code int, body []byte) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
		return &RetryableError{StatusCode: code, Message: string(body)}
	default:
		return fmt.Errorf("anthropic: status %d: %s", code, truncate(string(body), 200))
	}
}

func (c *ClaudeClient) Close() {
	c.http.CloseIdleConnections()
}
