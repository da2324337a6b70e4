// Package gateway is the HTTP client of the agent gateway that produces
// replies for inbound chat messages.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/memohai/lark-enhance/internal/channel"
)

const defaultBaseURL = "http://127.0.0.1:8081"

// Request is one chat turn sent to the gateway.
type Request struct {
	SessionID string
	Query     string
	Channel   channel.Type
	Token     string
}

// Response is the gateway's reply for a chat turn.
type Response struct {
	Text string
}

// Message is a model message as exchanged with the gateway. Content is either
// a string or a list of typed content blocks.
type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type chatRequest struct {
	SessionID      string    `json:"sessionId"`
	Channels       []string  `json:"channels"`
	CurrentChannel string    `json:"currentChannel"`
	Query          string    `json:"query"`
	Messages       []Message `json:"messages"`
}

type chatResponse struct {
	Messages []Message `json:"messages"`
	Text     string    `json:"text"`
}

// Client talks to the agent gateway over HTTP.
type Client struct {
	baseURL    string
	logger     *slog.Logger
	httpClient *http.Client
}

// NewClient creates a gateway client. An empty baseURL falls back to the local
// gateway address and a non-positive timeout to one minute.
func NewClient(log *slog.Logger, baseURL string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		logger:     log.With(slog.String("service", "gateway")),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the normalized gateway address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Chat(ctx context.Context, req Request) (Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return Response{}, fmt.Errorf("query is required")
	}
	payload := chatRequest{
		SessionID:      req.SessionID,
		CurrentChannel: string(req.Channel),
		Query:          query,
		Messages:       []Message{},
	}
	if req.Channel != "" {
		payload.Channels = []string{string(req.Channel)}
	} else {
		payload.Channels = []string{}
	}
	parsed, err := c.postChat(ctx, payload, req.Token)
	if err != nil {
		return Response{}, err
	}
	return Response{Text: parsed.reply()}, nil
}

func (c *Client) postChat(ctx context.Context, payload chatRequest, token string) (chatResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return chatResponse{}, err
	}
	url := c.baseURL + "/chat/"
	c.logger.Debug("gateway request", slog.String("url", url), slog.String("body_prefix", truncate(string(body), 200)))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return chatResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(token) != "" {
		httpReq.Header.Set("Authorization", token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return chatResponse{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return chatResponse{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("gateway error", slog.String("url", url), slog.Int("status", resp.StatusCode), slog.String("body_prefix", truncate(string(respBody), 300)))
		return chatResponse{}, fmt.Errorf("agent gateway error: %s", strings.TrimSpace(string(respBody)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		c.logger.Error("gateway response parse failed", slog.String("body_prefix", truncate(string(respBody), 300)), slog.Any("error", err))
		return chatResponse{}, fmt.Errorf("failed to parse gateway response: %w", err)
	}
	return parsed, nil
}

// reply returns the text of the last assistant message, or the plain text
// field when the gateway sent no messages.
func (r chatResponse) reply() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role != "assistant" {
			continue
		}
		if text := r.Messages[i].TextContent(); text != "" {
			return text
		}
	}
	return strings.TrimSpace(r.Text)
}

// TextContent flattens the message content into plain text.
func (m Message) TextContent() string {
	if len(m.Content) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(m.Content, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(m.Content, &blocks); err != nil {
		return ""
	}
	parts := make([]string, 0, len(blocks))
	for _, block := range blocks {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			parts = append(parts, strings.TrimSpace(block.Text))
		}
	}
	return strings.Join(parts, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
