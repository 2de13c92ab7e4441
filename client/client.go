// Package client is a small Go client for the dijon relay API. It mirrors
// the browser widget's transport behavior: a short request timeout mapped to
// a friendly error, and a persisted user id generated once and reused.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"dijon/internal/models"
)

// DefaultTimeout bounds each request; the server keeps its own, longer
// upstream timeout.
const DefaultTimeout = 15 * time.Second

// ErrTimedOut replaces transport-level timeout errors with a message fit
// for showing to a user.
var ErrTimedOut = errors.New("request timed out, please try again")

// APIError carries a non-2xx response from the relay.
type APIError struct {
	Status            int
	Message           string
	Detail            string
	RetryAfterSeconds int
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error %d: %s: %s", e.Status, e.Message, e.Detail)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Error             string `json:"error"`
	Detail            string `json:"detail"`
	RetryAfterSeconds int    `json:"retryAfterSeconds"`
}

type historyResponse struct {
	UserID   string           `json:"userId"`
	Messages []models.Message `json:"messages"`
}

// Send posts one message and returns the assistant's reply.
func (c *Client) Send(ctx context.Context, userID, message string) (string, error) {
	body, err := json.Marshal(chatRequest{UserID: userID, Message: message})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return "", err
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil || out.Reply == "" {
		return "", errors.New("malformed response: missing reply")
	}
	return out.Reply, nil
}

// History returns the user's persisted conversation, oldest first.
func (c *Client) History(ctx context.Context, userID string) ([]models.Message, error) {
	u := c.baseURL + "/api/chat/history?userId=" + url.QueryEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var out historyResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return out.Messages, nil
}

// ClearHistory empties the user's conversation log.
func (c *Client) ClearHistory(ctx context.Context, userID string) error {
	u := c.baseURL + "/api/chat/history?userId=" + url.QueryEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	_, err = c.do(req)
	return err
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, ErrTimedOut
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		apiErr := &APIError{Status: res.StatusCode, Message: http.StatusText(res.StatusCode)}
		var body errorResponse
		if json.Unmarshal(raw, &body) == nil && body.Error != "" {
			apiErr.Message = body.Error
			apiErr.Detail = body.Detail
			apiErr.RetryAfterSeconds = body.RetryAfterSeconds
		}
		return nil, apiErr
	}
	return raw, nil
}

// LoadOrCreateUserID reads a persisted client id from path, generating and
// saving a new one on first use. This is the widget's localStorage key in
// file form.
func LoadOrCreateUserID(path string) (string, error) {
	if raw, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(raw)); id != "" {
			return id, nil
		}
	}

	id := uuid.NewString()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create id dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(id), 0o600); err != nil {
		return "", fmt.Errorf("persist user id: %w", err)
	}
	return id, nil
}
