// Package relay answers chat messages through an HTTP relay in front of the
// RAG backend.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrBackend marks a failure reported by the relay or the backend behind it.
var ErrBackend = errors.New("answer backend error")

const maxResponseBytes = 1 << 20

type request struct {
	Message string `json:"message"`
}

// response covers both the relay shape ({content} / {error}) and the backend's
// native one ({answer} / {detail}).
type response struct {
	Content *string         `json:"content"`
	Answer  *string         `json:"answer"`
	Error   string          `json:"error"`
	Detail  json.RawMessage `json:"detail"`
}

// Client implements ports.AnswerService over a single POST endpoint.
type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		url:  strings.TrimSpace(url),
		http: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Ask(ctx context.Context, message string) (string, error) {
	if c.url == "" {
		return "", errors.New("relay URL is not configured")
	}

	body, err := json.Marshal(request{Message: message})
	if err != nil {
		return "", fmt.Errorf("failed to encode relay request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read relay response: %w", err)
	}

	var decoded response
	decodeErr := json.Unmarshal(raw, &decoded)

	if reason := decoded.failure(); decodeErr == nil && reason != "" {
		return "", fmt.Errorf("%w: %s", ErrBackend, reason)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d", ErrBackend, resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("malformed relay response: %w", decodeErr)
	}

	switch {
	case decoded.Content != nil:
		return *decoded.Content, nil
	case decoded.Answer != nil:
		return *decoded.Answer, nil
	default:
		return "", errors.New("malformed relay response: no content")
	}
}

func (r response) failure() string {
	if reason := strings.TrimSpace(r.Error); reason != "" {
		return reason
	}
	if len(r.Detail) == 0 || string(r.Detail) == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(r.Detail, &text); err == nil {
		return strings.TrimSpace(text)
	}
	// FastAPI validation errors carry a list of objects.
	return string(r.Detail)
}
