// Package openai answers chat messages directly through an OpenAI-compatible
// chat completions endpoint, such as a local Ollama server.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL = "http://localhost:11434/v1"
	DefaultModel   = "phi3"

	// Ollama ignores the key but the client still sends one.
	placeholderKey = "ollama"
)

const DefaultSystemPrompt = "You are a helpful and concise assistant. " +
	"Answer the question using your own knowledge. " +
	"Do not generate creative or fictional answers. " +
	"Keep your response short and factual."

type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	Timeout      time.Duration
	Headers      map[string]string
}

// Client implements ports.AnswerService with a single-turn chat completion.
type Client struct {
	client       *goopenai.Client
	model        string
	systemPrompt string
}

type headerTransport struct {
	rt      http.RoundTripper
	headers http.Header
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cl := req.Clone(req.Context())
	for k, vs := range t.headers {
		for _, v := range vs {
			cl.Header.Add(k, v)
		}
	}
	return t.rt.RoundTrip(cl)
}

func NewClient(cfg Config) *Client {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		apiKey = placeholderKey
	}
	clientCfg := goopenai.DefaultConfig(apiKey)
	clientCfg.BaseURL = DefaultBaseURL
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = strings.TrimRight(base, "/")
	}

	var transport http.RoundTripper = http.DefaultTransport
	if len(cfg.Headers) > 0 {
		h := http.Header{}
		for k, v := range cfg.Headers {
			h.Set(k, v)
		}
		transport = headerTransport{rt: transport, headers: h}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Transport: transport, Timeout: timeout}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	prompt := strings.TrimSpace(cfg.SystemPrompt)
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}

	return &Client{
		client:       goopenai.NewClientWithConfig(clientCfg),
		model:        model,
		systemPrompt: prompt,
	}
}

func (c *Client) Ask(ctx context.Context, message string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: c.systemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: message},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
