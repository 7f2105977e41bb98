package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Path    string
	Auth    string
	Title   string
	Payload goopenai.ChatCompletionRequest
}

func newCompletionServer(t *testing.T, status int, body string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Path = r.URL.Path
		captured.Auth = r.Header.Get("Authorization")
		captured.Title = r.Header.Get("X-Title")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured.Payload))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func TestAskSendsSystemAndUserMessages(t *testing.T) {
	srv, captured := newCompletionServer(t, http.StatusOK,
		`{"choices":[{"index":0,"message":{"role":"assistant","content":"  Paris.  "}}]}`)

	client := NewClient(Config{BaseURL: srv.URL + "/v1/", Headers: map[string]string{"X-Title": "ragchat"}})
	answer, err := client.Ask(context.Background(), "capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris.", answer)

	assert.Equal(t, "/v1/chat/completions", captured.Path)
	assert.Equal(t, "Bearer "+placeholderKey, captured.Auth)
	assert.Equal(t, "ragchat", captured.Title)
	assert.Equal(t, DefaultModel, captured.Payload.Model)
	require.Len(t, captured.Payload.Messages, 2)
	assert.Equal(t, goopenai.ChatMessageRoleSystem, captured.Payload.Messages[0].Role)
	assert.Equal(t, DefaultSystemPrompt, captured.Payload.Messages[0].Content)
	assert.Equal(t, goopenai.ChatMessageRoleUser, captured.Payload.Messages[1].Role)
	assert.Equal(t, "capital of France?", captured.Payload.Messages[1].Content)
}

func TestAskUsesConfiguredModelAndKey(t *testing.T) {
	srv, captured := newCompletionServer(t, http.StatusOK,
		`{"choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`)

	client := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-4o-mini", SystemPrompt: "Be brief."})
	_, err := client.Ask(context.Background(), "hi")
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", captured.Auth)
	assert.Equal(t, "gpt-4o-mini", captured.Payload.Model)
	assert.Equal(t, "Be brief.", captured.Payload.Messages[0].Content)
}

func TestAskReportsAPIErrors(t *testing.T) {
	srv, _ := newCompletionServer(t, http.StatusInternalServerError,
		`{"error":{"message":"model not loaded","type":"server_error"}}`)

	_, err := NewClient(Config{BaseURL: srv.URL}).Ask(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestAskRejectsEmptyChoices(t *testing.T) {
	srv, _ := newCompletionServer(t, http.StatusOK, `{"choices":[]}`)

	_, err := NewClient(Config{BaseURL: srv.URL}).Ask(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}
