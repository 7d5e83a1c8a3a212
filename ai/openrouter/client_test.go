package openrouter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/teranos/dealflow/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	c.SetHTTPClient(srv.Client())
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func reply(w http.ResponseWriter, content string) {
	_ = json.NewEncoder(w).Encode(ChatCompletionResponse{
		Model:   "openai/gpt-4o-mini",
		Choices: []Choice{{Message: NewTextMessage("assistant", content)}},
		Usage:   Usage{PromptTokens: 1000, CompletionTokens: 500, TotalTokens: 1500},
	})
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Config{APIKey: "k"})
	assert.Equal(t, DefaultModel, c.Model())
	assert.Equal(t, 0.2, *c.config.Temperature)
	assert.Equal(t, 4000, *c.config.MaxTokens)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.True(t, c.IsConfigured())
}

func TestChatSendsRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "dealflow", r.Header.Get("X-Title"))

		body, _ := io.ReadAll(r.Body)
		var req ChatCompletionRequest
		require.NoError(t, json.Unmarshal(body, &req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "You are an analyst.", req.Messages[0].TextContent())
		assert.Equal(t, "json_object", req.ResponseFormat.Type)

		var parts []ContentPart
		require.NoError(t, json.Unmarshal(req.Messages[1].Content, &parts))
		require.Len(t, parts, 2)
		assert.Equal(t, "file", parts[1].Type)
		assert.Equal(t, "data:application/pdf;base64,JVBERg==", parts[1].File.FileData)

		reply(w, "  {\"ok\": true}  ")
	})

	resp, err := c.Chat(context.Background(), ChatRequest{
		SystemPrompt: "You are an analyst.",
		UserPrompt:   "Extract the deck.",
		JSONMode:     true,
		Attachments:  []ContentPart{FileAttachment("deck.pdf", "application/pdf", []byte("%PDF"))},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, resp.Content)
	assert.InDelta(t, 0.00045, resp.CostUSD, 1e-9)
}

func TestChatRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
			return
		}
		reply(w, "fine")
	})

	resp, err := c.Chat(context.Background(), ChatRequest{UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "fine", resp.Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestChatDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	})

	_, err := c.Chat(context.Background(), ChatRequest{UserPrompt: "hi"})
	assert.ErrorContains(t, err, "status 401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestChatRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{}).Chat(context.Background(), ChatRequest{UserPrompt: "hi"})
	assert.True(t, errors.Is(err, ErrNotConfigured))
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestGenerateJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		reply(w, "Here you go:\n```json\n{\"company\": {\"name\": \"Acme\"}}\n```")
	})

	var out struct {
		Company struct {
			Name string `json:"name"`
		} `json:"company"`
	}
	require.NoError(t, c.GenerateJSON(context.Background(), ChatRequest{UserPrompt: "x"}, &out))
	assert.Equal(t, "Acme", out.Company.Name)
}

func TestGenerateJSONMalformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		reply(w, "I could not read the deck, sorry.")
	})

	var out map[string]any
	err := c.GenerateJSON(context.Background(), ChatRequest{UserPrompt: "x"}, &out)
	assert.True(t, errors.Is(err, ErrMalformedOutput))
}

func TestRateLimiterHonorsContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { reply(w, "ok") })
	c.limiter = rate.NewLimiter(rate.Every(time.Hour), 1)

	_, err := c.Chat(context.Background(), ChatRequest{UserPrompt: "first"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Chat(ctx, ChatRequest{UserPrompt: "second"})
	assert.ErrorContains(t, err, "rate limiter")
}
