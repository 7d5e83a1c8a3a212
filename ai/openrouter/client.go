// Package openrouter is a chat-completion client for the OpenRouter API.
package openrouter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/dealflow/errors"
	"github.com/teranos/dealflow/internal/httpclient"
)

const (
	// DefaultModel matches the default in am/defaults.go
	DefaultModel = "openai/gpt-4o-mini"

	// DefaultBaseURL is the OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	maxAttempts = 3
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("OpenRouter API key not configured")

// Client represents an OpenRouter API client.
type Client struct {
	baseURL    string
	httpClient *httpclient.SaferClient
	limiter    *rate.Limiter
	config     Config
	logger     *zap.SugaredLogger
	sleep      func(ctx context.Context, d time.Duration) error
}

// Config holds client configuration.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	Temperature       *float64 // nil = 0.2
	MaxTokens         *int     // nil = 4000
	RequestsPerMinute int      // 0 = unlimited
	Timeout           time.Duration
	Logger            *zap.SugaredLogger
	// Title is sent as X-Title for the OpenRouter dashboard.
	Title string
}

// NewClient creates a client with defaults applied.
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Temperature == nil {
		t := 0.2
		config.Temperature = &t
	}
	if config.MaxTokens == nil {
		n := 4000
		config.MaxTokens = &n
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}
	if config.Title == "" {
		config.Title = "dealflow"
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1)
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpclient.New(httpclient.Options{Timeout: config.Timeout}),
		limiter:    limiter,
		config:     config,
		logger:     logger,
		sleep:      sleepCtx,
	}
}

// ChatCompletionRequest is the wire request for /chat/completions.
type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ResponseFormat asks compatible models for JSON output.
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatRequest is a high-level request.
type ChatRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  *float64
	MaxTokens    *int
	Model        string
	JSONMode     bool
	Attachments  []ContentPart
}

// ChatResponse is the model's reply.
type ChatResponse struct {
	Content string
	Model   string
	Usage   Usage
	CostUSD float64
}

// ContentPart is one part of a multimodal message.
type ContentPart struct {
	Type     string            `json:"type"`
	Text     string            `json:"text,omitempty"`
	ImageURL *ContentPartImage `json:"image_url,omitempty"`
	File     *ContentPartFile  `json:"file,omitempty"`
}

// ContentPartImage holds a data URI for an image attachment.
type ContentPartImage struct {
	URL string `json:"url"`
}

// ContentPartFile holds a file attachment such as a PDF deck.
type ContentPartFile struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

// FileAttachment builds a file part carrying data as a base64 data URI.
func FileAttachment(filename, mime string, data []byte) ContentPart {
	return ContentPart{
		Type: "file",
		File: &ContentPartFile{
			Filename: filename,
			FileData: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data),
		},
	}
}

// Message is a chat message. Content is a JSON string for text-only
// messages or a []ContentPart array for multimodal ones.
type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// NewTextMessage creates a plain text message.
func NewTextMessage(role, text string) Message {
	raw, _ := json.Marshal(text)
	return Message{Role: role, Content: raw}
}

// NewMultimodalMessage creates a message with text followed by attachments.
func NewMultimodalMessage(role, text string, attachments []ContentPart) Message {
	parts := make([]ContentPart, 0, 1+len(attachments))
	parts = append(parts, ContentPart{Type: "text", Text: text})
	parts = append(parts, attachments...)
	raw, _ := json.Marshal(parts)
	return Message{Role: role, Content: raw}
}

// TextContent returns the message text.
func (m Message) TextContent() string {
	var s string
	if err := json.Unmarshal(m.Content, &s); err != nil {
		return string(m.Content)
	}
	return s
}

// ChatCompletionResponse is the wire response.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is a completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage is token accounting for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// statusError is a non-200 API response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return "OpenRouter returned status " + strconv.Itoa(e.code) + ": " + e.body
}

// retryable reports whether a retry could succeed: rate limits, server
// errors and transport failures. Context errors never retry.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	lower := strings.ToLower(err.Error())
	for _, s := range []string{"connection reset", "connection refused", "timeout", "temporary failure", "eof"} {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// CreateChatCompletion sends one request without retries.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	httpReq.Header.Set("X-Title", c.config.Title)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}
	if resp.StatusCode != http.StatusOK {
		snippet := string(respBody)
		if len(snippet) > 300 {
			snippet = snippet[:300]
		}
		return nil, &statusError{code: resp.StatusCode, body: snippet}
	}

	var out ChatCompletionResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}
	return &out, nil
}

// Chat sends a request, waiting on the rate limiter and retrying transient
// failures with linear backoff.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if c.config.APIKey == "" {
		return nil, errors.WithHint(ErrNotConfigured, "set DEALFLOW_OPENROUTER_API_KEY or openrouter.api_key")
	}

	temperature := *c.config.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := *c.config.MaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	model := c.config.Model
	if req.Model != "" {
		model = req.Model
	}

	user := NewTextMessage("user", req.UserPrompt)
	if len(req.Attachments) > 0 {
		user = NewMultimodalMessage("user", req.UserPrompt, req.Attachments)
	}
	messages := []Message{user}
	if req.SystemPrompt != "" {
		messages = append([]Message{NewTextMessage("system", req.SystemPrompt)}, messages...)
	}
	wire := ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if req.JSONMode {
		wire.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	c.logger.Debugw("AI chat request",
		"model", model,
		"temperature", temperature,
		"max_tokens", maxTokens,
		"attachments", len(req.Attachments),
		"prompt_chars", len(req.SystemPrompt)+len(req.UserPrompt))

	var resp *ChatCompletionResponse
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if serr := c.sleep(ctx, time.Duration(attempt)*time.Second); serr != nil {
				return nil, errors.Wrap(serr, "OpenRouter retry interrupted")
			}
		}
		if werr := c.limiter.Wait(ctx); werr != nil {
			return nil, errors.Wrap(werr, "OpenRouter rate limiter")
		}

		resp, err = c.CreateChatCompletion(ctx, wire)
		if err == nil {
			break
		}
		c.logger.Warnw("OpenRouter API error", "attempt", attempt+1, "max_attempts", maxAttempts, "model", model, "error", err)
		if !retryable(err) {
			return nil, errors.Wrap(err, "OpenRouter API error")
		}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "OpenRouter API error after %d attempts", maxAttempts)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no response choices from OpenRouter")
	}

	cost := CalculateCost(model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	c.logger.Debugw("OpenRouter response",
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"cost_usd", cost)

	return &ChatResponse{
		Content: strings.TrimSpace(resp.Choices[0].Message.TextContent()),
		Model:   resp.Model,
		Usage:   resp.Usage,
		CostUSD: cost,
	}, nil
}

// GenerateJSON runs req in JSON mode and decodes the reply into out.
// Unparseable output yields ErrMalformedOutput.
func (c *Client) GenerateJSON(ctx context.Context, req ChatRequest, out any) error {
	req.JSONMode = true
	resp, err := c.Chat(ctx, req)
	if err != nil {
		return err
	}
	return DecodeJSON(resp.Content, out)
}

// IsConfigured returns true if the client has an API key
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// Model returns the default model.
func (c *Client) Model() string {
	return c.config.Model
}

// SetHTTPClient replaces the HTTP client. Tests only: the replacement skips
// private-range checks so httptest servers are reachable.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.Wrap(client)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
