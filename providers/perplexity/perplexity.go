// Package perplexity implements the intention.Provider adapter for the
// Perplexity chat completions API.
package perplexity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/nelson-n/intention"
)

const (
	defaultBaseURL = "https://api.perplexity.ai"
	defaultModel   = "sonar"

	// The adapter asks for strict JSON so the coordinator's schema
	// validation has something to bite on.
	systemPrompt = "You are a helpful assistant that provides accurate, structured information in JSON format. Always ensure your responses are valid JSON objects."
)

// Client sends rendered payloads to Perplexity and maps API failures onto
// the classified error kinds the retry orchestrator understands.
type Client struct {
	httpClient   *http.Client
	apiKey       string
	baseURL      string
	model        string
	temperature  float64
	maxTokens    int
	costPerToken float64
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the bearer token explicitly instead of reading the
// PERPLEXITY_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithBaseURL points the adapter at a different endpoint, e.g. a test server.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTemperature sets sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = t }
}

// WithMaxTokens bounds the completion length.
func WithMaxTokens(n int) Option {
	return func(c *Client) { c.maxTokens = n }
}

// WithCostPerToken sets how usage tokens translate into ledger cost units.
func WithCostPerToken(cost float64) Option {
	return func(c *Client) { c.costPerToken = cost }
}

// New creates a Perplexity adapter. Credentials come from options or, falling
// back, from the environment (a .env file is honored).
func New(opts ...Option) (*Client, error) {
	c := &Client{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		baseURL:      defaultBaseURL,
		model:        defaultModel,
		temperature:  0.7,
		maxTokens:    1000,
		costPerToken: 0.001,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.apiKey == "" {
		_ = godotenv.Load()
		c.apiKey = os.Getenv("PERPLEXITY_API_KEY")
	}
	if c.apiKey == "" {
		return nil, errors.New("perplexity: no API key configured")
	}
	return c, nil
}

// ID implements intention.Provider.
func (c *Client) ID() string { return "perplexity" }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Send implements intention.Provider. Failures come back as classified
// *intention.ProviderError values: auth and invalid requests are fatal,
// provider throttling is rate-limited (honoring Retry-After), everything
// else that might clear up is transient.
func (c *Client) Send(ctx context.Context, payload intention.Payload) (*intention.ProviderResponse, error) {
	var rendered struct {
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal(payload, &rendered); err != nil || rendered.Prompt == "" {
		return nil, &intention.ProviderError{
			Provider: c.ID(),
			Kind:     intention.KindFatal,
			Message:  "payload does not contain a prompt",
			Cause:    err,
		}
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: rendered.Prompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return nil, &intention.ProviderError{
			Provider: c.ID(),
			Kind:     intention.KindFatal,
			Message:  "request encoding failed",
			Cause:    err,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &intention.ProviderError{
			Provider: c.ID(),
			Kind:     intention.KindFatal,
			Message:  "request construction failed",
			Cause:    err,
		}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &intention.ProviderError{
			Provider: c.ID(),
			Kind:     intention.KindTransient,
			Message:  "network error",
			Cause:    err,
		}
	}
	defer resp.Body.Close()

	if perr := c.classifyStatus(resp); perr != nil {
		return nil, perr
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &intention.ProviderError{
			Provider: c.ID(),
			Kind:     intention.KindTransient,
			Message:  "reading response body failed",
			Cause:    err,
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &intention.ProviderError{
			Provider: c.ID(),
			Kind:     intention.KindMalformed,
			Message:  "response is not valid JSON",
			Cause:    err,
		}
	}
	if len(parsed.Choices) == 0 {
		return nil, &intention.ProviderError{
			Provider: c.ID(),
			Kind:     intention.KindMalformed,
			Message:  "no choices in response",
		}
	}

	choice := parsed.Choices[0]
	return &intention.ProviderResponse{
		Raw:   []byte(choice.Message.Content),
		Model: c.model,
		Cost:  float64(parsed.Usage.TotalTokens) * c.costPerToken,
		Meta: map[string]any{
			"finish_reason":     choice.FinishReason,
			"prompt_tokens":     parsed.Usage.PromptTokens,
			"completion_tokens": parsed.Usage.CompletionTokens,
			"total_tokens":      parsed.Usage.TotalTokens,
		},
	}, nil
}

func (c *Client) classifyStatus(resp *http.Response) *intention.ProviderError {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &intention.ProviderError{
			Provider:   c.ID(),
			Kind:       intention.KindFatal,
			StatusCode: resp.StatusCode,
			Message:    "invalid API key",
		}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &intention.ProviderError{
			Provider:   c.ID(),
			Kind:       intention.KindRateLimited,
			StatusCode: resp.StatusCode,
			Message:    "rate limit exceeded",
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= 500:
		return &intention.ProviderError{
			Provider:   c.ID(),
			Kind:       intention.KindTransient,
			StatusCode: resp.StatusCode,
			Message:    "server error",
		}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &intention.ProviderError{
			Provider:   c.ID(),
			Kind:       intention.KindFatal,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("request failed: %s", string(body)),
		}
	}
}

// parseRetryAfter supports both delay-seconds and HTTP-date formats, capped
// at one hour.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		delay := time.Duration(seconds) * time.Second
		if delay > time.Hour {
			delay = time.Hour
		}
		return delay
	}
	if t, err := http.ParseTime(value); err == nil {
		if delay := time.Until(t); delay > 0 && delay <= time.Hour {
			return delay
		}
	}
	return 0
}
