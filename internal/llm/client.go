// Package llm talks to the Anthropic-style Messages and Message Batches
// APIs. It carries no retry policy: transient failures surface to the
// caller, which owns backoff decisions.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"riviera/internal/logging"
	id "riviera/internal/utils/id"
)

const (
	defaultBaseURL     = "https://api.anthropic.com/v1"
	defaultAPIVersion  = "2023-06-01"
	versionHeaderKey   = "anthropic-version"
	apiKeyHeaderKey    = "x-api-key"
	messagesPath       = "/messages"
	batchesPath        = "/messages/batches"
	requestContentType = "application/json"
)

// Config configures a provider client.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Headers map[string]string
}

// UsageCallback observes provider-reported token usage per call.
type UsageCallback func(usage Usage, model string)

// Client is the HTTP provider client.
type Client struct {
	apiKey        string
	baseURL       string
	httpClient    *http.Client
	logger        logging.Logger
	headers       map[string]string
	usageCallback UsageCallback
}

// NewClient builds a provider client.
func NewClient(config Config) *Client {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := 120 * time.Second
	if config.Timeout > 0 {
		timeout = config.Timeout
	}

	return &Client{
		apiKey:     config.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger("llm"),
		headers:    config.Headers,
	}
}

// SetUsageCallback registers an observer for per-call token usage.
func (c *Client) SetUsageCallback(callback UsageCallback) {
	c.usageCallback = callback
}

// CreateMessage issues one Messages API call.
func (c *Client) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	requestID := id.NewRequestID()
	prefix := fmt.Sprintf("[%s] ", requestID)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Debug("%s=== LLM Request ===", prefix)
	c.logger.Debug("%sPOST %s%s model=%s max_tokens=%d tools=%d",
		prefix, c.baseURL, messagesPath, req.Model, req.MaxTokens, len(req.Tools))

	respBody, err := c.post(ctx, messagesPath, body, prefix)
	if err != nil {
		return nil, err
	}

	var resp MessageResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if c.usageCallback != nil {
		c.usageCallback(resp.Usage, resp.Model)
	}

	c.logger.Debug("%sstop_reason=%s usage=%d+%d tokens",
		prefix, resp.StopReason, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, prefix string) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, body, prefix)
}

func (c *Client) get(ctx context.Context, path string, prefix string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil, prefix)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, prefix string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", requestContentType)
	}
	httpReq.Header.Set(versionHeaderKey, defaultAPIVersion)
	if c.apiKey != "" {
		httpReq.Header.Set(apiKeyHeaderKey, c.apiKey)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug("%sHTTP request failed: %v", prefix, err)
		return nil, fmt.Errorf("provider request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 100<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("%serror response (%d): %s", prefix, resp.StatusCode, truncate(respBody, 512))
		return nil, decodeAPIError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// APIError is a structured provider-side failure.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("provider error %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("provider error %d: %s", e.StatusCode, e.Message)
}

func decodeAPIError(statusCode int, body []byte) error {
	var wrapper struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error.Message != "" {
		return &APIError{StatusCode: statusCode, Type: wrapper.Error.Type, Message: wrapper.Error.Message}
	}
	return &APIError{StatusCode: statusCode, Message: string(truncate(body, 512))}
}

func truncate(body []byte, max int) []byte {
	if len(body) <= max {
		return body
	}
	return append(append([]byte{}, body[:max]...), []byte("...")...)
}
