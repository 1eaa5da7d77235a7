package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"riviera/internal/logging"
	"riviera/internal/tool"
)

const defaultRESTTimeout = 30 * time.Second

// REST executes an external tool as a JSON HTTP call. Settings consumed
// from the tool config:
//
//	endpoint  request URL, may contain {{SECRET}} placeholders
//	method    HTTP method, default POST
//	headers   map of header name -> value, values may contain placeholders
//	timeout_seconds  per-request timeout, default 30
type REST struct {
	Base
	client   *http.Client
	endpoint string
	method   string
	headers  map[string]string
}

// NewREST builds an uninitialized REST adapter.
func NewREST(logger logging.Logger) *REST {
	return &REST{Base: NewBase(logger)}
}

func (a *REST) Initialize(ctx context.Context, cfg tool.Config, secrets map[string]string) error {
	return a.initialize(cfg, secrets, func() error {
		endpoint, _ := cfg.Settings["endpoint"].(string)
		if strings.TrimSpace(endpoint) == "" {
			return fmt.Errorf("rest tool %q: missing endpoint", cfg.Name)
		}

		resolved := a.interpolateValue(endpoint).(string)
		if _, err := url.ParseRequestURI(resolved); err != nil {
			return fmt.Errorf("rest tool %q: invalid endpoint: %w", cfg.Name, err)
		}
		a.endpoint = resolved

		a.method = http.MethodPost
		if m, _ := cfg.Settings["method"].(string); m != "" {
			a.method = strings.ToUpper(m)
		}

		a.headers = map[string]string{}
		if raw, ok := cfg.Settings["headers"].(map[string]any); ok {
			for k, v := range raw {
				if s, ok := v.(string); ok {
					a.headers[k] = a.interpolateValue(s).(string)
				}
			}
		}

		timeout := defaultRESTTimeout
		if secs, ok := cfg.Settings["timeout_seconds"].(float64); ok && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
		a.client = &http.Client{Timeout: timeout}
		return nil
	})
}

func (a *REST) Execute(ctx context.Context, params map[string]any) (any, error) {
	endpoint := a.endpoint
	var body io.Reader

	if a.method == http.MethodGet || a.method == http.MethodDelete {
		query := url.Values{}
		for k, v := range params {
			query.Set(k, fmt.Sprintf("%v", v))
		}
		if encoded := query.Encode(); encoded != "" {
			sep := "?"
			if strings.Contains(endpoint, "?") {
				sep = "&"
			}
			endpoint += sep + encoded
		}
	} else {
		payload, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, a.method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rest call failed: %s: %s", resp.Status, truncateBody(respBody))
	}

	var decoded any
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		// Non-JSON responses are surfaced as raw text.
		return string(respBody), nil
	}
	return decoded, nil
}

func (a *REST) Dispose(ctx context.Context) error {
	return a.dispose(func() error {
		a.client = nil
		a.endpoint = ""
		a.headers = nil
		return nil
	})
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
