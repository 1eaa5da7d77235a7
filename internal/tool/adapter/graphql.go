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

	"riviera/internal/logging"
	"riviera/internal/tool"
)

// GraphQL executes an external tool as a GraphQL operation. Settings:
//
//	endpoint  GraphQL endpoint URL, may contain {{SECRET}} placeholders
//	query     the operation document; call params become the variables
//	headers   map of header name -> value
type GraphQL struct {
	Base
	client   *http.Client
	endpoint string
	query    string
	headers  map[string]string
}

// NewGraphQL builds an uninitialized GraphQL adapter.
func NewGraphQL(logger logging.Logger) *GraphQL {
	return &GraphQL{Base: NewBase(logger)}
}

func (a *GraphQL) Initialize(ctx context.Context, cfg tool.Config, secrets map[string]string) error {
	return a.initialize(cfg, secrets, func() error {
		endpoint, _ := cfg.Settings["endpoint"].(string)
		if strings.TrimSpace(endpoint) == "" {
			return fmt.Errorf("graphql tool %q: missing endpoint", cfg.Name)
		}
		resolved := a.interpolateValue(endpoint).(string)
		if _, err := url.ParseRequestURI(resolved); err != nil {
			return fmt.Errorf("graphql tool %q: invalid endpoint: %w", cfg.Name, err)
		}
		a.endpoint = resolved

		query, _ := cfg.Settings["query"].(string)
		if strings.TrimSpace(query) == "" {
			return fmt.Errorf("graphql tool %q: missing query", cfg.Name)
		}
		a.query = query

		a.headers = map[string]string{}
		if raw, ok := cfg.Settings["headers"].(map[string]any); ok {
			for k, v := range raw {
				if s, ok := v.(string); ok {
					a.headers[k] = a.interpolateValue(s).(string)
				}
			}
		}

		a.client = &http.Client{Timeout: defaultRESTTimeout}
		return nil
	})
}

func (a *GraphQL) Execute(ctx context.Context, params map[string]any) (any, error) {
	payload, err := json.Marshal(map[string]any{
		"query":     a.query,
		"variables": params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
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
		return nil, fmt.Errorf("graphql call failed: %s: %s", resp.Status, truncateBody(respBody))
	}

	var body struct {
		Data   any `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(respBody, &body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(body.Errors) > 0 {
		messages := make([]string, 0, len(body.Errors))
		for _, e := range body.Errors {
			messages = append(messages, e.Message)
		}
		return nil, fmt.Errorf("graphql errors: %s", strings.Join(messages, "; "))
	}
	return body.Data, nil
}

func (a *GraphQL) Dispose(ctx context.Context) error {
	return a.dispose(func() error {
		a.client = nil
		a.endpoint = ""
		a.query = ""
		a.headers = nil
		return nil
	})
}
