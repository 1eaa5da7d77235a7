package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"riviera/internal/logging"
	"riviera/internal/tool"
)

// MCP executes an external tool against a Model Context Protocol server
// spawned as a child process speaking JSON-RPC over stdio. Settings:
//
//	command    executable to spawn (required)
//	args       list of command arguments
//	env        map of extra environment variables; values may contain
//	           {{SECRET}} placeholders
//	tool_name  tool name on the MCP server, defaults to the config name
type MCP struct {
	Base
	client   *stdioClient
	toolName string
}

// NewMCP builds an uninitialized MCP adapter.
func NewMCP(logger logging.Logger) *MCP {
	return &MCP{Base: NewBase(logger)}
}

func (a *MCP) Initialize(ctx context.Context, cfg tool.Config, secrets map[string]string) error {
	return a.initialize(cfg, secrets, func() error {
		command, _ := cfg.Settings["command"].(string)
		if strings.TrimSpace(command) == "" {
			return fmt.Errorf("mcp tool %q: missing command", cfg.Name)
		}

		var args []string
		if raw, ok := cfg.Settings["args"].([]any); ok {
			for _, item := range raw {
				if s, ok := item.(string); ok {
					args = append(args, s)
				}
			}
		}

		var env []string
		if raw, ok := cfg.Settings["env"].(map[string]any); ok {
			for k, v := range raw {
				if s, ok := v.(string); ok {
					env = append(env, fmt.Sprintf("%s=%v", k, a.interpolateValue(s)))
				}
			}
		}

		a.toolName = cfg.Name
		if name, _ := cfg.Settings["tool_name"].(string); name != "" {
			a.toolName = name
		}

		client, err := startStdioClient(command, args, env, a.logger)
		if err != nil {
			return err
		}

		if _, err := client.call(ctx, "initialize", map[string]any{
			"protocolVersion": mcpProtocolVersion,
			"clientInfo":      map[string]any{"name": "riviera", "version": "1.0"},
			"capabilities":    map[string]any{},
		}); err != nil {
			_ = client.close()
			return fmt.Errorf("mcp initialize handshake: %w", err)
		}
		if err := client.notify("notifications/initialized", map[string]any{}); err != nil {
			_ = client.close()
			return fmt.Errorf("mcp initialized notification: %w", err)
		}

		a.client = client
		return nil
	})
}

// mcpCallResult mirrors the MCP tools/call result shape.
type mcpCallResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

func (a *MCP) Execute(ctx context.Context, params map[string]any) (any, error) {
	raw, err := a.client.call(ctx, "tools/call", map[string]any{
		"name":      a.toolName,
		"arguments": params,
	})
	if err != nil {
		return nil, err
	}

	var result mcpCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tools/call result: %w", err)
	}

	var parts []string
	for _, block := range result.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	text := strings.Join(parts, "\n")

	if result.IsError {
		if text == "" {
			text = "unknown mcp tool error"
		}
		return nil, fmt.Errorf("mcp tool error: %s", text)
	}
	return text, nil
}

func (a *MCP) Dispose(ctx context.Context) error {
	return a.dispose(func() error {
		if a.client == nil {
			return nil
		}
		err := a.client.close()
		a.client = nil
		if err != nil && !strings.Contains(err.Error(), "killed") {
			return err
		}
		return nil
	})
}
