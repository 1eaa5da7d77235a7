// Package tool implements the per-tenant tool registry shared by every
// content agent: schema-described builtin tools dispatched in-process and
// external tools dispatched through runtime-loaded adapters. Dispatch is a
// hard failure boundary: every outcome is a Result, never a raised error.
package tool

import "context"

// Property defines a single parameter in a tool's input schema.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []any     `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// InputSchema defines tool parameters (JSON Schema object form).
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Definition describes a tool for the LLM. Immutable once registered.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// Context is the ephemeral per-dispatch value object. It carries agent and
// tenant identifiers for logging and scoping and lives only for the
// duration of one dispatch.
type Context struct {
	AgentID   string
	AgentName string
	TaskID    string
	ContentID string
	WebsiteID string
}

// Handler executes one builtin tool call.
type Handler func(ctx context.Context, input map[string]any, tc Context) (any, error)

// Result is the uniform dispatch envelope. Dispatch never raises: every
// failure mode is folded into a Result with Success=false.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Ok wraps data in a successful Result.
func Ok(data any) Result {
	return Result{Success: true, Data: data}
}

// Fail builds a failed Result with the given message.
func Fail(message string) Result {
	return Result{Success: false, Error: message}
}

// Config describes one external tool as stored by the per-tenant
// configuration collaborator.
type Config struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	InputSchema *InputSchema   `json:"input_schema,omitempty"`
	DisplayName string         `json:"display_name,omitempty"`
	Description string         `json:"description,omitempty"`
	Settings    map[string]any `json:"settings,omitempty"`
}

// External tool types understood by the adapter factory. "builtin" never
// reaches the external map.
const (
	TypeBuiltin = "builtin"
	TypeREST    = "rest"
	TypeGraphQL = "graphql"
	TypeMCP     = "mcp"
)

// ConfigRepository lists the external tool configurations of a tenant.
type ConfigRepository interface {
	ListByWebsite(ctx context.Context, websiteID string) ([]Config, error)
}

// SecretRepository resolves decrypted secrets scoped to one tool of one
// tenant. Values are opaque to the registry.
type SecretRepository interface {
	SecretsFor(ctx context.Context, websiteID, toolConfigID string) (map[string]string, error)
}

// ExternalExecutor is the registry's view of an external tool adapter.
// The adapter package provides the concrete implementations; declaring
// the interface here keeps the dependency pointing outward.
type ExternalExecutor interface {
	Initialize(ctx context.Context, cfg Config, secrets map[string]string) error
	Execute(ctx context.Context, params map[string]any) (any, error)
	Dispose(ctx context.Context) error
	Ready() bool
}

// AdapterFactory constructs an uninitialized executor for a tool type.
type AdapterFactory func(toolType string) (ExternalExecutor, error)
