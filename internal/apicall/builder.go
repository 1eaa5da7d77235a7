// Package apicall assembles outbound LLM requests from a tool registry
// and a token budget check, and tracks per-call metrics.
package apicall

import (
	"fmt"

	"riviera/internal/llm"
	"riviera/internal/logging"
	"riviera/internal/token"
	"riviera/internal/tool"
	"riviera/internal/utils/id"
)

// BuilderConfig carries the defaults a Builder falls back to when a
// CallSpec leaves a field zero.
type BuilderConfig struct {
	DefaultModel     string
	DefaultMaxTokens int
	Logger           logging.Logger
}

// Builder turns call specs into provider-ready requests. One builder is
// owned by one agent instance; it is safe for concurrent Build calls
// because the registry handles its own locking.
type Builder struct {
	registry *tool.Registry
	config   BuilderConfig
	logger   logging.Logger
}

func NewBuilder(registry *tool.Registry, config BuilderConfig) *Builder {
	if config.DefaultMaxTokens <= 0 {
		config.DefaultMaxTokens = 8192
	}
	return &Builder{
		registry: registry,
		config:   config,
		logger:   logging.OrNop(config.Logger),
	}
}

// CallSpec describes one prospective LLM call before tool schemas and
// budget clamping are applied.
type CallSpec struct {
	AgentID       string
	Model         string
	System        string
	Messages      []llm.Message
	MaxTokens     int
	Temperature   *float64
	StopSequences []string

	// IncludeExternal adds tenant-loaded external tool schemas to the
	// request alongside builtins.
	IncludeExternal bool
}

// Call is a ready-to-send request plus the advisory budget report and
// the open metrics record for it.
type Call struct {
	Request llm.MessageRequest
	Budget  token.BudgetReport
	Metrics *Metrics
}

// Build gathers tool schemas from the registry, validates the token
// budget, clamps max_tokens to the model's remaining headroom, and
// opens a metrics record. A budget violation is advisory: it is logged
// and reported on the Call, never an error.
func (b *Builder) Build(spec CallSpec) (*Call, error) {
	model := spec.Model
	if model == "" {
		model = b.config.DefaultModel
	}
	if model == "" {
		return nil, fmt.Errorf("api call: model is required")
	}

	maxTokens := spec.MaxTokens
	if maxTokens <= 0 {
		maxTokens = b.config.DefaultMaxTokens
	}

	var defs []tool.Definition
	if spec.IncludeExternal {
		defs = b.registry.DefinitionsWithExternal()
	} else {
		defs = b.registry.Definitions()
	}

	budget := token.ValidateBudget(spec.System, spec.Messages, defs, maxTokens, model)
	if budget.Warning != "" {
		b.logger.Warn("token budget for %s: %s", model, budget.Warning)
	}
	maxTokens = token.RecommendedMaxTokens(spec.System, spec.Messages, defs, maxTokens, model)

	requestID := id.NewRequestID()
	b.logger.Debug("[%s] built call: model=%s tools=%d estimated=%d/%d",
		requestID, model, len(defs), budget.TotalEstimated, budget.ContextLimit)

	return &Call{
		Request: llm.MessageRequest{
			Model:         model,
			MaxTokens:     maxTokens,
			System:        spec.System,
			Messages:      spec.Messages,
			Tools:         wireTools(defs),
			Temperature:   spec.Temperature,
			StopSequences: spec.StopSequences,
		},
		Budget:  budget,
		Metrics: NewMetrics(requestID, spec.AgentID, model),
	}, nil
}

// wireTools converts registry definitions into the provider's tool
// schema shape.
func wireTools(defs []tool.Definition) []map[string]any {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]map[string]any, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, map[string]any{
			"name":         def.Name,
			"description":  def.Description,
			"input_schema": def.InputSchema,
		})
	}
	return tools
}
