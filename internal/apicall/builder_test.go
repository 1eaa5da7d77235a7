package apicall

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riviera/internal/llm"
	"riviera/internal/tool"
)

func newTestRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	registry := tool.NewRegistry(tool.Deps{})
	registry.Register(tool.Definition{
		Name:        "get_content",
		Description: "Fetch one content document by id",
		InputSchema: tool.InputSchema{
			Type: "object",
			Properties: map[string]tool.Property{
				"content_id": {Type: "string", Description: "document id"},
			},
			Required: []string{"content_id"},
		},
	}, func(ctx context.Context, input map[string]any, tc tool.Context) (any, error) {
		return nil, nil
	})
	return registry
}

func TestBuildAttachesRegistrySchemas(t *testing.T) {
	builder := NewBuilder(newTestRegistry(t), BuilderConfig{DefaultModel: "claude-sonnet-4-20250514"})

	call, err := builder.Build(CallSpec{
		AgentID:   "agent-1",
		System:    "You maintain a travel site.",
		Messages:  []llm.Message{llm.TextMessage(llm.RoleUser, "update page c-7")},
		MaxTokens: 4096,
	})
	require.NoError(t, err)

	assert.Equal(t, "claude-sonnet-4-20250514", call.Request.Model)
	require.Len(t, call.Request.Tools, 1)
	assert.Equal(t, "get_content", call.Request.Tools[0]["name"])

	assert.False(t, call.Budget.OverBudget)
	assert.Equal(t, 4096, call.Request.MaxTokens)

	assert.Equal(t, "agent-1", call.Metrics.AgentID)
	assert.True(t, strings.HasPrefix(call.Metrics.RequestID, "req_"))
	assert.False(t, call.Metrics.Settled())
}

func TestBuildRequiresModel(t *testing.T) {
	builder := NewBuilder(newTestRegistry(t), BuilderConfig{})
	_, err := builder.Build(CallSpec{MaxTokens: 64})
	require.Error(t, err)
}

func TestBuildClampsMaxTokensToHeadroom(t *testing.T) {
	builder := NewBuilder(newTestRegistry(t), BuilderConfig{DefaultModel: "claude-sonnet-4-20250514"})

	// ~190k estimated input tokens leaves well under the requested
	// 100k of output headroom on a 200k context.
	big := strings.Repeat("x", 760_000)
	call, err := builder.Build(CallSpec{
		Messages:  []llm.Message{llm.TextMessage(llm.RoleUser, big)},
		MaxTokens: 100_000,
	})
	require.NoError(t, err)

	assert.Less(t, call.Request.MaxTokens, 100_000)
	assert.GreaterOrEqual(t, call.Request.MaxTokens, 1024)
	assert.NotEmpty(t, call.Budget.Warning)
}

func TestBuildOverBudgetIsAdvisory(t *testing.T) {
	builder := NewBuilder(newTestRegistry(t), BuilderConfig{DefaultModel: "claude-sonnet-4-20250514"})

	big := strings.Repeat("x", 900_000)
	call, err := builder.Build(CallSpec{
		Messages:  []llm.Message{llm.TextMessage(llm.RoleUser, big)},
		MaxTokens: 8192,
	})
	require.NoError(t, err)
	assert.True(t, call.Budget.OverBudget)
}

func TestMetricsFinalizeOnce(t *testing.T) {
	m := NewMetrics("req_1", "agent-1", "claude-sonnet-4-20250514")
	m.Finalize(llm.Usage{InputTokens: 1_000_000, OutputTokens: 100_000}, llm.StopEndTurn, "", []string{"get_content"})

	assert.True(t, m.Settled())
	assert.True(t, m.Succeeded())
	assert.Equal(t, llm.StopEndTurn, m.StopReason)
	assert.InDelta(t, 3.00+1.50, m.EstimatedCost, 1e-9)

	// Settled records do not move again.
	m.RecordError(errors.New("late failure"))
	assert.Empty(t, m.Error)
	m.Finalize(llm.Usage{InputTokens: 5}, llm.StopMaxTokens, "", nil)
	assert.Equal(t, 1_000_000, m.InputTokens)
}

func TestMetricsFinalizeCountsMissingOutputUsage(t *testing.T) {
	m := NewMetrics("req_3", "agent-1", "claude-sonnet-4-20250514")
	m.Finalize(llm.Usage{InputTokens: 12}, llm.StopEndTurn, "Riomaggiore clings to its ravine above the harbor.", nil)

	assert.Positive(t, m.OutputTokens)
	assert.InDelta(t, EstimateCost(m.Model, 12, m.OutputTokens), m.EstimatedCost, 1e-9)

	// A reported usage block is always authoritative.
	m2 := NewMetrics("req_4", "agent-1", "claude-sonnet-4-20250514")
	m2.Finalize(llm.Usage{InputTokens: 12, OutputTokens: 40}, llm.StopEndTurn, "short", nil)
	assert.Equal(t, 40, m2.OutputTokens)
}

func TestMetricsRecordError(t *testing.T) {
	m := NewMetrics("req_2", "agent-1", "claude-sonnet-4-20250514")
	m.RecordError(errors.New("connection reset"))

	assert.True(t, m.Settled())
	assert.False(t, m.Succeeded())
	assert.Equal(t, "connection reset", m.Error)
	assert.False(t, m.EndTime.IsZero())
}

func TestEstimateCostUnknownModelUsesDefault(t *testing.T) {
	assert.InDelta(t, EstimateCost("claude-sonnet-4-20250514", 2_000_000, 0), EstimateCost("mystery-model", 2_000_000, 0), 1e-9)
}
