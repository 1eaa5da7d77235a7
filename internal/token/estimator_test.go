package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"riviera/internal/llm"
	"riviera/internal/tool"
)

func TestEstimateText(t *testing.T) {
	assert.Equal(t, 0, EstimateText(""))
	assert.Equal(t, 3, EstimateText("Hello world")) // 11 chars -> ceil(11/4)
	assert.Equal(t, 1, EstimateText("a"))
	assert.Equal(t, 1, EstimateText("abcd"))
	assert.Equal(t, 2, EstimateText("abcde"))
}

func TestEstimateMessagesAddsPerMessageOverhead(t *testing.T) {
	messages := []llm.Message{llm.TextMessage(llm.RoleUser, "Hello world")}
	assert.Equal(t, 13, EstimateMessages(messages)) // 3 + 10 overhead
}

func TestEstimateMessagesSerializesToolBlocks(t *testing.T) {
	messages := []llm.Message{
		{
			Role: llm.RoleAssistant,
			Content: []llm.ContentBlock{
				{Type: llm.BlockToolUse, ID: "tu_1", Name: "get_content", Input: map[string]any{"content_id": "c-1"}},
			},
		},
		llm.ToolResultMessage("tu_1", map[string]any{"title": "Vernazza"}, false),
	}

	total := EstimateMessages(messages)
	// Two messages of overhead plus the serialized input/result payloads.
	assert.Greater(t, total, 2*messageOverhead)
}

func TestEstimateToolsAddsPerToolOverhead(t *testing.T) {
	tools := []tool.Definition{
		{
			Name:        "get_content",
			Description: "Fetch one content item",
			InputSchema: tool.InputSchema{
				Type: "object",
				Properties: map[string]tool.Property{
					"content_id": {Type: "string", Description: "target content"},
				},
				Required: []string{"content_id"},
			},
		},
	}

	total := EstimateTools(tools)
	assert.Greater(t, total, toolOverhead)

	withoutSchema := EstimateText("get_content") + EstimateText("Fetch one content item")
	assert.Greater(t, total, toolOverhead+withoutSchema)
}

func TestValidateBudgetWithinLimit(t *testing.T) {
	report := ValidateBudget("You are a content agent.", []llm.Message{
		llm.TextMessage(llm.RoleUser, "write a restaurant blurb"),
	}, nil, 4096, "claude-sonnet-4-20250514")

	assert.False(t, report.OverBudget)
	assert.Equal(t, 200_000, report.ContextLimit)
	assert.Empty(t, report.Warning)
	assert.Equal(t, report.ContextLimit-report.TotalEstimated, report.Remaining)
}

func TestValidateBudgetOverBudget(t *testing.T) {
	huge := strings.Repeat("x", 900_000) // ~225k tokens on its own
	report := ValidateBudget(huge, nil, nil, 8192, "claude-sonnet-4-20250514")

	assert.True(t, report.OverBudget)
	assert.Negative(t, report.Remaining)
	assert.Contains(t, report.Warning, "exceeds")
	assert.Equal(t, report.TotalEstimated > report.ContextLimit, report.OverBudget)
}

func TestValidateBudgetTightHeadroomWarning(t *testing.T) {
	// Land inside the final 10% of the window without going over:
	// 185k estimated input + 8k output = 193k of 200k.
	prompt := strings.Repeat("x", 740_000)
	report := ValidateBudget(prompt, nil, nil, 8000, "claude-sonnet-4-20250514")

	assert.False(t, report.OverBudget)
	assert.NotEmpty(t, report.Warning)
	assert.Contains(t, report.Warning, "headroom")
}

func TestValidateBudgetUnknownModelFallsBack(t *testing.T) {
	report := ValidateBudget("hi", nil, nil, 1000, "some-future-model")
	assert.Equal(t, defaultContextLimit, report.ContextLimit)
}

func TestRecommendedMaxTokensClamps(t *testing.T) {
	// Plenty of room: the caller's request wins.
	got := RecommendedMaxTokens("short prompt", nil, nil, 4096, "claude-sonnet-4-20250514")
	assert.Equal(t, 4096, got)

	// Request above the available budget gets clamped down.
	got = RecommendedMaxTokens("short prompt", nil, nil, 1_000_000, "claude-sonnet-4-20250514")
	assert.Less(t, got, 1_000_000)
	assert.GreaterOrEqual(t, got, minRecommendedOutput)

	// Input swallows the window: floor at the minimum viable output.
	huge := strings.Repeat("x", 900_000)
	got = RecommendedMaxTokens(huge, nil, nil, 4096, "claude-sonnet-4-20250514")
	assert.Equal(t, minRecommendedOutput, got)
}

func TestCountTextFallsBackToHeuristic(t *testing.T) {
	// Whatever backend is active, the count must be positive for real text
	// and zero-ish for empty input.
	assert.Equal(t, 0, EstimateText(""))
	assert.Greater(t, CountText("Cinque Terre travel guide"), 0)
}
