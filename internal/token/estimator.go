// Package token estimates the context-window cost of prospective LLM
// calls. The estimates are deliberately coarse (~4 characters per token)
// and advisory: callers decide whether to truncate, abort or proceed when
// a budget report flags trouble.
package token

import (
	"encoding/json"
	"fmt"

	"riviera/internal/llm"
	"riviera/internal/tool"
)

const (
	// charsPerToken is the heuristic ratio for English-ish text.
	charsPerToken = 4

	// messageOverhead approximates role/structure framing cost per message.
	messageOverhead = 10

	// toolOverhead approximates schema framing cost per tool definition.
	toolOverhead = 20

	// defaultContextLimit is used for models absent from contextLimits.
	defaultContextLimit = 200_000

	// minRecommendedOutput is the floor RecommendedMaxTokens never goes
	// below: a smaller budget would not fit any useful generation.
	minRecommendedOutput = 1024

	// safetyBufferRatio reserves headroom when recommending output budget.
	safetyBufferRatio = 0.10

	// tightHeadroomRatio triggers the soft warning tier.
	tightHeadroomRatio = 0.10
)

// contextLimits maps model identifiers to their context windows.
var contextLimits = map[string]int{
	"claude-sonnet-4-20250514":   200_000,
	"claude-opus-4-20250514":     200_000,
	"claude-3-7-sonnet-20250219": 200_000,
	"claude-3-5-sonnet-20241022": 200_000,
	"claude-3-5-haiku-20241022":  200_000,
}

// ContextLimit returns the context window for model, falling back to the
// default when the model is unknown.
func ContextLimit(model string) int {
	if limit, ok := contextLimits[model]; ok {
		return limit
	}
	return defaultContextLimit
}

// EstimateText returns ceil(len(text)/4); empty text estimates to zero.
func EstimateText(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// EstimateMessages sums per-block estimates plus a fixed per-message
// overhead. tool_result content and tool_use input are estimated from
// their serialized form, matching what goes on the wire.
func EstimateMessages(messages []llm.Message) int {
	total := 0
	for _, msg := range messages {
		total += messageOverhead
		for _, block := range msg.Content {
			switch block.Type {
			case llm.BlockText:
				total += EstimateText(block.Text)
			case llm.BlockToolResult:
				total += EstimateText(llm.SerializeBlockContent(block.Content))
			case llm.BlockToolUse:
				total += EstimateText(serializeJSON(block.Input))
			}
		}
	}
	return total
}

// EstimateTools sums name, description and serialized-schema estimates
// plus a fixed per-tool overhead.
func EstimateTools(tools []tool.Definition) int {
	total := 0
	for _, t := range tools {
		total += toolOverhead
		total += EstimateText(t.Name)
		total += EstimateText(t.Description)
		total += EstimateText(serializeJSON(t.InputSchema))
	}
	return total
}

// Breakdown itemizes where the estimated tokens go.
type Breakdown struct {
	System    int `json:"system"`
	Messages  int `json:"messages"`
	Tools     int `json:"tools"`
	MaxOutput int `json:"max_output"`
}

// BudgetReport is the advisory result of a pre-flight budget check.
type BudgetReport struct {
	OverBudget     bool      `json:"is_over_budget"`
	TotalEstimated int       `json:"total_estimated"`
	ContextLimit   int       `json:"context_limit"`
	Remaining      int       `json:"remaining"`
	Breakdown      Breakdown `json:"breakdown"`
	Warning        string    `json:"warning,omitempty"`
}

// ValidateBudget estimates the full cost of a prospective call (system
// prompt + messages + tool schemas + requested output) against the
// model's context limit. It never blocks the call; the report is advice.
func ValidateBudget(systemPrompt string, messages []llm.Message, tools []tool.Definition, maxOutputTokens int, model string) BudgetReport {
	breakdown := Breakdown{
		System:    EstimateText(systemPrompt),
		Messages:  EstimateMessages(messages),
		Tools:     EstimateTools(tools),
		MaxOutput: maxOutputTokens,
	}

	limit := ContextLimit(model)
	total := breakdown.System + breakdown.Messages + breakdown.Tools + breakdown.MaxOutput
	remaining := limit - total

	report := BudgetReport{
		OverBudget:     remaining < 0,
		TotalEstimated: total,
		ContextLimit:   limit,
		Remaining:      remaining,
		Breakdown:      breakdown,
	}

	switch {
	case report.OverBudget:
		report.Warning = fmt.Sprintf(
			"estimated %d tokens exceeds %s context limit of %d by %d",
			total, model, limit, -remaining)
	case float64(remaining) < tightHeadroomRatio*float64(limit):
		report.Warning = fmt.Sprintf(
			"only %d tokens of headroom left (under %.0f%% of the %d context limit)",
			remaining, tightHeadroomRatio*100, limit)
	}

	return report
}

// RecommendedMaxTokens clamps the caller's desired output budget to what
// actually fits: context limit minus estimated input minus a 10%% safety
// buffer, never below minRecommendedOutput and never above the request.
func RecommendedMaxTokens(systemPrompt string, messages []llm.Message, tools []tool.Definition, desiredMaxTokens int, model string) int {
	limit := ContextLimit(model)
	input := EstimateText(systemPrompt) + EstimateMessages(messages) + EstimateTools(tools)
	buffer := int(float64(limit) * safetyBufferRatio)

	available := limit - input - buffer
	if available < minRecommendedOutput {
		available = minRecommendedOutput
	}
	if desiredMaxTokens < available {
		return desiredMaxTokens
	}
	return available
}

func serializeJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
