package apicall

import (
	"sync"
	"time"

	"riviera/internal/llm"
	"riviera/internal/token"
)

// pricing is expressed in USD per million tokens.
type pricing struct {
	Input  float64
	Output float64
}

var modelPricing = map[string]pricing{
	"claude-sonnet-4-20250514":   {Input: 3.00, Output: 15.00},
	"claude-opus-4-20250514":     {Input: 15.00, Output: 75.00},
	"claude-3-7-sonnet-20250219": {Input: 3.00, Output: 15.00},
	"claude-3-5-haiku-20241022":  {Input: 0.80, Output: 4.00},
}

// defaultPricing covers models missing from the table; sonnet rates are
// the conservative middle of the lineup.
var defaultPricing = pricing{Input: 3.00, Output: 15.00}

// EstimateCost converts a token usage pair into an approximate USD cost
// for the given model.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	p, ok := modelPricing[model]
	if !ok {
		p = defaultPricing
	}
	return float64(inputTokens)/1_000_000*p.Input + float64(outputTokens)/1_000_000*p.Output
}

// Metrics is the per-call record for one outbound LLM request. It is
// created before the call, settled exactly once with Finalize or
// RecordError, and read-only afterward.
type Metrics struct {
	RequestID string
	AgentID   string
	Model     string

	StartTime time.Time
	EndTime   time.Time

	InputTokens   int
	OutputTokens  int
	ToolsUsed     []string
	StopReason    string
	EstimatedCost float64
	Error         string

	mu      sync.Mutex
	settled bool
}

// NewMetrics opens a call record. The clock starts here, not at the
// moment the HTTP request leaves.
func NewMetrics(requestID, agentID, model string) *Metrics {
	return &Metrics{
		RequestID: requestID,
		AgentID:   agentID,
		Model:     model,
		StartTime: time.Now(),
	}
}

// Finalize settles the record after a successful call. Calls after the
// record is settled are ignored. Some proxies strip the usage block
// from responses; when that happens the output side is counted from
// the response text so the cost estimate stays non-zero.
func (m *Metrics) Finalize(usage llm.Usage, stopReason, outputText string, toolsUsed []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settled {
		return
	}
	if usage.OutputTokens == 0 && outputText != "" {
		usage.OutputTokens = token.CountText(outputText)
	}
	m.settled = true
	m.EndTime = time.Now()
	m.InputTokens = usage.InputTokens
	m.OutputTokens = usage.OutputTokens
	m.StopReason = stopReason
	m.ToolsUsed = append([]string(nil), toolsUsed...)
	m.EstimatedCost = EstimateCost(m.Model, usage.InputTokens, usage.OutputTokens)
}

// RecordError settles the record after a failed call.
func (m *Metrics) RecordError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settled || err == nil {
		return
	}
	m.settled = true
	m.EndTime = time.Now()
	m.Error = err.Error()
}

// Settled reports whether the record has been finalized or errored.
func (m *Metrics) Settled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settled
}

// Duration returns the wall time of the call, or the elapsed time so
// far when the record is still open.
func (m *Metrics) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EndTime.IsZero() {
		return time.Since(m.StartTime)
	}
	return m.EndTime.Sub(m.StartTime)
}

// Succeeded reports whether the call settled without an error.
func (m *Metrics) Succeeded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settled && m.Error == ""
}
