package agent

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"riviera/internal/apicall"
	"riviera/internal/llm"
	"riviera/internal/logging"
	"riviera/internal/observability"
	"riviera/internal/tool"
)

const defaultMaxIterations = 10

// MessageCreator is the slice of the LLM client the runner uses.
// *llm.Client satisfies it.
type MessageCreator interface {
	CreateMessage(ctx context.Context, req llm.MessageRequest) (*llm.MessageResponse, error)
}

// RunnerConfig configures one agent runner.
type RunnerConfig struct {
	AgentID       string
	AgentName     string
	Model         string
	MaxTokens     int
	MaxIterations int
	Logger        logging.Logger
}

// Runner drives one agent's conversation with the model: call, dispatch
// requested tools, feed results back, repeat until the model stops
// asking for tools or the iteration cap is hit.
type Runner struct {
	registry *tool.Registry
	builder  *apicall.Builder
	client   MessageCreator
	metrics  *observability.MetricsCollector
	config   RunnerConfig
	logger   logging.Logger
}

func NewRunner(registry *tool.Registry, builder *apicall.Builder, client MessageCreator, metrics *observability.MetricsCollector, config RunnerConfig) *Runner {
	if config.MaxIterations <= 0 {
		config.MaxIterations = defaultMaxIterations
	}
	if metrics == nil {
		metrics = &observability.MetricsCollector{}
	}
	return &Runner{
		registry: registry,
		builder:  builder,
		client:   client,
		metrics:  metrics,
		config:   config,
		logger:   logging.OrNop(config.Logger),
	}
}

// RunParams describes one task given to the agent.
type RunParams struct {
	WebsiteID string
	TaskID    string
	ContentID string
	System    string
	Prompt    string

	// DecodeJSON requires the final turn to carry a JSON object.
	// Models wrap JSON in prose or markdown fences often enough that
	// the decode is loose: it extracts and repairs before parsing.
	DecodeJSON bool
}

// RunResult is the outcome of one completed run.
type RunResult struct {
	Text          string
	Document      map[string]any
	StopReason    string
	Iterations    int
	ToolCalls     int
	InputTokens   int
	OutputTokens  int
	EstimatedCost float64
}

// Run executes the conversation loop. Tool failures never abort the
// loop; they flow back to the model as error results. The loop itself
// fails only on provider errors or when the iteration cap is reached.
func (r *Runner) Run(ctx context.Context, params RunParams) (*RunResult, error) {
	messages := []llm.Message{llm.TextMessage(llm.RoleUser, params.Prompt)}
	result := &RunResult{}

	toolCtx := tool.Context{
		AgentID:   r.config.AgentID,
		AgentName: r.config.AgentName,
		TaskID:    params.TaskID,
		ContentID: params.ContentID,
		WebsiteID: params.WebsiteID,
	}

	for result.Iterations < r.config.MaxIterations {
		result.Iterations++

		call, err := r.builder.Build(apicall.CallSpec{
			AgentID:         r.config.AgentID,
			Model:           r.config.Model,
			System:          params.System,
			Messages:        messages,
			MaxTokens:       r.config.MaxTokens,
			IncludeExternal: true,
		})
		if err != nil {
			return nil, err
		}

		resp, err := r.client.CreateMessage(ctx, call.Request)
		if err != nil {
			call.Metrics.RecordError(err)
			r.metrics.RecordLLMRequest(ctx, call.Request.Model, "error", call.Metrics.Duration(), 0, 0, 0)
			return nil, fmt.Errorf("llm call failed on iteration %d: %w", result.Iterations, err)
		}

		uses := resp.ToolUses()
		names := make([]string, 0, len(uses))
		for _, use := range uses {
			names = append(names, use.Name)
		}
		call.Metrics.Finalize(resp.Usage, resp.StopReason, resp.Text(), names)
		r.metrics.RecordLLMRequest(ctx, call.Request.Model, "success", call.Metrics.Duration(),
			resp.Usage.InputTokens, resp.Usage.OutputTokens, call.Metrics.EstimatedCost)

		result.InputTokens += resp.Usage.InputTokens
		result.OutputTokens += resp.Usage.OutputTokens
		result.EstimatedCost += call.Metrics.EstimatedCost
		result.StopReason = resp.StopReason

		if resp.StopReason != llm.StopToolUse || len(uses) == 0 {
			result.Text = resp.Text()
			if params.DecodeJSON {
				doc, err := llm.DecodeLooseJSON(result.Text)
				if err != nil {
					return nil, fmt.Errorf("agent %s returned no decodable JSON object: %w", r.config.AgentID, err)
				}
				result.Document = doc
			}
			return result, nil
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
		messages = append(messages, r.dispatchAll(ctx, uses, toolCtx))
		result.ToolCalls += len(uses)
	}

	return nil, fmt.Errorf("agent %s exceeded %d iterations without finishing", r.config.AgentID, r.config.MaxIterations)
}

// dispatchAll executes the requested tools in parallel and folds every
// result into one user message, preserving request order.
func (r *Runner) dispatchAll(ctx context.Context, uses []llm.ContentBlock, toolCtx tool.Context) llm.Message {
	results := make([]tool.Result, len(uses))

	g, gctx := errgroup.WithContext(ctx)
	for i, use := range uses {
		g.Go(func() error {
			start := time.Now()
			results[i] = r.registry.ExecuteWithExternal(gctx, use.Name, use.Input, toolCtx)
			status := "success"
			if !results[i].Success {
				status = "error"
			}
			r.metrics.RecordToolExecution(gctx, use.Name, status, time.Since(start))
			return nil
		})
	}
	// Dispatches never return errors; failures are carried in Result.
	_ = g.Wait()

	blocks := make([]llm.ContentBlock, 0, len(uses))
	for i, use := range uses {
		block := llm.ContentBlock{
			Type:      llm.BlockToolResult,
			ToolUseID: use.ID,
		}
		if results[i].Success {
			block.Content = llm.SerializeBlockContent(results[i].Data)
		} else {
			block.Content = results[i].Error
			block.IsError = true
		}
		blocks = append(blocks, block)
	}
	return llm.Message{Role: llm.RoleUser, Content: blocks}
}
