// Package observability wires OpenTelemetry metrics with a Prometheus
// exporter. The ops server exposes the scrape endpoint; this package
// only owns the instruments.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector holds every instrument the runtime records to. A
// zero-value collector (metrics disabled) is safe to call; every record
// method no-ops when instruments are nil.
type MetricsCollector struct {
	meter    metric.Meter
	provider *sdkmetric.MeterProvider

	llmRequests     metric.Int64Counter
	llmTokensInput  metric.Int64Counter
	llmTokensOutput metric.Int64Counter
	llmLatency      metric.Float64Histogram
	llmCost         metric.Float64Counter

	toolExecutions metric.Int64Counter
	toolDuration   metric.Float64Histogram

	batchJobsSubmitted metric.Int64Counter
	batchJobsActive    metric.Int64UpDownCounter
	batchItemsDone     metric.Int64Counter
}

// MetricsConfig configures the collector.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// NewMetricsCollector builds the instruments and registers the
// Prometheus exporter as the global meter provider.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter("riviera")

	c := &MetricsCollector{meter: meter, provider: provider}

	if c.llmRequests, err = meter.Int64Counter(
		"riviera.llm.requests.total",
		metric.WithDescription("Total number of LLM requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("create llm request counter: %w", err)
	}
	if c.llmTokensInput, err = meter.Int64Counter(
		"riviera.llm.tokens.input",
		metric.WithDescription("Total input tokens sent to the LLM"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, fmt.Errorf("create input token counter: %w", err)
	}
	if c.llmTokensOutput, err = meter.Int64Counter(
		"riviera.llm.tokens.output",
		metric.WithDescription("Total output tokens from the LLM"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, fmt.Errorf("create output token counter: %w", err)
	}
	if c.llmLatency, err = meter.Float64Histogram(
		"riviera.llm.latency",
		metric.WithDescription("LLM request latency in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("create llm latency histogram: %w", err)
	}
	if c.llmCost, err = meter.Float64Counter(
		"riviera.llm.cost.total",
		metric.WithDescription("Estimated cost of LLM requests"),
		metric.WithUnit("USD"),
	); err != nil {
		return nil, fmt.Errorf("create llm cost counter: %w", err)
	}

	if c.toolExecutions, err = meter.Int64Counter(
		"riviera.tool.executions.total",
		metric.WithDescription("Total number of tool executions"),
		metric.WithUnit("{execution}"),
	); err != nil {
		return nil, fmt.Errorf("create tool execution counter: %w", err)
	}
	if c.toolDuration, err = meter.Float64Histogram(
		"riviera.tool.duration",
		metric.WithDescription("Tool execution duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("create tool duration histogram: %w", err)
	}

	if c.batchJobsSubmitted, err = meter.Int64Counter(
		"riviera.batch.jobs.submitted",
		metric.WithDescription("Total batch jobs submitted"),
		metric.WithUnit("{job}"),
	); err != nil {
		return nil, fmt.Errorf("create batch job counter: %w", err)
	}
	if c.batchJobsActive, err = meter.Int64UpDownCounter(
		"riviera.batch.jobs.active",
		metric.WithDescription("Batch jobs not yet ended"),
		metric.WithUnit("{job}"),
	); err != nil {
		return nil, fmt.Errorf("create active job gauge: %w", err)
	}
	if c.batchItemsDone, err = meter.Int64Counter(
		"riviera.batch.items.succeeded",
		metric.WithDescription("Batch items reported succeeded by the provider"),
		metric.WithUnit("{item}"),
	); err != nil {
		return nil, fmt.Errorf("create batch item counter: %w", err)
	}

	return c, nil
}

// Shutdown flushes and stops the meter provider.
func (c *MetricsCollector) Shutdown(ctx context.Context) error {
	if c.provider == nil {
		return nil
	}
	return c.provider.Shutdown(ctx)
}

// RecordLLMRequest records one completed (or failed) LLM call.
func (c *MetricsCollector) RecordLLMRequest(ctx context.Context, model, status string, latency time.Duration, inputTokens, outputTokens int, cost float64) {
	if c.llmRequests == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("status", status),
	}
	c.llmRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	c.llmTokensInput.Add(ctx, int64(inputTokens), metric.WithAttributes(attribute.String("model", model)))
	c.llmTokensOutput.Add(ctx, int64(outputTokens), metric.WithAttributes(attribute.String("model", model)))
	c.llmLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attrs...))
	if cost > 0 {
		c.llmCost.Add(ctx, cost, metric.WithAttributes(attribute.String("model", model)))
	}
}

// RecordToolExecution records one tool dispatch.
func (c *MetricsCollector) RecordToolExecution(ctx context.Context, toolName, status string, duration time.Duration) {
	if c.toolExecutions == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("tool_name", toolName),
		attribute.String("status", status),
	}
	c.toolExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	c.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("tool_name", toolName)))
}

// RecordBatchSubmitted records a new batch job.
func (c *MetricsCollector) RecordBatchSubmitted(ctx context.Context, collectionType string, items int) {
	if c.batchJobsSubmitted == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("collection", collectionType))
	c.batchJobsSubmitted.Add(ctx, 1, attrs)
	c.batchJobsActive.Add(ctx, 1, attrs)
}

// RecordBatchEnded records a batch job reaching the provider's terminal
// state, with how many items succeeded.
func (c *MetricsCollector) RecordBatchEnded(ctx context.Context, collectionType string, succeeded int) {
	if c.batchJobsActive == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("collection", collectionType))
	c.batchJobsActive.Add(ctx, -1, attrs)
	c.batchItemsDone.Add(ctx, int64(succeeded), attrs)
}
